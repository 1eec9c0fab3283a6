// Package id implements the framework's compact 32-bit tagged identifier.
//
// An ID names any module, element, sub-element, API, event, or
// notification in the system. It is a pure value type: comparisons,
// construction and destructuring never touch the registry.
package id

// Kind tags the variant an ID carries.
type Kind uint8

const (
	KindNone Kind = iota
	KindModule
	KindElement
	KindSubElement
	KindAPI
	KindEvent
	KindNotification
)

// Bit layout (total, unambiguous):
//
//	[ 3 bits kind ][ 9 bits module ][ 9 bits element/api/event/notif ][ 11 bits sub-element ]
//
// Sized so a product can have up to 512 modules, 512 elements/APIs/
// events/notifications per module, and 2047 sub-elements per element
// (SubElement stores the index plus one, so 0 never names one) —
// generous relative to the ~20 kLoC target this framework was sized
// against (spec.md §2).
const (
	subBits = 11
	idxBits = 9

	subShift = 0
	idxShift = subShift + subBits
	modShift = idxShift + idxBits
	kindShift = modShift + idxBits

	subMask = (1 << subBits) - 1
	idxMask = (1 << idxBits) - 1
	kindMask = 0x7
)

// ID is the tagged 32-bit handle. The zero value is None.
type ID uint32

// None returns the sentinel ID, distinguishable from every other variant.
func None() ID { return ID(KindNone) << kindShift }

func build(k Kind, module, idx, sub int) ID {
	return ID(k)<<kindShift |
		ID(module&idxMask)<<modShift |
		ID(idx&idxMask)<<idxShift |
		ID(sub&subMask)<<subShift
}

// Module constructs a Module-variant ID for the given module index.
func Module(module int) ID { return build(KindModule, module, 0, 0) }

// Element constructs an Element-variant ID.
func Element(module, element int) ID { return build(KindElement, module, element, 0) }

// SubElement constructs a Sub-element-variant ID.
func SubElement(module, element, sub int) ID {
	return build(KindSubElement, module, element, sub+1)
}

// API constructs an API-variant ID.
func API(module, api int) ID { return build(KindAPI, module, api, 0) }

// Event constructs an Event-variant ID.
func Event(module, event int) ID { return build(KindEvent, module, event, 0) }

// Notification constructs a Notification-variant ID.
func Notification(module, notif int) ID { return build(KindNotification, module, notif, 0) }

// Kind returns the ID's variant.
func (i ID) Kind() Kind { return Kind((i >> kindShift) & kindMask) }

// IsType reports whether the ID is of the given variant.
func (i ID) IsType(k Kind) bool { return i.Kind() == k }

// IsNone reports whether the ID is the None sentinel.
func (i ID) IsNone() bool { return i.Kind() == KindNone }

// IsEqual reports whether two IDs name the same entity.
func (i ID) IsEqual(other ID) bool { return i == other }

// ModuleIdx returns the module index carried by any non-None variant.
// Every variant carries a module index, so this never panics.
func (i ID) ModuleIdx() int { return int((i >> modShift) & idxMask) }

// ElementIdx returns the element index. Valid for Element and
// Sub-element IDs only; panics otherwise (debug assertion, §4.1).
func (i ID) ElementIdx() int {
	mustBeOneOf(i, KindElement, KindSubElement)
	return int((i >> idxShift) & idxMask)
}

// SubElementIdx returns the sub-element index. Valid for Sub-element
// IDs only. Panics otherwise.
func (i ID) SubElementIdx() int {
	mustBeOneOf(i, KindSubElement)
	return int((i>>subShift)&subMask) - 1
}

// APIIdx returns the API index. Valid for API IDs only.
func (i ID) APIIdx() int {
	mustBeOneOf(i, KindAPI)
	return int((i >> idxShift) & idxMask)
}

// EventIdx returns the event index. Valid for Event IDs only.
func (i ID) EventIdx() int {
	mustBeOneOf(i, KindEvent)
	return int((i >> idxShift) & idxMask)
}

// NotificationIdx returns the notification index. Valid for
// Notification IDs only.
func (i ID) NotificationIdx() int {
	mustBeOneOf(i, KindNotification)
	return int((i >> idxShift) & idxMask)
}

func mustBeOneOf(i ID, kinds ...Kind) {
	k := i.Kind()
	for _, want := range kinds {
		if k == want {
			return
		}
	}
	panic("id: accessor called on wrong ID variant")
}

// ModuleID truncates any variant down to its owning Module ID
// (§3.1: "a Module ID from any of the above").
func (i ID) ModuleID() ID { return Module(i.ModuleIdx()) }

// ElementID truncates a Sub-element ID down to its owning Element ID
// (§3.1: "An Element ID MUST be derivable from a Sub-element ID by
// truncation").
func (i ID) ElementID() ID {
	mustBeOneOf(i, KindElement, KindSubElement)
	return Element(i.ModuleIdx(), i.ElementIdx())
}
