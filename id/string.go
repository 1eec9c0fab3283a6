package id

import "scpcore-go/x/conv"

// String renders a human-readable form for diagnostic dumps and log
// lines. It is never called from a dispatch hot path (spec §4.3: the
// core must not format strings there) — callers that need to trace
// dispatch reach for this only from corelog call sites or test
// failures. Digit rendering goes through x/conv's allocation-light
// Itoa rather than strconv, matching the teacher's MCU-build habit of
// avoiding the standard formatting stack even in debug-only code
// paths that might still run on-target.
func (i ID) String() string {
	var buf [20]byte
	dec := func(n int) string { return string(conv.Itoa(buf[:], int64(n))) }

	switch i.Kind() {
	case KindNone:
		return "None"
	case KindModule:
		return "Module(" + dec(i.ModuleIdx()) + ")"
	case KindElement:
		return "Element(" + dec(i.ModuleIdx()) + "," + dec(i.ElementIdx()) + ")"
	case KindSubElement:
		return "SubElement(" + dec(i.ModuleIdx()) + "," + dec(i.ElementIdx()) + "," + dec(i.SubElementIdx()) + ")"
	case KindAPI:
		return "API(" + dec(i.ModuleIdx()) + "," + dec(i.APIIdx()) + ")"
	case KindEvent:
		return "Event(" + dec(i.ModuleIdx()) + "," + dec(i.EventIdx()) + ")"
	case KindNotification:
		return "Notification(" + dec(i.ModuleIdx()) + "," + dec(i.NotificationIdx()) + ")"
	default:
		return "ID(?)"
	}
}

// Hex renders the raw 32-bit value as 8 zero-padded hex digits, for
// wire-level dumps where the decoded String() form is too verbose
// (e.g. a bulk register/event trace).
func (i ID) Hex() string {
	var buf [8]byte
	return string(conv.U32Hex(buf[:], uint32(i)))
}
