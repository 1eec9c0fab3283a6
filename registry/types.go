package registry

import (
	"scpcore-go/errcode"
	"scpcore-go/id"
	"scpcore-go/sched"
)

// Kind classifies a module's role, matching the four static module
// kinds the core recognises.
type Kind int

const (
	KindDriver Kind = iota
	KindHAL
	KindService
	KindProtocol
)

// State is a module or element's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateBound
	StateStarted
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateBound:
		return "bound"
	case StateStarted:
		return "started"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Binder is handed to a module's Bind callback so it can acquire a
// typed API reference from another module during the BIND phase
// (spec §4.2 round protocol).
type Binder struct {
	r      *Registry
	source id.ID
}

// ModuleBind requests the API identified by apiID from targetID's
// owning module. The target's ProcessBindRequest callback decides
// whether to honour the request.
func (b *Binder) ModuleBind(targetID id.ID, apiID int) (any, errcode.Code) {
	return b.r.moduleBind(b.source, targetID, apiID)
}

// ElementDescriptor describes one element owned by a module. Data is
// mandatory non-nil: the core treats a nil Data as "invalid element"
// and rejects it during ELEMENT_INIT (spec §3.3, §4.2).
type ElementDescriptor struct {
	Name             string
	SubElementCount  int
	Data             any
}

// ModuleConfig supplies a module's elements, either as a fixed table
// or as a generator evaluated exactly once during MODULE_INIT (spec
// §3.4). Exactly one of Elements or Generator should be set; if both
// are nil the module has no elements.
type ModuleConfig struct {
	Elements  []ElementDescriptor
	Generator func(moduleID id.ID) []ElementDescriptor
	Data      any
}

// ModuleDescriptor is the static description of a module's identity,
// capability counts, and lifecycle/dispatch callbacks (spec §3.2).
// Every callback is optional; an absent callback is treated as a
// no-op success during lifecycle, or as errcode.ESupport during
// dispatch and bind requests.
type ModuleDescriptor struct {
	Name               string
	Kind               Kind
	APICount           int
	EventCount         int
	NotificationCount  int

	Init    func(moduleID id.ID, elementCount int, moduleData any) errcode.Code
	ElementInit func(elementID id.ID, subElementCount int, elementData any) errcode.Code
	PostInit func(moduleID id.ID) errcode.Code
	Bind     func(b *Binder, target id.ID, round int) errcode.Code
	Start    func(target id.ID) errcode.Code

	ProcessBindRequest  func(sourceID, targetID id.ID, apiID int) (any, errcode.Code)
	ProcessEvent        func(e sched.Event) (sched.Event, errcode.Code)
	ProcessNotification func(e sched.Event) (sched.Event, errcode.Code)
}
