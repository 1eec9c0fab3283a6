package power

import (
	"scpcore-go/errcode"
	"scpcore-go/id"
)

// State is a power-domain state. The three canonical states are
// fixed; products extend the space upward for retention variants
// (spec §4.6.1).
type State uint8

const (
	StateOff State = iota
	StateOn
	StateSleep
	// StateProductExtended0 is the first of the product-defined
	// retention states products may add beyond the canonical three.
	StateProductExtended0
)

// Mask is a per-parent-state bitmap of permitted child states (spec
// §3.9 allowed_state_mask_table).
type Mask uint32

// MaskOf builds a Mask permitting exactly the given states.
func MaskOf(states ...State) Mask {
	var m Mask
	for _, s := range states {
		m |= 1 << uint(s)
	}
	return m
}

// Allows reports whether s is permitted by the mask.
func (m Mask) Allows(s State) bool { return m&(1<<uint(s)) != 0 }

// Type classifies a domain's position and policy in the tree (spec
// §4.6.2).
type Type int

const (
	TypeCore Type = iota
	TypeCluster
	TypeDevice
	TypeDeviceDebug
	TypeSystem
)

// Driver is the power-driver contract the state machine consumes
// (spec §6.3). SetState is asynchronous: the driver MUST eventually
// call the Machine's ReportPowerStateTransition once the hardware
// transition completes.
type Driver interface {
	SetState(domainID id.ID, newState State) errcode.Code
	GetState(domainID id.ID) (State, errcode.Code)
	Reset(domainID id.ID) errcode.Code
	PrepareCoreForSystemSuspend(domainID id.ID) errcode.Code
}

// SystemDriver is the root system-power driver invoked at the end of
// a shutdown/reset flow (spec §4.6.6).
type SystemDriver interface {
	Shutdown(mode ShutdownMode) errcode.Code
}

// ShutdownMode selects the system-wide teardown flow.
type ShutdownMode int

const (
	ModeShutdown ShutdownMode = iota
	ModeReset
	ModeColdReset
)
