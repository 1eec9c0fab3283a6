// Package irq implements the interrupt driver shim (spec §4.4, §6.2):
// a thin, driver-backed interface with nestable global mask/unmask and
// ISR-context queries. It is the core's only synchronisation
// primitive (spec §5: "No locks beyond the global interrupt mask").
package irq

import (
	"sync"

	"scpcore-go/errcode"
)

// Line identifies an interrupt line. Negative sentinel values are
// reserved for NMI and fault vectors (spec §4.4 "get_current").
type Line int32

const (
	// LineNone is returned by GetCurrent when not in ISR context.
	LineNone Line = -1
	// LineNMI and LineFault are the sentinel values GetCurrent returns
	// when the current context is the NMI or a fault/exception vector.
	LineNMI   Line = -2
	LineFault Line = -3
)

// ISR is a registered interrupt service routine.
type ISR func(param any)

// Driver is the contract an architecture/board registers once during
// pre-runtime (spec §6.2). Every method must treat the global
// enable/disable counter as nestable: the driver only actually masks
// interrupts on the 0→1 depth transition and unmasks on 1→0.
type Driver interface {
	GlobalDisable() (prevMasked bool)
	GlobalEnable(prevMasked bool)

	Enable(l Line) errcode.Code
	Disable(l Line) errcode.Code
	IsEnabled(l Line) (bool, errcode.Code)

	IsPending(l Line) (bool, errcode.Code)
	SetPending(l Line) errcode.Code
	ClearPending(l Line) errcode.Code

	SetISR(l Line, fn ISR) errcode.Code
	SetISRParam(l Line, fn ISR, param any) errcode.Code
	SetISRNMI(fn ISR) errcode.Code
	SetISRFault(fn ISR) errcode.Code

	GetCurrent() Line
	IsInterruptContext() bool
}

// Shim is the core-facing handle modules use. It is instantiated once
// by product bring-up code (not a package-level singleton) and
// threaded into registry/sched so that test code can substitute a
// fake Driver without touching global state.
type Shim struct {
	mu     sync.Mutex
	driver Driver
	depth  uint32 // nested global-disable depth
	// prevMasked is the architecture mask state reported by the
	// driver when the outermost GlobalDisable masked it.
	prevMasked bool
}

// New returns an unregistered shim; every operation fails with
// errcode.EInit until Register is called (spec §4.4).
func New() *Shim { return &Shim{} }

// Register installs the architecture's interrupt driver. It is called
// exactly once during pre-runtime bring-up, before MODULE_INIT.
func (s *Shim) Register(d Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driver = d
}

func (s *Shim) registered() (Driver, errcode.Code) {
	if s.driver == nil {
		return nil, errcode.EInit
	}
	return s.driver, errcode.Success
}

// GlobalDisable disables IRQs, nestable via a depth counter: only the
// outermost call actually masks the architecture, recording the mask
// state the driver reports it had before. The returned flags are the
// nesting depth reached by this call.
func (s *Shim) GlobalDisable() (flags uint32, code errcode.Code) {
	d, code := s.registered()
	if code != errcode.Success {
		return 0, code
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth == 0 {
		s.prevMasked = d.GlobalDisable()
	}
	s.depth++
	return s.depth, errcode.Success
}

// GlobalEnable undoes a matching GlobalDisable: it decrements the
// depth counter and, when the counter reaches zero, hands the driver
// the mask state recorded by the outermost GlobalDisable. The flags
// value is accepted for symmetry and is not inspected.
func (s *Shim) GlobalEnable(flags uint32) errcode.Code {
	d, code := s.registered()
	if code != errcode.Success {
		return code
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth == 0 {
		return errcode.EState
	}
	s.depth--
	if s.depth == 0 {
		d.GlobalEnable(s.prevMasked)
	}
	return errcode.Success
}

// Critical runs fn with interrupts globally masked, restoring the
// prior nesting depth afterwards. This is the idiom §4.3.3 requires
// for queue-manipulation critical sections.
func (s *Shim) Critical(fn func()) errcode.Code {
	flags, code := s.GlobalDisable()
	if code != errcode.Success {
		return code
	}
	defer s.GlobalEnable(flags)
	fn()
	return errcode.Success
}

func (s *Shim) Enable(l Line) errcode.Code {
	d, code := s.registered()
	if code != errcode.Success {
		return code
	}
	return d.Enable(l)
}

func (s *Shim) Disable(l Line) errcode.Code {
	d, code := s.registered()
	if code != errcode.Success {
		return code
	}
	return d.Disable(l)
}

func (s *Shim) IsEnabled(l Line) (bool, errcode.Code) {
	d, code := s.registered()
	if code != errcode.Success {
		return false, code
	}
	return d.IsEnabled(l)
}

func (s *Shim) IsPending(l Line) (bool, errcode.Code) {
	d, code := s.registered()
	if code != errcode.Success {
		return false, code
	}
	return d.IsPending(l)
}

func (s *Shim) SetPending(l Line) errcode.Code {
	d, code := s.registered()
	if code != errcode.Success {
		return code
	}
	return d.SetPending(l)
}

func (s *Shim) ClearPending(l Line) errcode.Code {
	d, code := s.registered()
	if code != errcode.Success {
		return code
	}
	return d.ClearPending(l)
}

func (s *Shim) SetISR(l Line, fn ISR) errcode.Code {
	d, code := s.registered()
	if code != errcode.Success {
		return code
	}
	return d.SetISR(l, fn)
}

func (s *Shim) SetISRParam(l Line, fn ISR, param any) errcode.Code {
	d, code := s.registered()
	if code != errcode.Success {
		return code
	}
	return d.SetISRParam(l, fn, param)
}

func (s *Shim) SetISRNMI(fn ISR) errcode.Code {
	d, code := s.registered()
	if code != errcode.Success {
		return code
	}
	return d.SetISRNMI(fn)
}

func (s *Shim) SetISRFault(fn ISR) errcode.Code {
	d, code := s.registered()
	if code != errcode.Success {
		return code
	}
	return d.SetISRFault(fn)
}

// GetCurrent returns the line of the interrupt currently executing,
// or LineNone if not in ISR context. Returns LineNone (rather than an
// error code) when unregistered, since "not in an ISR" is a safe
// default answer pre-registration.
func (s *Shim) GetCurrent() Line {
	d, code := s.registered()
	if code != errcode.Success {
		return LineNone
	}
	return d.GetCurrent()
}

// IsInterruptContext reports whether the calling code is executing
// inside any ISR (normal, NMI, or fault).
func (s *Shim) IsInterruptContext() bool {
	d, code := s.registered()
	if code != errcode.Success {
		return false
	}
	return d.IsInterruptContext()
}
