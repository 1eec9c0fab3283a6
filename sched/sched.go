package sched

import (
	"scpcore-go/corelog"
	"scpcore-go/errcode"
	"scpcore-go/irq"
)

// Handler is implemented by whatever owns a target module's dispatch
// callbacks (the registry, in production). process_event and
// process_notification each receive the dispatched event and return a
// response event plus a status; a non-success status is converted
// into the response payload rather than escalated (spec §4.3.2),
// except for the logic-bug cases §7 calls out, which panic.
type Handler interface {
	ProcessEvent(e Event) (resp Event, status errcode.Code)
	ProcessNotification(e Event) (resp Event, status errcode.Code)
}

// Dispatcher resolves the Handler owning a given target module index.
// A missing handler for a module that should exist is the
// "unreachable handler, unknown module" logic-bug case (spec §4.3.2)
// and is treated as fatal by Dispatch.
type Dispatcher interface {
	HandlerFor(targetModuleIdx int) (Handler, bool)
}

// Scheduler owns the two FIFO queues and the main dispatch loop.
type Scheduler struct {
	normal *ring
	isrQ   *ring

	irqShim *irq.Shim
	disp    Dispatcher
	log     corelog.Logger

	dropped      uint64 // ISR-queue overflow counter (spec §4.3.1, §8)
	currentEvent *Event // set only while a handler is executing (spec §8 invariant 4)
}

// Config sizes the scheduler's queues. Capacities must be powers of
// two (ring buffer requirement).
type Config struct {
	NormalCapacity int
	ISRCapacity    int
}

// New builds a Scheduler. shim is the interrupt driver shim used to
// protect queue manipulation (spec §4.3.3); disp resolves target
// module handlers; log is the diagnostic drain (spec §6.5).
func New(cfg Config, shim *irq.Shim, disp Dispatcher, log corelog.Logger) *Scheduler {
	if log == nil {
		log = corelog.Discard{}
	}
	return &Scheduler{
		normal:  newRing(cfg.NormalCapacity),
		isrQ:    newRing(cfg.ISRCapacity),
		irqShim: shim,
		disp:    disp,
		log:     log,
	}
}

// PutEvent enqueues e from non-ISR context (spec §4.3.1). Fails with
// ENoMem if the normal queue is full, or EParam if an outstanding
// request with the same (source,target,cookie) is already queued
// (spec §3.10).
func (s *Scheduler) PutEvent(e Event) errcode.Code {
	var code errcode.Code
	s.irqShim.Critical(func() {
		if !e.IsResponse && !e.IsNotification && s.normal.hasKey(e.key()) {
			code = errcode.EParam
			return
		}
		if !s.normal.push(e) {
			code = errcode.ENoMem
			return
		}
		code = errcode.Success
	})
	return code
}

// PutEventFromISR enqueues e onto the ISR queue. It never blocks: on
// overflow it increments the dropped-event counter and returns
// (spec §4.3.1, §8 boundary behavior).
func (s *Scheduler) PutEventFromISR(e Event) {
	if !s.isrQ.push(e) {
		s.dropped++
		s.log.Dropf("isr queue full: dropping event source=%v target=%v", e.SourceID, e.TargetID)
	}
}

// DroppedCount returns the number of events dropped due to ISR-queue
// overflow.
func (s *Scheduler) DroppedCount() uint64 { return s.dropped }

// GetCurrentEvent returns the event currently being dispatched, if
// any (spec §4.3.1, §8 invariant 4).
func (s *Scheduler) GetCurrentEvent() (Event, bool) {
	if s.currentEvent == nil {
		return Event{}, false
	}
	return *s.currentEvent, true
}

// RunOnce drains the ISR queue, then dispatches at most one event from
// the normal queue. It reports whether any work was performed, so
// callers (Run) know when to invoke the idle hook.
func (s *Scheduler) RunOnce() (didWork bool) {
	for {
		e, ok := s.isrQ.pop()
		if !ok {
			break
		}
		s.dispatch(e)
		didWork = true
	}
	if e, ok := s.normal.pop(); ok {
		s.dispatch(e)
		didWork = true
	}
	return didWork
}

// Run drives the scheduler's main loop: pop ISR queue until empty,
// then pop one event from the normal queue, dispatch, repeat. When
// both queues are empty it invokes idle (log flush, power-down wait,
// etc. — spec §4.3.1). Run returns when stop reports true; check it
// between iterations of idle work.
func (s *Scheduler) Run(idle func(), stop func() bool) {
	for {
		if stop != nil && stop() {
			return
		}
		if !s.RunOnce() {
			if idle != nil {
				idle()
			}
		}
	}
}

func (s *Scheduler) dispatch(e Event) {
	h, ok := s.disp.HandlerFor(e.TargetID.ModuleIdx())
	if !ok {
		// Unreachable handler / unknown module: a logic bug, not a
		// recoverable runtime condition (spec §7).
		panic("sched: dispatch to unknown module")
	}

	prev := s.currentEvent
	s.currentEvent = &e
	var resp Event
	var status errcode.Code
	if e.IsNotification {
		resp, status = h.ProcessNotification(e)
	} else {
		resp, status = h.ProcessEvent(e)
	}
	s.currentEvent = prev

	if !e.ResponseRequested {
		return
	}
	if status != errcode.Success {
		resp = statusResponse(status)
	}
	out := e.response(resp)
	if code := s.PutEvent(out); code != errcode.Success {
		s.log.Errorf("failed to post response source=%v target=%v: %v", out.SourceID, out.TargetID, code)
	}
}

// statusResponse builds a response event whose Params carry the
// handler's non-success status code (spec §4.3.2: "Handler errors are
// converted into a response whose params carry a status code"). The
// correlation fields (source/target/cookie) are filled in afterward
// by e.response(resp).
func statusResponse(status errcode.Code) Event {
	var r Event
	copy(r.Params[:], []byte(string(status)))
	return r
}
