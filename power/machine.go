// Package power implements the hierarchical power-domain state
// machine (spec §4.6): the canonical "hard" client of the
// registry/scheduler/notify stack. A static tree of domains (system,
// clusters, cores, devices) each carry a per-parent-state allowed
// mask, a driver, and an optional pre-transition notification round
// that subscribers may veto.
package power

import (
	"scpcore-go/corelog"
	"scpcore-go/errcode"
	"scpcore-go/id"
	"scpcore-go/notify"
	"scpcore-go/sched"
	"scpcore-go/x/timex"
)

// Notification IDs the power-domain module emits, scoped under the
// module index the Machine is registered at.
type Notifications struct {
	PreTransition id.ID
	Transition    id.ID
	PreShutdown   id.ID
	PreWarmReset  id.ID
}

// NotificationsFor builds the standard notification ID set for a
// power-domain module registered at moduleIdx.
func NotificationsFor(moduleIdx int) Notifications {
	return Notifications{
		PreTransition: id.Notification(moduleIdx, 0),
		Transition:    id.Notification(moduleIdx, 1),
		PreShutdown:   id.Notification(moduleIdx, 2),
		PreWarmReset:  id.Notification(moduleIdx, 3),
	}
}

// Machine owns the domain tree and drives every transition through
// it. It implements sched.Handler so the registry can dispatch
// pre-transition acknowledgement events (which travel back as
// ordinary response events) straight into the state machine.
type Machine struct {
	moduleIdx int
	notifs    Notifications

	bus *notify.Bus
	log corelog.Logger

	domains map[id.ID]*Domain
	roots   []*Domain
}

// NewMachine returns an empty Machine. moduleIdx is the module index
// this machine is registered at in the registry (domains are
// addressed as elements of that module).
func NewMachine(moduleIdx int, bus *notify.Bus, log corelog.Logger) *Machine {
	if log == nil {
		log = corelog.Discard{}
	}
	return &Machine{
		moduleIdx: moduleIdx,
		notifs:    NotificationsFor(moduleIdx),
		bus:       bus,
		log:       log,
		domains:   make(map[id.ID]*Domain),
	}
}

// Notifications returns the notification IDs this machine emits.
func (m *Machine) Notifications() Notifications { return m.notifs }

// AddDomain registers a new domain as elementIdx of the machine's
// module, optionally parented under an already-registered domain.
func (m *Machine) AddDomain(elementIdx int, name string, typ Type, driver Driver, maskTable map[State]Mask, parent *Domain, preTransitionEnabled bool) *Domain {
	d := &Domain{
		id:                                id.Element(m.moduleIdx, elementIdx),
		typ:                               typ,
		name:                              name,
		parent:                            parent,
		allowedStateMaskTable:             maskTable,
		driver:                            driver,
		preTransitionNotificationsEnabled: preTransitionEnabled,
	}
	m.domains[d.id] = d
	if parent != nil {
		parent.children = append(parent.children, d)
	} else {
		m.roots = append(m.roots, d)
	}
	return d
}

// Domain looks up a registered domain by ID.
func (m *Machine) Domain(domainID id.ID) (*Domain, bool) {
	d, ok := m.domains[domainID]
	return d, ok
}

// ProcessEvent implements sched.Handler: response events addressed to
// a domain are pre-transition (or post-transition) notification acks.
func (m *Machine) ProcessEvent(e sched.Event) (sched.Event, errcode.Code) {
	d, ok := m.domains[e.TargetID]
	if !ok {
		return sched.Event{}, errcode.EParam
	}
	if !e.IsResponse {
		return sched.Event{}, errcode.ESupport
	}
	switch e.EventID {
	case m.notifs.PreTransition, m.notifs.PreShutdown:
		m.handlePendingAck(d, e)
		return sched.Event{}, errcode.Success
	case m.notifs.Transition:
		// Post-transition acks are informational only (spec §4.6.5
		// step 2: "collect responses so later code can depend on them
		// being handled"); the state machine itself does not gate on
		// them.
		return sched.Event{}, errcode.Success
	default:
		return sched.Event{}, errcode.ESupport
	}
}

// ProcessNotification implements sched.Handler. The power-domain
// module is a notification source, not a subscriber of its own
// events, so this is never expected to fire in practice.
func (m *Machine) ProcessNotification(e sched.Event) (sched.Event, errcode.Code) {
	return sched.Event{}, errcode.ESupport
}

func (m *Machine) handlePendingAck(d *Domain, e sched.Event) {
	p := d.pendingPreTransition
	if p == nil {
		return
	}
	if status := sched.StatusParams(e); status != "" && status != string(errcode.Success) {
		p.vetoed = true
		p.vetoCode = errcode.Code(status)
	}
	p.arrived++
	if p.arrived < p.expected {
		return
	}
	d.pendingPreTransition = nil
	if p.vetoed {
		code := p.vetoCode
		if code == "" {
			code = errcode.EDevice
		}
		p.onReady(code)
		return
	}
	p.onReady(errcode.Success)
}

// SetState requests domainID transition to target (spec §4.6.3).
// Requesting ON on a domain whose ancestors are not themselves ON
// first cascades an ON sweep up the ancestor chain (spec §4.6.4),
// arriving at domainID last. done is invoked exactly once, when the
// whole request (including any cascade) settles.
func (m *Machine) SetState(domainID id.ID, target State, done func(code errcode.Code)) errcode.Code {
	d, ok := m.domains[domainID]
	if !ok {
		if done != nil {
			done(errcode.EParam)
		}
		return errcode.EParam
	}
	if target != StateOn {
		return m.transition(d, target, false, done)
	}

	chain := append(ancestorsTopDown(d), d)
	return m.runChain(chain, target, done)
}

// runChain drives each domain in steps, in order, to target, only
// starting the next step once the previous one has fully settled.
func (m *Machine) runChain(steps []*Domain, target State, done func(code errcode.Code)) errcode.Code {
	if len(steps) == 0 {
		if done != nil {
			done(errcode.Success)
		}
		return errcode.Success
	}
	return m.runChainStep(steps, 0, target, done)
}

func (m *Machine) runChainStep(steps []*Domain, idx int, target State, done func(code errcode.Code)) errcode.Code {
	d := steps[idx]
	next := func(code errcode.Code) {
		if code != errcode.Success {
			if done != nil {
				done(code)
			}
			return
		}
		if idx+1 >= len(steps) {
			if done != nil {
				done(errcode.Success)
			}
			return
		}
		m.runChainStep(steps, idx+1, target, done)
	}
	return m.transition(d, target, true, next)
}

// transition implements the single-domain protocol of spec §4.6.3.
// fromTree bypasses the child-state compatibility check, for use by
// composite tree/ancestor-cascade operations that have already
// sequenced their children correctly.
func (m *Machine) transition(d *Domain, target State, fromTree bool, done func(code errcode.Code)) errcode.Code {
	if d.currentState == target && !d.InFlight() {
		m.callDone(done, errcode.Success)
		return errcode.Success
	}
	if d.parent != nil {
		mask := d.parent.allowedStateMaskTable[d.parent.currentState]
		if !mask.Allows(target) {
			m.callDone(done, errcode.EState)
			return errcode.EState
		}
	}
	if !fromTree {
		for _, c := range d.children {
			childMask := d.allowedStateMaskTable[target]
			if !childMask.Allows(c.currentState) {
				m.callDone(done, errcode.EState)
				return errcode.EState
			}
		}
	}
	if d.InFlight() {
		d.requestedState = target
		d.onComplete = done
		return errcode.Pending
	}

	if !d.preTransitionNotificationsEnabled || !m.bus.HasSubscribers(m.notifs.PreTransition, d.id) {
		d.onComplete = done
		m.driveTransition(d, target)
		return errcode.Pending
	}

	delivered := m.bus.Notify(sched.Event{
		SourceID:          d.id,
		EventID:           m.notifs.PreTransition,
		ResponseRequested: true,
	})
	if delivered == 0 {
		d.onComplete = done
		m.driveTransition(d, target)
		return errcode.Pending
	}
	d.onComplete = done
	d.pendingPreTransition = &pendingAck{
		expected: delivered,
		target:   target,
		onReady: func(code errcode.Code) {
			if code != errcode.Success {
				m.fail(d, code)
				return
			}
			m.driveTransition(d, target)
		},
	}
	return errcode.Pending
}

func (m *Machine) callDone(done func(code errcode.Code), code errcode.Code) {
	if done != nil {
		done(code)
	}
}

func (m *Machine) fail(d *Domain, code errcode.Code) {
	m.log.Errorf("power: %s transition to domain %v failed: %s", d.name, d.id, code)
	cb := d.onComplete
	d.onComplete = nil
	if cb != nil {
		cb(code)
	}
}

func (m *Machine) driveTransition(d *Domain, target State) {
	d.requestedState = target
	d.stateRequestedToDriver = target
	d.stalledSince = timex.NowMs()
	code := d.driver.SetState(d.id, target)
	if code != errcode.Success {
		d.stateRequestedToDriver = d.currentState
		d.stalledSince = 0
		m.fail(d, code)
		return
	}
	m.log.Lifecyclef("power: %s requested -> %d", d.name, target)
	// Driver will call ReportPowerStateTransition once the hardware
	// transition completes (spec §6.3); PollStalledTransitions covers
	// drivers that don't.
}

// ReportPowerStateTransition is the driver's completion callback
// (spec §4.6.5). The caller is expected to invoke this once per
// completed transition; a driver that never calls it leaves the
// domain in flight until PollStalledTransitions reads the driver's
// state back and either synthesizes this report or surfaces
// errcode.EDevice.
func (m *Machine) ReportPowerStateTransition(domainID id.ID, achieved State) errcode.Code {
	d, ok := m.domains[domainID]
	if !ok {
		return errcode.EParam
	}
	d.currentState = achieved

	m.bus.Notify(sched.Event{SourceID: d.id, EventID: m.notifs.Transition})

	if achieved == d.requestedState {
		d.stateRequestedToDriver = achieved
		d.stalledSince = 0
		cb := d.onComplete
		d.onComplete = nil
		if cb != nil {
			cb(errcode.Success)
		}
		return errcode.Success
	}
	// A newer request was coalesced in while this one was in flight;
	// loop back into the protocol for it (spec §4.6.5 step 4).
	m.driveTransition(d, d.requestedState)
	return errcode.Success
}

// SetTreeState sweeps an entire subtree to target: parents before
// children for ON, children before parents for OFF (spec §4.6.4). A
// step's failure aborts the remaining steps; done receives the
// failing code, or Success once every step settles.
func (m *Machine) SetTreeState(root *Domain, target State, done func(code errcode.Code)) errcode.Code {
	var order []*Domain
	if target == StateOn {
		order = levelOrder(root)
	} else {
		order = reverseLevelOrder(root)
	}
	return m.runChain(order, target, done)
}

// SystemShutdown broadcasts a pre_shutdown notification from root,
// awaits acknowledgement, then sweeps the whole tree OFF and finally
// invokes the system driver's Shutdown (spec §4.6.6). Reset and
// cold-reset modes follow the identical sequence; mode is passed
// through to the system driver unchanged.
func (m *Machine) SystemShutdown(root *Domain, mode ShutdownMode, sysDriver SystemDriver, done func(code errcode.Code)) errcode.Code {
	proceed := func(code errcode.Code) {
		if code != errcode.Success {
			if done != nil {
				done(code)
			}
			return
		}
		m.SetTreeState(root, StateOff, func(sweepCode errcode.Code) {
			if sweepCode != errcode.Success {
				if done != nil {
					done(sweepCode)
				}
				return
			}
			finalCode := sysDriver.Shutdown(mode)
			if done != nil {
				done(finalCode)
			}
		})
	}

	if !m.bus.HasSubscribers(m.notifs.PreShutdown, root.id) {
		proceed(errcode.Success)
		return errcode.Pending
	}

	delivered := m.bus.Notify(sched.Event{
		SourceID:          root.id,
		EventID:           m.notifs.PreShutdown,
		ResponseRequested: true,
	})
	if delivered == 0 {
		proceed(errcode.Success)
		return errcode.Pending
	}
	root.pendingPreTransition = &pendingAck{
		expected: delivered,
		target:   StateOff,
		onReady:  proceed,
	}
	return errcode.Pending
}

// WarmReset emits a pre_warm_reset notification from root and
// returns immediately; recipients may perform save/restore work but
// no acknowledgement is required (spec §4.6.7).
func (m *Machine) WarmReset(root *Domain) {
	m.bus.Notify(sched.Event{SourceID: root.id, EventID: m.notifs.PreWarmReset})
}
