package power

import (
	"testing"

	"scpcore-go/errcode"
	"scpcore-go/id"
	"scpcore-go/irq"
	"scpcore-go/notify"
	"scpcore-go/sched"
)

type fakeIRQDriver struct{}

func (f *fakeIRQDriver) GlobalDisable() bool { return false }
func (f *fakeIRQDriver) GlobalEnable(bool)   {}
func (f *fakeIRQDriver) Enable(irq.Line) errcode.Code            { return errcode.Success }
func (f *fakeIRQDriver) Disable(irq.Line) errcode.Code           { return errcode.Success }
func (f *fakeIRQDriver) IsEnabled(irq.Line) (bool, errcode.Code) { return false, errcode.Success }
func (f *fakeIRQDriver) IsPending(irq.Line) (bool, errcode.Code) { return false, errcode.Success }
func (f *fakeIRQDriver) SetPending(irq.Line) errcode.Code        { return errcode.Success }
func (f *fakeIRQDriver) ClearPending(irq.Line) errcode.Code      { return errcode.Success }
func (f *fakeIRQDriver) SetISR(irq.Line, irq.ISR) errcode.Code   { return errcode.Success }
func (f *fakeIRQDriver) SetISRParam(irq.Line, irq.ISR, any) errcode.Code {
	return errcode.Success
}
func (f *fakeIRQDriver) SetISRNMI(irq.ISR) errcode.Code   { return errcode.Success }
func (f *fakeIRQDriver) SetISRFault(irq.ISR) errcode.Code { return errcode.Success }
func (f *fakeIRQDriver) GetCurrent() irq.Line             { return irq.LineNone }
func (f *fakeIRQDriver) IsInterruptContext() bool         { return false }

type noopDispatcher struct{}

func (noopDispatcher) HandlerFor(int) (sched.Handler, bool) { return nil, false }

// recordingDriver reports the hardware transition back to the machine
// synchronously, as if the hardware always completes instantly. It
// appends its own name to a shared call log in SetState's invocation
// order, letting a test assert tree-sweep ordering.
type recordingDriver struct {
	m    *Machine
	name string
	log  *[]string
}

func (d *recordingDriver) SetState(domainID id.ID, newState State) errcode.Code {
	*d.log = append(*d.log, d.name)
	d.m.ReportPowerStateTransition(domainID, newState)
	return errcode.Success
}

func (d *recordingDriver) GetState(id.ID) (State, errcode.Code) { return StateOff, errcode.Success }
func (d *recordingDriver) Reset(id.ID) errcode.Code              { return errcode.Success }
func (d *recordingDriver) PrepareCoreForSystemSuspend(id.ID) errcode.Code {
	return errcode.Success
}

func offOnMask() map[State]Mask {
	return map[State]Mask{
		StateOff: MaskOf(StateOff),
		StateOn:  MaskOf(StateOff, StateOn),
	}
}

// buildTree wires system -> cluster0 -> {core0, core1, device0}. Each
// domain's driver appends its own name to calls when asked to
// transition. preTransitionFor names the subset of domains that have
// pre-transition notifications enabled.
func buildTree(t *testing.T, bus *notify.Bus, calls *[]string, preTransitionFor map[string]bool) (m *Machine, system, cluster0, core0, core1, device0 *Domain) {
	t.Helper()
	m = NewMachine(0, bus, nil)

	mk := func(name string) *recordingDriver { return &recordingDriver{m: m, name: name, log: calls} }

	system = m.AddDomain(0, "system", TypeSystem, mk("system"), offOnMask(), nil, preTransitionFor["system"])
	cluster0 = m.AddDomain(1, "cluster0", TypeCluster, mk("cluster0"), offOnMask(), system, preTransitionFor["cluster0"])
	core0 = m.AddDomain(2, "core0", TypeCore, mk("core0"), nil, cluster0, preTransitionFor["core0"])
	core1 = m.AddDomain(3, "core1", TypeCore, mk("core1"), nil, cluster0, preTransitionFor["core1"])
	device0 = m.AddDomain(4, "device0", TypeDevice, mk("device0"), nil, cluster0, preTransitionFor["device0"])
	return m, system, cluster0, core0, core1, device0
}

func TestSetStateCascadesAncestorsOnBeforeLeaf(t *testing.T) {
	shim := irq.New()
	shim.Register(&fakeIRQDriver{})
	sc := sched.New(sched.Config{NormalCapacity: 8, ISRCapacity: 8}, shim, noopDispatcher{}, nil)
	bus := notify.NewBus(4, shim, sc)

	var calls []string
	m, system, cluster0, core0, core1, device0 := buildTree(t, bus, &calls, nil)

	var gotCode errcode.Code
	code := m.SetState(core0.ID(), StateOn, func(c errcode.Code) { gotCode = c })
	if code != errcode.Pending {
		t.Fatalf("SetState = %v, want Pending", code)
	}
	if gotCode != errcode.Success {
		t.Fatalf("completion code = %v, want Success", gotCode)
	}

	want := []string{"system", "cluster0", "core0"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}

	if system.CurrentState() != StateOn || cluster0.CurrentState() != StateOn || core0.CurrentState() != StateOn {
		t.Fatalf("system=%v cluster0=%v core0=%v, want all On", system.CurrentState(), cluster0.CurrentState(), core0.CurrentState())
	}
	if core1.CurrentState() != StateOff || device0.CurrentState() != StateOff {
		t.Fatalf("core1=%v device0=%v, want both Off untouched", core1.CurrentState(), device0.CurrentState())
	}
}

func TestSetStateVetoedByPreTransitionSubscriberLeavesDomainUnchanged(t *testing.T) {
	shim := irq.New()
	shim.Register(&fakeIRQDriver{})
	sc := sched.New(sched.Config{NormalCapacity: 8, ISRCapacity: 8}, shim, noopDispatcher{}, nil)
	bus := notify.NewBus(4, shim, sc)

	var calls []string
	m, _, _, core0, _, _ := buildTree(t, bus, &calls, map[string]bool{"core0": true})

	watcher := id.Element(5, 0)
	if code := bus.Subscribe(m.Notifications().PreTransition, core0.ID(), watcher); code != errcode.Success {
		t.Fatalf("Subscribe = %v", code)
	}

	var gotCode errcode.Code
	var completed bool
	code := m.SetState(core0.ID(), StateOn, func(c errcode.Code) { gotCode, completed = c, true })
	if code != errcode.Pending {
		t.Fatalf("SetState = %v, want Pending", code)
	}
	if completed {
		t.Fatalf("completion callback fired before the watcher acked")
	}

	var params [sched.ParamsLen]byte
	copy(params[:], string(errcode.EDevice))
	vetoAck := sched.Event{
		SourceID:   watcher,
		TargetID:   core0.ID(),
		EventID:    m.Notifications().PreTransition,
		IsResponse: true,
		Params:     params,
	}
	if _, status := m.ProcessEvent(vetoAck); status != errcode.Success {
		t.Fatalf("ProcessEvent(veto ack) = %v", status)
	}

	if !completed {
		t.Fatalf("completion callback never fired after the veto ack")
	}
	if gotCode != errcode.EDevice {
		t.Fatalf("completion code = %v, want EDevice", gotCode)
	}
	if core0.CurrentState() != StateOff {
		t.Fatalf("core0 state = %v, want Off (unchanged)", core0.CurrentState())
	}
	for _, c := range calls {
		if c == "core0" {
			t.Fatalf("driver.SetState called for core0 despite veto; calls = %v", calls)
		}
	}
}

func TestReportPowerStateTransitionLoopsBackForCoalescedRequest(t *testing.T) {
	shim := irq.New()
	shim.Register(&fakeIRQDriver{})
	sc := sched.New(sched.Config{NormalCapacity: 8, ISRCapacity: 8}, shim, noopDispatcher{}, nil)
	bus := notify.NewBus(4, shim, sc)

	var calls []string
	m := NewMachine(0, bus, nil)
	var driverCalls int
	var pendingDomain id.ID
	driver := &blockingDriver{onSetState: func(domainID id.ID, s State) {
		driverCalls++
		pendingDomain = domainID
		calls = append(calls, "blocked")
	}}
	d := m.AddDomain(0, "solo", TypeDevice, driver, offOnMask(), nil, false)

	code := m.SetState(d.ID(), StateOn, nil)
	if code != errcode.Pending {
		t.Fatalf("SetState = %v, want Pending", code)
	}
	if !d.InFlight() {
		t.Fatalf("domain should be in flight awaiting driver confirmation")
	}

	// A second request arrives while the first is still outstanding;
	// it must be coalesced rather than rejected or queued twice.
	code = m.SetState(d.ID(), StateOff, nil)
	if code != errcode.Pending {
		t.Fatalf("coalesced SetState = %v, want Pending", code)
	}

	m.ReportPowerStateTransition(pendingDomain, StateOn)
	if d.CurrentState() != StateOn {
		t.Fatalf("current state = %v, want On after first confirmation", d.CurrentState())
	}
	if driverCalls != 2 {
		t.Fatalf("driver calls = %d, want 2 (initial + coalesced Off)", driverCalls)
	}

	m.ReportPowerStateTransition(pendingDomain, StateOff)
	if d.CurrentState() != StateOff {
		t.Fatalf("current state = %v, want Off after coalesced confirmation", d.CurrentState())
	}
}

// blockingDriver never confirms its own SetState call inline, so the
// domain stays in flight until the test drives
// Machine.ReportPowerStateTransition itself.
type blockingDriver struct {
	onSetState func(domainID id.ID, newState State)
}

func (d *blockingDriver) SetState(domainID id.ID, newState State) errcode.Code {
	d.onSetState(domainID, newState)
	return errcode.Success
}

func (d *blockingDriver) GetState(id.ID) (State, errcode.Code) { return StateOff, errcode.Success }
func (d *blockingDriver) Reset(id.ID) errcode.Code              { return errcode.Success }
func (d *blockingDriver) PrepareCoreForSystemSuspend(id.ID) errcode.Code {
	return errcode.Success
}

// silentDriver never calls back at all; GetState reports whatever
// readState currently holds, simulating a non-compliant driver that
// completed the hardware transition without issuing the
// ReportPowerStateTransition callback (spec §9 Open Question #2).
type silentDriver struct {
	readState State
}

func (d *silentDriver) SetState(id.ID, State) errcode.Code { return errcode.Success }
func (d *silentDriver) GetState(id.ID) (State, errcode.Code) {
	return d.readState, errcode.Success
}
func (d *silentDriver) Reset(id.ID) errcode.Code { return errcode.Success }
func (d *silentDriver) PrepareCoreForSystemSuspend(id.ID) errcode.Code {
	return errcode.Success
}

func TestPollStalledTransitionsSynthesizesMissedCallback(t *testing.T) {
	shim := irq.New()
	shim.Register(&fakeIRQDriver{})
	sc := sched.New(sched.Config{NormalCapacity: 4, ISRCapacity: 4}, shim, noopDispatcher{}, nil)
	bus := notify.NewBus(4, shim, sc)

	m := NewMachine(0, bus, nil)
	driver := &silentDriver{readState: StateOn}
	d := m.AddDomain(0, "solo", TypeDevice, driver, offOnMask(), nil, false)

	var gotCode errcode.Code
	code := m.SetState(d.ID(), StateOn, func(c errcode.Code) { gotCode = c })
	if code != errcode.Pending {
		t.Fatalf("SetState = %v, want Pending", code)
	}
	if !d.InFlight() {
		t.Fatal("expected domain in flight before poll")
	}

	start := Now()
	m.PollStalledTransitions(start, 100)
	if !d.InFlight() {
		t.Fatal("poll before grace elapsed should not have touched the domain")
	}
	if gotCode != "" {
		t.Fatalf("completion fired early: %v", gotCode)
	}

	m.PollStalledTransitions(start+200, 100)
	if gotCode != errcode.Success {
		t.Fatalf("completion code = %v, want Success", gotCode)
	}
	if d.CurrentState() != StateOn {
		t.Fatalf("current state = %v, want On", d.CurrentState())
	}
}

func TestPollStalledTransitionsReportsEDeviceOnMismatch(t *testing.T) {
	shim := irq.New()
	shim.Register(&fakeIRQDriver{})
	sc := sched.New(sched.Config{NormalCapacity: 4, ISRCapacity: 4}, shim, noopDispatcher{}, nil)
	bus := notify.NewBus(4, shim, sc)

	m := NewMachine(0, bus, nil)
	driver := &silentDriver{readState: StateOff} // never actually transitioned
	d := m.AddDomain(0, "solo", TypeDevice, driver, offOnMask(), nil, false)

	var gotCode errcode.Code
	m.SetState(d.ID(), StateOn, func(c errcode.Code) { gotCode = c })

	start := Now()
	m.PollStalledTransitions(start+200, 100)
	if gotCode != errcode.EDevice {
		t.Fatalf("completion code = %v, want EDevice", gotCode)
	}
	if d.InFlight() {
		t.Fatal("domain should no longer be considered in flight after surfaced failure")
	}
}

// fakeSysDriver records the shutdown mode it was asked to apply.
type fakeSysDriver struct {
	gotMode ShutdownMode
	called  bool
}

func (d *fakeSysDriver) Shutdown(mode ShutdownMode) errcode.Code {
	d.called = true
	d.gotMode = mode
	return errcode.Success
}

func TestSetTreeStateSweepsChildrenBeforeParentsGoingOff(t *testing.T) {
	shim := irq.New()
	shim.Register(&fakeIRQDriver{})
	sc := sched.New(sched.Config{NormalCapacity: 8, ISRCapacity: 8}, shim, noopDispatcher{}, nil)
	bus := notify.NewBus(4, shim, sc)

	var calls []string
	m, system, cluster0, core0, core1, device0 := buildTree(t, bus, &calls, nil)

	var upCode errcode.Code
	m.SetTreeState(system, StateOn, func(c errcode.Code) { upCode = c })
	if upCode != errcode.Success {
		t.Fatalf("bring-up code = %v, want Success", upCode)
	}
	wantUp := []string{"system", "cluster0", "core0", "core1", "device0"}
	assertCallOrder(t, calls, wantUp)

	calls = nil
	var downCode errcode.Code
	code := m.SetTreeState(system, StateOff, func(c errcode.Code) { downCode = c })
	if code != errcode.Pending {
		t.Fatalf("SetTreeState = %v, want Pending", code)
	}
	if downCode != errcode.Success {
		t.Fatalf("teardown code = %v, want Success", downCode)
	}
	wantDown := []string{"device0", "core1", "core0", "cluster0", "system"}
	assertCallOrder(t, calls, wantDown)

	for _, d := range []*Domain{system, cluster0, core0, core1, device0} {
		if d.CurrentState() != StateOff {
			t.Fatalf("domain %s left in state %v, want Off", d.ID(), d.CurrentState())
		}
	}
}

func assertCallOrder(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestSystemShutdownWithNoSubscriberSweepsTreeAndInvokesDriver(t *testing.T) {
	shim := irq.New()
	shim.Register(&fakeIRQDriver{})
	sc := sched.New(sched.Config{NormalCapacity: 8, ISRCapacity: 8}, shim, noopDispatcher{}, nil)
	bus := notify.NewBus(4, shim, sc)

	var calls []string
	m, system, _, _, core1, device0 := buildTree(t, bus, &calls, nil)
	m.SetTreeState(system, StateOn, func(errcode.Code) {})
	calls = nil

	sys := &fakeSysDriver{}
	var gotCode errcode.Code
	code := m.SystemShutdown(system, ModeShutdown, sys, func(c errcode.Code) { gotCode = c })
	if code != errcode.Pending {
		t.Fatalf("SystemShutdown = %v, want Pending", code)
	}
	if gotCode != errcode.Success {
		t.Fatalf("completion code = %v, want Success", gotCode)
	}
	if !sys.called || sys.gotMode != ModeShutdown {
		t.Fatalf("system driver Shutdown not invoked with ModeShutdown, got called=%v mode=%v", sys.called, sys.gotMode)
	}
	wantDown := []string{"device0", "core1", "core0", "cluster0", "system"}
	assertCallOrder(t, calls, wantDown)
	if core1.CurrentState() != StateOff || device0.CurrentState() != StateOff {
		t.Fatalf("expected full subtree off after shutdown")
	}
}

func TestSystemShutdownAwaitsPreShutdownSubscriberAck(t *testing.T) {
	shim := irq.New()
	shim.Register(&fakeIRQDriver{})
	sc := sched.New(sched.Config{NormalCapacity: 8, ISRCapacity: 8}, shim, noopDispatcher{}, nil)
	bus := notify.NewBus(4, shim, sc)

	var calls []string
	m, system, _, _, _, _ := buildTree(t, bus, &calls, nil)
	m.SetTreeState(system, StateOn, func(errcode.Code) {})

	watcherID := id.Module(9)
	if code := bus.Subscribe(m.Notifications().PreShutdown, system.ID(), watcherID); code != errcode.Success {
		t.Fatalf("Subscribe failed: %v", code)
	}

	sys := &fakeSysDriver{}
	var gotCode errcode.Code
	code := m.SystemShutdown(system, ModeShutdown, sys, func(c errcode.Code) { gotCode = c })
	if code != errcode.Pending {
		t.Fatalf("SystemShutdown = %v, want Pending", code)
	}
	if sys.called {
		t.Fatal("system driver invoked before pre-shutdown subscriber acknowledged")
	}

	// Simulate the subscriber's ack: a response event addressed back to
	// the root domain, as the scheduler would deliver it once the
	// watcher module calls RespondToEvent.
	ack := sched.Event{
		SourceID:   watcherID,
		TargetID:   system.ID(),
		EventID:    m.Notifications().PreShutdown,
		IsResponse: true,
	}
	if _, code := m.ProcessEvent(ack); code != errcode.Success {
		t.Fatalf("ProcessEvent(ack) = %v", code)
	}

	if !sys.called {
		t.Fatal("expected system driver Shutdown invoked once ack processed")
	}
	if gotCode != errcode.Success {
		t.Fatalf("completion code = %v, want Success", gotCode)
	}
}

func TestWarmResetNotifiesWithoutRequiringAck(t *testing.T) {
	shim := irq.New()
	shim.Register(&fakeIRQDriver{})
	sc := sched.New(sched.Config{NormalCapacity: 8, ISRCapacity: 8}, shim, noopDispatcher{}, nil)
	bus := notify.NewBus(4, shim, sc)

	var calls []string
	m, system, _, _, _, _ := buildTree(t, bus, &calls, nil)

	watcherID := id.Module(9)
	if code := bus.Subscribe(m.Notifications().PreWarmReset, system.ID(), watcherID); code != errcode.Success {
		t.Fatalf("Subscribe failed: %v", code)
	}

	m.WarmReset(system)

	if sc.DroppedCount() != 0 {
		t.Fatalf("expected no dropped events, got %d", sc.DroppedCount())
	}
}
