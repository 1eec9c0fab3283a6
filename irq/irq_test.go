package irq

import (
	"testing"

	"scpcore-go/errcode"
)

type fakeDriver struct {
	masked     bool
	maskEvents int
	enabled    map[Line]bool
	pending    map[Line]bool
	isrs       map[Line]ISR
	current    Line
	inISR      bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		enabled: map[Line]bool{},
		pending: map[Line]bool{},
		isrs:    map[Line]ISR{},
		current: LineNone,
	}
}

func (f *fakeDriver) GlobalDisable() bool { f.masked = true; f.maskEvents++; return false }
func (f *fakeDriver) GlobalEnable(bool)   { f.masked = false; f.maskEvents++ }

func (f *fakeDriver) Enable(l Line) errcode.Code    { f.enabled[l] = true; return errcode.Success }
func (f *fakeDriver) Disable(l Line) errcode.Code   { f.enabled[l] = false; return errcode.Success }
func (f *fakeDriver) IsEnabled(l Line) (bool, errcode.Code) {
	return f.enabled[l], errcode.Success
}
func (f *fakeDriver) IsPending(l Line) (bool, errcode.Code) { return f.pending[l], errcode.Success }
func (f *fakeDriver) SetPending(l Line) errcode.Code        { f.pending[l] = true; return errcode.Success }
func (f *fakeDriver) ClearPending(l Line) errcode.Code      { f.pending[l] = false; return errcode.Success }
func (f *fakeDriver) SetISR(l Line, fn ISR) errcode.Code    { f.isrs[l] = fn; return errcode.Success }
func (f *fakeDriver) SetISRParam(l Line, fn ISR, _ any) errcode.Code {
	f.isrs[l] = fn
	return errcode.Success
}
func (f *fakeDriver) SetISRNMI(fn ISR) errcode.Code   { f.isrs[LineNMI] = fn; return errcode.Success }
func (f *fakeDriver) SetISRFault(fn ISR) errcode.Code { f.isrs[LineFault] = fn; return errcode.Success }
func (f *fakeDriver) GetCurrent() Line                { return f.current }
func (f *fakeDriver) IsInterruptContext() bool        { return f.inISR }

func TestUnregisteredOperationsFailWithEInit(t *testing.T) {
	s := New()
	if _, code := s.GlobalDisable(); code != errcode.EInit {
		t.Fatalf("GlobalDisable code = %v, want EInit", code)
	}
	if code := s.Enable(0); code != errcode.EInit {
		t.Fatalf("Enable code = %v, want EInit", code)
	}
	if s.GetCurrent() != LineNone {
		t.Fatal("GetCurrent should be LineNone before registration")
	}
	if s.IsInterruptContext() {
		t.Fatal("IsInterruptContext should be false before registration")
	}
}

func TestNestedGlobalDisableRestoresExactlyOnce(t *testing.T) {
	s := New()
	d := newFakeDriver()
	s.Register(d)

	f1, code := s.GlobalDisable()
	if code != errcode.Success {
		t.Fatalf("GlobalDisable code = %v", code)
	}
	if !d.masked {
		t.Fatal("expected driver masked after first GlobalDisable")
	}
	maskEventsAfterFirst := d.maskEvents

	f2, _ := s.GlobalDisable()
	if d.maskEvents != maskEventsAfterFirst {
		t.Fatal("nested GlobalDisable should not re-mask the driver")
	}

	if code := s.GlobalEnable(f2); code != errcode.Success {
		t.Fatalf("inner GlobalEnable code = %v", code)
	}
	if !d.masked {
		t.Fatal("driver should remain masked after inner GlobalEnable (still nested)")
	}

	if code := s.GlobalEnable(f1); code != errcode.Success {
		t.Fatalf("outer GlobalEnable code = %v", code)
	}
	if d.masked {
		t.Fatal("driver should be unmasked after outermost GlobalEnable")
	}
}

func TestGlobalEnableWithoutDisableReturnsEState(t *testing.T) {
	s := New()
	s.Register(newFakeDriver())
	if code := s.GlobalEnable(0); code != errcode.EState {
		t.Fatalf("code = %v, want EState", code)
	}
}

func TestCriticalRunsUnderMaskAndRestores(t *testing.T) {
	s := New()
	d := newFakeDriver()
	s.Register(d)

	ran := false
	code := s.Critical(func() {
		ran = true
		if !d.masked {
			t.Fatal("expected masked inside Critical")
		}
	})
	if code != errcode.Success || !ran {
		t.Fatalf("Critical code=%v ran=%v", code, ran)
	}
	if d.masked {
		t.Fatal("expected unmasked after Critical returns")
	}
}

func TestLineEnableDisableDelegation(t *testing.T) {
	s := New()
	d := newFakeDriver()
	s.Register(d)

	if code := s.Enable(5); code != errcode.Success {
		t.Fatalf("Enable code = %v", code)
	}
	if en, _ := s.IsEnabled(5); !en {
		t.Fatal("expected line 5 enabled")
	}
	if code := s.Disable(5); code != errcode.Success {
		t.Fatalf("Disable code = %v", code)
	}
	if en, _ := s.IsEnabled(5); en {
		t.Fatal("expected line 5 disabled")
	}
}

func TestGetCurrentAndInterruptContext(t *testing.T) {
	s := New()
	d := newFakeDriver()
	s.Register(d)

	d.current = LineNMI
	d.inISR = true
	if s.GetCurrent() != LineNMI {
		t.Fatal("expected LineNMI")
	}
	if !s.IsInterruptContext() {
		t.Fatal("expected interrupt context true")
	}
}
