package power

import (
	"scpcore-go/errcode"
	"scpcore-go/x/mathx"
	"scpcore-go/x/timex"
)

// stallGraceMs is the default grace period PollStalledTransitions
// waits for a driver's ReportPowerStateTransition callback before
// attempting the GetState read-back workaround (spec §9 Open
// Question #2).
const stallGraceMs = 1000

// minStallGraceMs/maxStallGraceMs bound a caller-supplied grace
// period: too small and a slow-but-compliant driver gets spuriously
// read back mid-transition; too large defeats the point of the
// workaround.
const (
	minStallGraceMs = 10
	maxStallGraceMs = 60_000
)

// PollStalledTransitions scans every in-flight domain and, for any
// whose driver has gone silent past graceMs since SetState was
// issued, reads the driver back directly instead of waiting forever.
// A read-back matching the requested state is treated as the missed
// callback (spec requires drivers to call back; this only compensates
// non-compliant ones). A mismatch surfaces errcode.EDevice to the
// domain's pending completion, exactly as a vetoed transition would.
//
// Several of the original framework's modules were observed polling
// get_state immediately after set_state to work around drivers that
// never issue the completion callback (spec §9); this is that
// workaround, but gated on a grace period and opt-in per call site
// (e.g. the scheduler's idle hook) rather than unconditional.
func (m *Machine) PollStalledTransitions(nowMs int64, graceMs int64) {
	if graceMs <= 0 {
		graceMs = stallGraceMs
	}
	graceMs = mathx.Clamp(graceMs, minStallGraceMs, maxStallGraceMs)
	for _, d := range m.domains {
		if !d.InFlight() || d.stalledSince == 0 {
			continue
		}
		if nowMs-d.stalledSince < graceMs {
			continue
		}
		m.readBack(d)
	}
}

// Now is a convenience wrapper over x/timex for callers that don't
// otherwise need to depend on it directly.
func Now() int64 { return timex.NowMs() }

func (m *Machine) readBack(d *Domain) {
	got, code := d.driver.GetState(d.id)
	if code != errcode.Success {
		m.reportStallFailure(d, errcode.EDevice)
		return
	}
	if got != d.stateRequestedToDriver {
		m.reportStallFailure(d, errcode.EDevice)
		return
	}
	// Driver actually completed the transition but never called back:
	// synthesize the report ourselves.
	m.ReportPowerStateTransition(d.id, got)
}

func (m *Machine) reportStallFailure(d *Domain, code errcode.Code) {
	d.stalledSince = 0
	d.stateRequestedToDriver = d.currentState
	m.log.Errorf("power: %s driver read-back mismatch after stall, reporting %s", d.name, code)
	cb := d.onComplete
	d.onComplete = nil
	if cb != nil {
		cb(code)
	}
}
