// Package notify implements the many-to-many publish/subscribe
// notification bus (spec §4.5): subscriptions are drawn from a
// bounded, first-fit free-pool exactly as the original framework's
// notification_ctx.free_subscription_dlist allocates and releases
// fwk_notification_subscription records, and fan-out delivery goes
// through the event scheduler's queues.
package notify

import (
	"scpcore-go/errcode"
	"scpcore-go/id"
	"scpcore-go/irq"
	"scpcore-go/sched"
)

type subscription struct {
	notifID  id.ID
	sourceID id.ID
	targetID id.ID
}

type key struct {
	notifID  id.ID
	sourceID id.ID
}

// Bus owns the subscription pool and the per-(notification,source)
// delivery lists, and posts fan-out events through a Scheduler.
type Bus struct {
	shim *irq.Shim
	sc   *sched.Scheduler

	pool []subscription
	free []int // indices available for allocation, first-fit (front of slice)

	// lists maps a (notification, source) pair to the ordered list of
	// pool indices subscribed to it — ordered by subscribe time, which
	// is what gives Notify its per-source delivery ordering guarantee.
	lists map[key][]int

	dropped uint64
}

// NewBus returns a Bus whose subscription pool holds exactly capacity
// records. The pool never grows (spec §3.8: "No dynamic growth").
func NewBus(capacity int, shim *irq.Shim, sc *sched.Scheduler) *Bus {
	free := make([]int, capacity)
	for i := range free {
		free[i] = i
	}
	return &Bus{
		shim:  shim,
		sc:    sc,
		pool:  make([]subscription, capacity),
		free:  free,
		lists: make(map[key][]int),
	}
}

// DroppedCount returns the number of fan-out posts dropped due to a
// full scheduler queue (spec §4.5.2: "best-effort ... do not fail
// the caller").
func (b *Bus) DroppedCount() uint64 { return b.dropped }

func validEntity(i id.ID) bool {
	if i.IsNone() {
		return false
	}
	switch i.Kind() {
	case id.KindModule, id.KindElement, id.KindSubElement:
		return true
	default:
		return false
	}
}

// Subscribe registers target to receive notifID events emitted by
// sourceID (spec §4.5.1). It MUST NOT be called from ISR context.
func (b *Bus) Subscribe(notifID, sourceID, targetID id.ID) errcode.Code {
	if b.shim.IsInterruptContext() {
		return errcode.EAccess
	}
	if !notifID.IsType(id.KindNotification) || !validEntity(sourceID) || !validEntity(targetID) {
		return errcode.EParam
	}
	if notifID.ModuleIdx() != sourceID.ModuleIdx() {
		return errcode.EParam
	}

	k := key{notifID, sourceID}
	var code errcode.Code
	b.shim.Critical(func() {
		for _, idx := range b.lists[k] {
			if b.pool[idx].targetID == targetID {
				code = errcode.EState // ALREADY: duplicate (source,target) pair
				return
			}
		}
		if len(b.free) == 0 {
			code = errcode.ENoMem
			return
		}
		idx := b.free[0]
		b.free = b.free[1:]
		b.pool[idx] = subscription{notifID: notifID, sourceID: sourceID, targetID: targetID}
		b.lists[k] = append(b.lists[k], idx)
		code = errcode.Success
	})
	return code
}

// Unsubscribe removes a previously registered subscription. It
// returns errcode.EParam if no matching subscription exists (the
// NOT_FOUND case of spec §4.5.1).
func (b *Bus) Unsubscribe(notifID, sourceID, targetID id.ID) errcode.Code {
	if b.shim.IsInterruptContext() {
		return errcode.EAccess
	}
	k := key{notifID, sourceID}
	var code errcode.Code
	b.shim.Critical(func() {
		list := b.lists[k]
		for pos, idx := range list {
			if b.pool[idx].targetID != targetID {
				continue
			}
			b.lists[k] = append(list[:pos], list[pos+1:]...)
			b.free = append(b.free, idx)
			code = errcode.Success
			return
		}
		code = errcode.EParam
	})
	return code
}

// HasSubscribers reports whether any target is currently subscribed
// to notifID events emitted by sourceID.
func (b *Bus) HasSubscribers(notifID, sourceID id.ID) bool {
	var has bool
	b.shim.Critical(func() {
		has = len(b.lists[key{notifID, sourceID}]) > 0
	})
	return has
}

// PoolStats reports the pool's free and total capacity, satisfying
// spec §8 invariant 2 (free-pool size + sum of list lengths ==
// capacity) for external checking.
func (b *Bus) PoolStats() (free, capacity int) {
	var f int
	b.shim.Critical(func() { f = len(b.free) })
	return f, len(b.pool)
}

// Notify fans template out to every subscriber of
// (template.EventID, template.SourceID), one posted event per
// subscriber with IsNotification set and TargetID rewritten to the
// subscriber (spec §4.5.2). It returns the number of successful
// posts; posts dropped due to a full queue are not escalated to the
// caller. Delivery preserves subscribe order for a given
// (notification, source) pair.
func (b *Bus) Notify(template sched.Event) (delivered int) {
	k := key{template.EventID, template.SourceID}

	var targets []id.ID
	b.shim.Critical(func() {
		for _, idx := range b.lists[k] {
			targets = append(targets, b.pool[idx].targetID)
		}
	})

	inISR := b.shim.IsInterruptContext()
	for _, t := range targets {
		ev := template
		ev.IsNotification = true
		ev.TargetID = t

		if inISR {
			before := b.sc.DroppedCount()
			b.sc.PutEventFromISR(ev)
			if b.sc.DroppedCount() == before {
				delivered++
			} else {
				b.dropped++
			}
			continue
		}
		if code := b.sc.PutEvent(ev); code == errcode.Success {
			delivered++
		} else {
			b.dropped++
		}
	}
	return delivered
}
