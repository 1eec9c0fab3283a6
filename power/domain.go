package power

import (
	"scpcore-go/errcode"
	"scpcore-go/id"
)

// pendingAck tracks an in-flight pre-transition acknowledgement round
// for a single domain, mirroring the original framework's
// power_domain_notifications.c pending_responses counter. There is no
// "state didn't change meanwhile" flag: the round's outcome depends
// only on the acks that arrive.
type pendingAck struct {
	expected int
	arrived  int
	vetoed   bool
	vetoCode errcode.Code
	target   State
	// onReady fires exactly once all expected acks have arrived. It
	// receives errcode.Success, or the veto code if any subscriber
	// vetoed.
	onReady func(code errcode.Code)
}

// Domain is one node of the static power-domain tree (spec §3.9).
type Domain struct {
	id       id.ID
	typ      Type
	name     string
	parent   *Domain
	children []*Domain

	currentState           State
	requestedState         State
	stateRequestedToDriver State
	stalledSince           int64 // set when a driver transition is issued; read by PollStalledTransitions

	// allowedStateMaskTable[s] gives the mask of states this domain's
	// children may be in while this domain itself is in state s (spec
	// §3.9). A leaf with no children carries an empty table.
	allowedStateMaskTable map[State]Mask

	driver Driver

	preTransitionNotificationsEnabled bool
	pendingPreTransition              *pendingAck

	onComplete func(code errcode.Code)
}

// ID returns the domain's identifier.
func (d *Domain) ID() id.ID { return d.id }

// CurrentState returns the domain's last-confirmed state.
func (d *Domain) CurrentState() State { return d.currentState }

// InFlight reports whether a driver transition is outstanding.
func (d *Domain) InFlight() bool { return d.stateRequestedToDriver != d.currentState }

// ancestorsTopDown returns d's ancestor chain ordered root-first, not
// including d itself.
func ancestorsTopDown(d *Domain) []*Domain {
	var chain []*Domain
	for p := d.parent; p != nil; p = p.parent {
		chain = append([]*Domain{p}, chain...)
	}
	return chain
}

// levelOrder returns d and its descendants ordered parent-before-child
// (breadth-first): the order a subtree ON sweep must follow (spec
// §4.6.4).
func levelOrder(d *Domain) []*Domain {
	var order []*Domain
	queue := []*Domain{d}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		queue = append(queue, cur.children...)
	}
	return order
}

// reverseLevelOrder returns d and its descendants ordered
// child-before-parent: the order a subtree OFF sweep must follow
// (spec §4.6.4).
func reverseLevelOrder(d *Domain) []*Domain {
	order := levelOrder(d)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
