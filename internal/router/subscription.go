package router

import "sync/atomic"

// Deliverer is the capability a Subscription's owner exposes to the router:
// a non-owning handle the router can use to hand a connection an outbound
// frame without the router ever holding the connection's socket itself.
// Deliver runs on the publishing goroutine, outside the router lock. An
// implementation that writes to its socket inside Deliver (as
// connection.Connection does when its write buffer is full) blocks that
// publisher until the write returns; nothing bounds that wait, so a
// subscriber whose socket stops draining stalls the publisher.
type Deliverer interface {
	// Deliver hands frame to the owning connection's write path. It
	// returns an error if the connection can no longer accept frames
	// (closed, or write side broken), which the router treats as a signal
	// to remove the subscription.
	Deliver(frame []byte) error

	// ID identifies the owning connection, used to match Subscriptions by
	// owner during connection teardown.
	ID() uint64
}

// Subscription is one client's interest in a subject: which connection
// owns it, the sid the client chose, and an optional delivery cap.
type Subscription struct {
	Owner   Deliverer
	Sid     string
	Subject string

	// Queue is parsed and stored but not acted on: queue-group fan-out
	// selection is out of scope.
	Queue string

	// unbounded and remaining are touched by Publish after the router lock
	// has been released (per the short-hold-lock discipline), so both are
	// atomic rather than guarded by the router mutex.
	unbounded atomic.Bool
	remaining atomic.Int32
}

// NewSubscription creates a Subscription with unbounded remaining
// deliveries.
func NewSubscription(owner Deliverer, subject, sid, queue string) *Subscription {
	s := &Subscription{Owner: owner, Sid: sid, Subject: subject, Queue: queue}
	s.unbounded.Store(true)
	return s
}

// SetMax bounds the subscription to max further deliveries.
func (s *Subscription) SetMax(max int) {
	s.remaining.Store(int32(max))
	s.unbounded.Store(false)
}

// deliver decrements the remaining-deliveries counter if bounded and
// reports whether the subscription is now exhausted and should be removed.
func (s *Subscription) deliver() (exhausted bool) {
	if s.unbounded.Load() {
		return false
	}
	return s.remaining.Add(-1) <= 0
}
