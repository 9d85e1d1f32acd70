// Package router implements the subject-token subscription index and the
// mutex-guarded façade that serializes subscribe/publish/unsubscribe
// against it.
package router

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/adred-codev/natsd/internal/metrics"
	"github.com/adred-codev/natsd/internal/protocol"
)

// Router is the single shared mutable structure in the broker: a
// subject-token trie behind one mutex. All of {subscribe, match,
// remove_where} happen while the mutex is held, but the hold is kept short —
// Publish clones out per-subscriber write handles and the prebuilt frame
// under the lock, then releases it before calling out to any Deliverer.
type Router struct {
	mu     sync.Mutex
	trie   *trie
	logger zerolog.Logger
}

// New returns an empty Router that logs slow-consumer drops through logger.
func New(logger zerolog.Logger) *Router {
	return &Router{trie: newTrie(), logger: logger}
}

// Subscribe records sub's interest in subject.
func (r *Router) Subscribe(subject string, sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trie.subscribe(subject, sub)
}

// UnsubscribeNow removes every subscription owned by owner with the given
// sid, unconditionally. Used for `UNSUB sid` with no max.
func (r *Router) UnsubscribeNow(owner Deliverer, sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trie.removeWhere(func(s *Subscription) bool {
		return s.Owner.ID() == owner.ID() && s.Sid == sid
	})
}

// SetMax finds owner's subscription for sid and bounds it to max further
// deliveries. Used for `UNSUB sid max`. Reports whether a matching
// subscription was found.
func (r *Router) SetMax(owner Deliverer, sid string, max int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	r.walkAll(func(s *Subscription) {
		if s.Owner.ID() == owner.ID() && s.Sid == sid {
			s.SetMax(max)
			found = true
		}
	})
	return found
}

// RemoveOwner removes every subscription owned by owner. Called once on
// connection teardown.
func (r *Router) RemoveOwner(owner Deliverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trie.removeWhere(func(s *Subscription) bool {
		return s.Owner.ID() == owner.ID()
	})
}

// Count returns the trie's terminal-leaf count, exposed for the periodic
// stats line and the subscription gauge.
func (r *Router) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trie.count()
}

// CountForOwner returns how many subscriptions owner currently holds,
// for the per-connection disconnect log line.
func (r *Router) CountForOwner(owner Deliverer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	r.walkAll(func(s *Subscription) {
		if s.Owner.ID() == owner.ID() {
			n++
		}
	})
	return n
}

// walkAll visits every subscription in the trie. Callers must already hold
// r.mu.
func (r *Router) walkAll(fn func(*Subscription)) {
	var walk func(n *node)
	walk = func(n *node) {
		for _, s := range n.subs {
			fn(s)
		}
		for i := range n.children.items {
			walk(n.children.items[i].node)
		}
	}
	walk(r.trie.root)
}

// delivery is a subscriber snapshot taken under the router lock: enough to
// build and send that subscriber's frame after the lock is released.
type delivery struct {
	sub *Subscription
}

// Publish looks up subject and, for every currently matching subscription,
// sends a MSG frame built from reply/payload. It returns the number of
// subscriptions whose Deliver accepted the frame; a failed Deliver is not
// counted and marks that subscription for removal.
// Publish never holds the router lock while calling into a Deliverer.
func (r *Router) Publish(subject, reply string, payload []byte) int {
	prefix, suffix := protocol.BuildMsgFrame(subject, reply, payload)

	r.mu.Lock()
	n := r.trie.match(subject)
	var snapshot []delivery
	if n != nil {
		snapshot = make([]delivery, len(n.subs))
		for i, s := range n.subs {
			snapshot[i] = delivery{sub: s}
		}
	}
	r.mu.Unlock()

	if len(snapshot) == 0 {
		return 0
	}

	failed := make(map[*Subscription]bool)
	exhausted := make(map[*Subscription]bool)

	delivered := 0
	for _, d := range snapshot {
		frame := protocol.AppendTo(nil, prefix, d.sub.Sid, suffix)
		if err := d.sub.Owner.Deliver(frame); err != nil {
			failed[d.sub] = true
			continue
		}
		delivered++
		if d.sub.deliver() {
			exhausted[d.sub] = true
		}
	}

	if len(failed) == 0 && len(exhausted) == 0 {
		return delivered
	}

	for s := range failed {
		metrics.RecordSlowConsumerDrop()
		r.logger.Warn().
			Uint64("client_id", s.Owner.ID()).
			Str("subject", s.Subject).
			Str("sid", s.Sid).
			Msg("slow consumer dropped")
	}

	r.mu.Lock()
	r.trie.removeWhere(func(s *Subscription) bool {
		return failed[s] || exhausted[s]
	})
	r.mu.Unlock()

	return delivered
}
