// Package ratelimit provides an optional per-connection limiter on inbound
// PUB frames, backed by golang.org/x/time/rate.
package ratelimit

import "golang.org/x/time/rate"

// Limiter bounds how many PUB frames one connection may submit per second.
// A zero-value Limiter (rate 0) is always permissive, matching the
// disabled-by-default behavior the broker ships with.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a Limiter allowing perSecond PUB frames with a burst of the
// same size. perSecond <= 0 disables limiting entirely.
func New(perSecond int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

// Allow reports whether one more PUB frame may be accepted right now.
func (l *Limiter) Allow() bool {
	if l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}
