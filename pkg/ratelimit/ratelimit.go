/*
Package ratelimit implements the token-bucket rate limiter every
reconciliation loop is gated by, wrapping golang.org/x/time/rate rather
than hand-rolling the replenish/consume arithmetic: x/time/rate's Limiter
already implements exactly the "allowance += elapsed*rate/window, cap at
rate, consume one if allowance >= 1" algorithm, token for token.
*/
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates a reconciliation loop to at most `count` operations per
// `window`. Constructed with (count, window) to match the rate/window
// vocabulary used throughout the control plane (e.g. 100 per 30s for
// placement, 10 per 30s for dispatch).
type Limiter struct {
	l *rate.Limiter
}

// New constructs a limiter allowing count operations per window, with a
// burst capacity equal to count (the bucket can hold at most `count`
// tokens, matching the "caps at rate" clause).
func New(count int, window time.Duration) *Limiter {
	r := rate.Limit(float64(count) / window.Seconds())
	return &Limiter{l: rate.NewLimiter(r, count)}
}

// Check consumes one token if available and reports whether it did. It
// never blocks — a loop that gets false simply tries the next instance or
// waits for the next pass, rather than stalling on this one.
func (l *Limiter) Check() bool {
	return l.l.Allow()
}
