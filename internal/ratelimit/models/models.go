// Package models holds the rate limit policy and the per-request decision.
package models

import "time"

// Policy caps requests per caller within a rolling window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of one check. Remaining and ResetAt feed the
// X-RateLimit-* response headers.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait before the caller's window frees a slot.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}
