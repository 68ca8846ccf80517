package store

import (
	"context"
	"sync"
	"time"

	"reyu/internal/ratelimit/models"
)

// SlidingWindow keeps request timestamps per key. It is process-local; use
// Redis when several instances share traffic.
type SlidingWindow struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{windows: make(map[string][]time.Time), now: time.Now}
}

// Allow records one request for key if the window has room.
func (s *SlidingWindow) Allow(_ context.Context, key string, policy models.Policy) (models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stamps := prune(s.windows[key], now.Add(-policy.Window))
	if len(stamps) >= policy.Limit {
		s.windows[key] = stamps
		return models.Result{
			Allowed: false,
			Limit:   policy.Limit,
			ResetAt: stamps[0].Add(policy.Window),
		}, nil
	}

	stamps = append(stamps, now)
	s.windows[key] = stamps
	return models.Result{
		Allowed:   true,
		Limit:     policy.Limit,
		Remaining: policy.Limit - len(stamps),
		ResetAt:   stamps[0].Add(policy.Window),
	}, nil
}

// prune drops timestamps at or before cutoff. stamps is in arrival order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
