package store

import (
	"context"
	"math"
	"sync"
	"time"

	"dropin/internal/ratelimit/models"
)

// InMemory keeps one sliding window of request timestamps per key. It is
// per-process; use Redis when several replicas share a limit.
type InMemory struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

type InMemoryOption func(*InMemory)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemory) {
		s.now = now
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow records a request for key if fewer than limit requests happened in
// the trailing window.
func (s *InMemory) Allow(_ context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stamps := trim(s.windows[key], now.Add(-window))

	if len(stamps) >= limit {
		s.windows[key] = stamps
		resetAt := now.Add(window)
		if len(stamps) > 0 {
			resetAt = stamps[0].Add(window)
		}
		return &models.Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(resetAt.Sub(now)),
		}, nil
	}

	stamps = append(stamps, now)
	s.windows[key] = stamps
	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(stamps),
		ResetAt:   stamps[0].Add(window),
	}, nil
}

// Reset forgets the window for key.
func (s *InMemory) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// trim drops timestamps at or before cutoff. Stamps are in arrival order.
func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}

func retryAfter(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
