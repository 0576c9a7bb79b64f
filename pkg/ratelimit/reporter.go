// Package ratelimit suppresses duplicate log output for recurring best-effort failures.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultCooldown is used when a Reporter is built with a non-positive cooldown.
const DefaultCooldown = 30 * time.Second

// Reporter decides whether a failure identified by key should be logged again.
// It only gates log output; callers still see every error.
type Reporter struct {
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

type Option func(*Reporter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

func NewReporter(cooldown time.Duration, opts ...Option) *Reporter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	r := &Reporter{
		cooldown: cooldown,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ShouldLog returns true and records the time when key was never logged or
// its last log is older than the cooldown.
func (r *Reporter) ShouldLog(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	last, seen := r.last[key]
	if seen && now.Sub(last) <= r.cooldown {
		return false
	}

	r.last[key] = now

	return true
}

// Cooldown returns the configured suppression window.
func (r *Reporter) Cooldown() time.Duration {
	return r.cooldown
}
