// Package ratelimit implements the fixed-window request limiters guarding
// the HTTP surface: a per-IP limiter with a flat quota and a per-tenant
// limiter with tier-based quotas and inactivity eviction.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of a limiter check for one request.
type Decision struct {
	Allowed    bool
	Limit      int
	Period     int // seconds
	Remaining  int
	RetryAfter int // seconds, set only when denied
}

type bucket struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// Limiter is a keyed fixed-window counter. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLimiter returns an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow counts one request against key. The window resets when a full
// period has elapsed since the window opened; requests past the limit
// inside a window are denied with the seconds remaining in the window.
func (l *Limiter) Allow(key string, limit int, period time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	if now.Sub(b.windowStart) >= period {
		b.windowStart = now
		b.count = 0
	}
	b.count++
	b.lastSeen = now

	periodSec := int(period / time.Second)
	if b.count > limit {
		retry := int(math.Ceil((period - now.Sub(b.windowStart)).Seconds()))
		if retry < 1 {
			retry = 1
		}
		if retry > periodSec {
			retry = periodSec
		}
		return Decision{Limit: limit, Period: periodSec, RetryAfter: retry}
	}
	return Decision{Allowed: true, Limit: limit, Period: periodSec, Remaining: limit - b.count}
}

// CleanupInactive removes buckets not touched for maxInactive and returns
// the number removed.
func (l *Limiter) CleanupInactive(maxInactive time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > maxInactive {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
