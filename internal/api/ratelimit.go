package api

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type scopeLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// scopeLimiter throttles per (scope, user) with a token bucket sized to
// the scope's per-minute allowance. A scope with no allowance is
// unlimited.
type scopeLimiter struct {
	mu          sync.Mutex
	entries     map[string]*scopeLimiterEntry
	lastCleanup time.Time

	limits map[string]int
	ttl    time.Duration
}

func newScopeLimiter(l Limits) *scopeLimiter {
	return &scopeLimiter{
		entries: make(map[string]*scopeLimiterEntry),
		limits: map[string]int{
			scopeRead:     l.ReadPerMin,
			scopeTriggers: l.TriggersPerMin,
			scopeWrite:    l.WritePerMin,
		},
		ttl: 15 * time.Minute,
	}
}

func (l *scopeLimiter) allow(scope string, userID int64) bool {
	perMin := l.limits[scope]
	if perMin <= 0 {
		return true
	}

	now := time.Now()
	key := fmt.Sprintf("%s:%d", scope, userID)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Periodic cleanup (amortized).
	if l.lastCleanup.IsZero() || now.Sub(l.lastCleanup) > time.Minute {
		for k, v := range l.entries {
			if now.Sub(v.lastSeen) > l.ttl {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	ent := l.entries[key]
	if ent == nil {
		ent = &scopeLimiterEntry{
			limiter:  rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
			lastSeen: now,
		}
		l.entries[key] = ent
	} else {
		ent.lastSeen = now
	}

	return ent.limiter.Allow()
}

func (l *scopeLimiter) limitHeader(scope string) string {
	return strconv.Itoa(l.limits[scope])
}
