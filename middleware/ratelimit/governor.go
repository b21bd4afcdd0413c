package ratelimit

import (
	"math"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
	// RetryAfterSeconds is the remaining window time, populated only on
	// rejection. Always at least 1 so clients never retry immediately.
	RetryAfterSeconds int
}

// Governor admits or rejects requests against a fixed-window counter. The
// first request in a new window resets the count to 1; a request that would
// push the count past the limit is rejected with the remaining window time.
// Admission and increment are one atomic store operation.
type Governor struct {
	store Store
}

func NewGovernor(store Store) *Governor {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Governor{store: store}
}

func (g *Governor) Allow(key string, limit int, window time.Duration) Decision {
	count, resetAt, allowed := g.store.IncrementIfBelow(key, limit, time.Now().Add(window))
	if !allowed {
		return Decision{
			Allowed:           false,
			Limit:             limit,
			Remaining:         0,
			Reset:             resetAt,
			RetryAfterSeconds: retryAfterSeconds(resetAt),
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		Reset:     resetAt,
	}
}

// Forgive undoes one admission, letting failure-only tiers discount
// successful attempts after the fact.
func (g *Governor) Forgive(key string) {
	count, resetTime, exists := g.store.Get(key)
	if !exists {
		return
	}

	if count <= 1 {
		g.store.Reset(key)
		return
	}
	g.store.Set(key, count-1, resetTime)
}

func retryAfterSeconds(resetTime time.Time) int {
	seconds := int(math.Ceil(time.Until(resetTime).Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
