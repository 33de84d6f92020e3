// Package ratelimit provides token-bucket limiters keyed by caller identity.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	sweepInterval = time.Minute
	idleTTL       = 3 * time.Minute
)

// Keyed holds one limiter per key. Idle keys are swept lazily.
type Keyed struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a keyed limiter allowing limit events per second with the given burst
func New(limit rate.Limit, burst int) *Keyed {
	return &Keyed{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// PerMinute creates a keyed limiter allowing n events per minute, bursting to n
func PerMinute(n int) *Keyed {
	return New(rate.Every(time.Minute/time.Duration(n)), n)
}

// Allow reports whether key may proceed now
func (k *Keyed) Allow(key string) bool {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	if now.Sub(k.lastSweep) > sweepInterval {
		for id, v := range k.visitors {
			if now.Sub(v.lastSeen) > idleTTL {
				delete(k.visitors, id)
			}
		}
		k.lastSweep = now
	}

	v, exists := k.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.visitors[key] = v
	}
	v.lastSeen = now

	return v.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.visitors)
}
