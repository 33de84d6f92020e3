package middleware

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/better-wallet/agent-custody/internal/ratelimit"
	apperrors "github.com/better-wallet/agent-custody/pkg/errors"
)

// RateLimiter throttles requests per gateway actor, falling back to the client IP
// for unauthenticated routes. It must run after AuditContext.
type RateLimiter struct {
	buckets *ratelimit.Keyed
	every   time.Duration
}

// NewRateLimiter returns a limiter allowing rps sustained with the given burst.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{
		buckets: ratelimit.New(rate.Limit(rps), max(burst, 1)),
		every:   time.Duration(float64(time.Second) / rps),
	}
}

func limiterKey(r *http.Request) string {
	if actor := GetActor(r.Context()); actor != "" {
		return "actor:" + actor
	}
	return "ip:" + getClientIP(r)
}

// Limit rejects requests over budget with 429 and a Retry-After hint
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	if rl.buckets == nil {
		return next
	}
	retryAfter := strconv.Itoa(max(int(rl.every.Round(time.Second)/time.Second), 1))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.buckets.Allow(limiterKey(r)) {
			w.Header().Set("Retry-After", retryAfter)
			WriteError(w, apperrors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
