package middleware

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/phrazzld/leadgen-api/internal/api/shared"
)

// RateLimiter rejects requests with 429 once the shared token bucket is empty.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perSecond requests on average with bursts of burst.
// A perSecond of zero or less disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Limit wraps next with the rate check.
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	if l.limiter == nil {
		return next
	}
	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(l.limiter.Limit()))))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter.Allow() {
			w.Header().Set("Retry-After", retryAfter)
			shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
				"Too many requests", errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
