package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/intervue/internal/api/response"
	"github.com/kiranshivaraju/intervue/internal/cache"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"go.uber.org/zap"
)

const defaultRequestsPerMinute = 120

// RateLimit provides fixed-window rate limiting per user via Redis.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	now            func() time.Time
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
}

// Limit applies rate limiting based on the user set by the auth middleware.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r)
		if !ok {
			// auth middleware didn't run; pass through
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		windowEnd := now.Truncate(time.Minute).Add(time.Minute)
		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(user.ID, now), time.Minute)
		if err != nil {
			// fail open
			logger.With(r.Context()).Warn("rate limit check failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(windowEnd.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			retry := int((windowEnd.Sub(now) + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
