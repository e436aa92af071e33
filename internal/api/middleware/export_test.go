package middleware

import "time"

// SetClock pins the rate limiter's clock.
func SetClock(rl *RateLimit, now func() time.Time) { rl.now = now }
