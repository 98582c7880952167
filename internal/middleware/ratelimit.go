package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Per-client token buckets, evicted after a period of inactivity.
var (
	ratePerSecond rate.Limit = 1
	burst                    = 60
	limiters                 = cache.New(10*time.Minute, 20*time.Minute)
)

// RateLimiter limits requests per client IP with a token bucket.
//
// Behavior:
//   - Each IP gets its own bucket of `burst` tokens refilled at `ratePerSecond`
//     (default: 60 burst, one token per second).
//   - Idle buckets expire from the cache and start full again.
//   - If the bucket is empty, returns HTTP 429 Too Many Requests with Retry-After.
//
// Usage:
//
//	router := gin.New()
//	router.Use(middleware.RateLimiter())
func RateLimiter() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// limiterFor returns the bucket for ip, creating it on first use. Add is an
// atomic insert-if-absent, so concurrent first requests share one bucket.
func limiterFor(ip string) *rate.Limiter {
	if v, ok := limiters.Get(ip); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(ratePerSecond, burst)
	if err := limiters.Add(ip, limiter, cache.DefaultExpiration); err != nil {
		if v, ok := limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}
