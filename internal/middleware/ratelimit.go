package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// callerLimiters hands out one token bucket per caller identity.
type callerLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      rate.Limit
	burst    int
}

func newCallerLimiters(qps float64, burst int) *callerLimiters {
	if qps <= 0 {
		qps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &callerLimiters{
		limiters: make(map[string]*rate.Limiter),
		qps:      rate.Limit(qps),
		burst:    burst,
	}
}

func (l *callerLimiters) get(caller string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[caller]
	if !ok {
		lim = rate.NewLimiter(l.qps, l.burst)
		l.limiters[caller] = lim
	}
	return lim
}

// RateLimitMiddleware enforces a per-caller QPS budget. Must run after
// AuthMiddleware so the caller identity is resolved.
func RateLimitMiddleware(qps float64, burst int) gin.HandlerFunc {
	limiters := newCallerLimiters(qps, burst)
	return func(c *gin.Context) {
		caller := CallerID(c)
		if caller == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		if !limiters.get(caller).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
