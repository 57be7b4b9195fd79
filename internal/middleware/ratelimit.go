package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/learntrack-backend/internal/metrics"
	"github.com/stemsi/learntrack-backend/internal/response"
)

// RateLimiter implements a simple keyed token bucket rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
	keyFn    func(c *gin.Context) string
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 120 telemetry reports per
// minute). keyFn picks the bucket; nil buckets by client IP.
func NewRateLimiter(rate int, interval time.Duration, keyFn func(c *gin.Context) string) *RateLimiter {
	if keyFn == nil {
		keyFn = func(c *gin.Context) string { return c.ClientIP() }
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
		keyFn:    keyFn,
	}
}

// Run evicts idle buckets until done is closed. Call in a goroutine.
func (rl *RateLimiter) Run(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// Middleware returns a Gin middleware that rate-limits requests per key.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(rl.keyFn(c), time.Now()) {
			metrics.TelemetryRateLimited.WithLabelValues("http").Inc()
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket, for callers outside the HTTP
// middleware chain such as websocket streams.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.allow(key, time.Now())
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[key] = v
	}

	// Refill tokens based on elapsed time.
	if refill := int(now.Sub(v.lastSeen)/rl.interval) * rl.rate; refill > 0 {
		v.tokens += refill
		if v.tokens > rl.rate {
			v.tokens = rl.rate
		}
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > 3*rl.interval {
			delete(rl.visitors, key)
		}
	}
}

// LearnerKey buckets by the authenticated learner, falling back to IP.
func LearnerKey(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return LearnerBucket(claims.Learner())
	}
	return "ip:" + c.ClientIP()
}

// LearnerBucket is the bucket name LearnerKey uses for userID.
func LearnerBucket(userID string) string {
	return "learner:" + userID
}
