// ratelimit.go enforces per-client token-bucket rate limits. Buckets live in
// process memory keyed by agent, org, or client IP; exceeding the refill rate
// yields 429 with a Retry-After hint.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig tunes one limiter instance.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
	// CleanupInterval is how often idle buckets are discarded.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns sensible defaults for the general API.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 200, // agents poll search and credits frequently
		BurstSize:         50,
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for login and registration
// endpoints.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter is an in-memory token-bucket limiter. One instance serves one
// route group; Stop must be called on shutdown to end its janitor goroutine.
type RateLimiter struct {
	config  RateLimitConfig
	mu      sync.RWMutex
	buckets map[string]*bucket
	stopCh  chan struct{}
}

// NewRateLimiter starts a limiter with the given config.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// janitor drops buckets idle for more than ten minutes so one-off clients do
// not accumulate forever.
func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			rl.mu.Lock()
			for key, b := range rl.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop ends the janitor goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// refilled returns the bucket's token count after crediting time elapsed
// since it was last seen, capped at the burst size. Caller holds the lock.
func (rl *RateLimiter) refilled(b *bucket, now time.Time) float64 {
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0
	tokens := b.tokens + now.Sub(b.lastSeen).Seconds()*perSecond
	if max := float64(rl.config.BurstSize); tokens > max {
		return max
	}
	return tokens
}

// Allow reports whether a request under the given key may proceed, consuming
// one token if so. An unseen key starts with a full burst.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{
			tokens:   float64(rl.config.BurstSize) - 1,
			lastSeen: now,
		}
		return true
	}

	b.tokens = rl.refilled(b, now)
	b.lastSeen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RemainingTokens reports the key's current token count without consuming.
func (rl *RateLimiter) RemainingTokens(key string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	b, ok := rl.buckets[key]
	if !ok {
		return rl.config.BurstSize
	}
	return int(rl.refilled(b, time.Now()))
}

// RateLimitMiddleware rejects requests over the limit with 429 and annotates
// allowed responses with X-RateLimit headers.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.RemainingTokens(key)))
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.RemainingTokens(key)))

		c.Next()
	}
}

// getRateLimitKey picks the bucket key for a request: agent identity first,
// then org session, then client IP for anonymous traffic.
func getRateLimitKey(c *gin.Context) string {
	if agentID, exists := c.Get(AgentIDKey); exists {
		if id, ok := agentID.(string); ok && id != "" {
			return "agent:" + id
		}
	}

	if orgID, exists := c.Get(OrgIDKey); exists {
		if id, ok := orgID.(string); ok && id != "" {
			return "org:" + id
		}
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
