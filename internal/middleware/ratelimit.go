package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig describes a token bucket: Rate tokens are added every Period,
// up to Burst.
type RateLimitConfig struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// PerMinute returns a limit of rate requests per minute.
func PerMinute(rate, burst int) RateLimitConfig {
	return RateLimitConfig{Rate: rate, Period: time.Minute, Burst: burst}
}

// PerSecond returns a limit of rate requests per second.
func PerSecond(rate, burst int) RateLimitConfig {
	return RateLimitConfig{Rate: rate, Period: time.Second, Burst: burst}
}

func (c RateLimitConfig) tokensPerSecond() float64 {
	return float64(c.Rate) / c.Period.Seconds()
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the client identified by key may make a request.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// idleEntryTTL is how long an untouched in-memory bucket is kept.
const idleEntryTTL = 10 * time.Minute

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter is a process-local token bucket limiter.
type MemoryLimiter struct {
	config  RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
	stopCh  chan struct{}
	stop    sync.Once
}

// NewMemoryLimiter creates a MemoryLimiter and starts its cleanup loop,
// which runs every cleanupInterval until Stop is called.
func NewMemoryLimiter(config RateLimitConfig, cleanupInterval time.Duration) *MemoryLimiter {
	ml := &MemoryLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go ml.cleanup(cleanupInterval)
	return ml
}

func (ml *MemoryLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ml.evictIdle()
		case <-ml.stopCh:
			return
		}
	}
}

func (ml *MemoryLimiter) evictIdle() {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := ml.now()
	for key, b := range ml.buckets {
		if now.Sub(b.lastUpdate) > idleEntryTTL {
			delete(ml.buckets, key)
		}
	}
}

// Stop ends the cleanup loop.
func (ml *MemoryLimiter) Stop() {
	ml.stop.Do(func() { close(ml.stopCh) })
}

// Allow takes one token from key's bucket. It never returns an error.
func (ml *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := ml.now()
	burst := float64(ml.config.Burst)
	b, ok := ml.buckets[key]
	if !ok {
		b = &bucket{tokens: burst, lastUpdate: now}
		ml.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastUpdate).Seconds()
		b.tokens = math.Min(burst, b.tokens+elapsed*ml.config.tokensPerSecond())
		b.lastUpdate = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int(b.tokens)}, nil
	}

	missing := (1 - b.tokens) / ml.config.tokensPerSecond()
	return Decision{
		Allowed:    false,
		RetryAfter: time.Duration(missing * float64(time.Second)),
	}, nil
}

// RedisLimiter shares limits between API instances through Redis using the
// GCRA implementation of redis_rate.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisLimiter creates a RedisLimiter. prefix namespaces the keys of one
// limit from those of another.
func NewRedisLimiter(client redis.UniversalClient, prefix string, config RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.Rate,
			Period: config.Period,
			Burst:  config.Burst,
		},
		prefix: prefix,
	}
}

// Allow consumes one request from key's allowance.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rl.limiter.Allow(ctx, rl.prefix+":"+key, rl.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	d := Decision{Allowed: res.Allowed > 0, Remaining: res.Remaining}
	if !d.Allowed && res.RetryAfter > 0 {
		d.RetryAfter = res.RetryAfter
	}
	return d, nil
}

// RateLimitMiddleware rejects requests with 429 once the client IP has
// exhausted its allowance. A limiter error lets the request through.
func RateLimitMiddleware(limiter Limiter, config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := limiter.Allow(c.Request.Context(), rateLimitKey(c))
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "path", c.FullPath(), "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Rate))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
