package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig tunes the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig is generous enough for reception-desk bursts at
// shift start while still capping runaway clients.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// bucket is a single client's token bucket. Refill is computed lazily from
// the elapsed time since the last call, so idle buckets cost nothing.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

func (b *bucket) take(cfg RateLimitConfig, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.last).Seconds() * cfg.RequestsPerSecond
	if max := float64(cfg.BurstSize); b.tokens > max {
		b.tokens = max
	}
	b.last = now
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// secondsUntilToken reports how long until one token is available, for the
// Retry-After header. Rounded up; at least one second.
func (b *bucket) secondsUntilToken(cfg RateLimitConfig) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cfg.RequestsPerSecond <= 0 {
		return 1
	}
	wait := int((1 - b.tokens) / cfg.RequestsPerSecond)
	return wait + 1
}

// limiter maps client keys to buckets and prunes entries idle for over an
// hour so the map does not grow with every address ever seen.
type limiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	buckets map[string]*bucket
	sweep   time.Time
}

const bucketIdleTTL = time.Hour

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		sweep:   time.Now(),
	}
}

func (l *limiter) get(key string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.sweep) > bucketIdleTTL {
		for k, b := range l.buckets {
			b.mu.Lock()
			idle := now.Sub(b.lastSeen) > bucketIdleTTL
			b.mu.Unlock()
			if idle {
				delete(l.buckets, k)
			}
		}
		l.sweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BurstSize), last: now, lastSeen: now}
		l.buckets[key] = b
	}
	return b
}

// RateLimit enforces a per-client request budget. Clients are keyed by the
// authenticated user id when present, falling back to the remote IP, so a
// shared clinic NAT does not collapse every workstation into one bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	l := newLimiter(cfg)
	limitHeader := strconv.Itoa(int(cfg.RequestsPerSecond))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if uid, ok := c.Get("user_id").(string); ok && uid != "" {
				key = uid + ":" + key
			}

			now := time.Now()
			b := l.get(key, now)
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)
			if !b.take(cfg, now) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(b.secondsUntilToken(cfg)))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
