package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"triage/pkg/metrics"
)

// KeyFunc picks the caller key a request is counted against.
type KeyFunc func(c *gin.Context) string

func ClientIPKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return c.RemoteIP()
}

// WindowMiddleware enforces a fixed-window policy per caller. Store failures
// let the request through.
func WindowMiddleware(limiter *Limiter, keyFn KeyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = ClientIPKey
	}

	return func(c *gin.Context) {
		d, err := limiter.Admit(c.Request.Context(), keyFn(c))
		if err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"retryAfter": d.RetryAfterSeconds,
			})
			return
		}

		c.Next()
	}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

type IPConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultIPConfig() IPConfig {
	return IPConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// IPMiddleware is a coarse token-bucket guard per client IP in front of the
// whole API. The cleanup loop exits when ctx is done.
func IPMiddleware(ctx context.Context, config IPConfig) gin.HandlerFunc {
	limiters := make(map[string]*ipLimiter)
	var mu sync.RWMutex

	go func() {
		ticker := time.NewTicker(config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			mu.Lock()
			now := time.Now()
			for ip, l := range limiters {
				l.mu.Lock()
				lastSeen := l.lastSeen
				l.mu.Unlock()
				if now.Sub(lastSeen) > config.MaxAge {
					delete(limiters, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		clientIP := ClientIPKey(c)

		mu.RLock()
		l, exists := limiters[clientIP]
		mu.RUnlock()

		if !exists {
			mu.Lock()
			l, exists = limiters[clientIP]
			if !exists {
				l = &ipLimiter{
					limiter:  rate.NewLimiter(rate.Limit(config.RPS), config.Burst),
					lastSeen: time.Now(),
				}
				limiters[clientIP] = l
			}
			mu.Unlock()
		}

		l.mu.Lock()
		l.lastSeen = time.Now()
		l.mu.Unlock()

		if !l.limiter.Allow() {
			metrics.IncRateLimitDecision("ip", false)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"retryAfter": 1,
			})
			return
		}

		metrics.IncRateLimitDecision("ip", true)
		c.Next()
	}
}
