// Package ratelimit is an in-process token-bucket limiter for single-instance
// deployments that have no shared counter store.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const cleanupInterval = 5 * time.Minute

// Config mirrors the shared limiter settings: RequestsPerWindow refill over
// Window, with Burst requests allowed back to back.
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Limiter keeps one rate.Limiter per key.
type Limiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	limit    int
	window   time.Duration
	now      func() time.Time
	logger   *logrus.Logger

	mu          sync.Mutex
	lastCleanup time.Time
}

var _ ports.RateLimiterService = (*Limiter)(nil)

func New(cfg Config, logger *logrus.Logger) *Limiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Burst < 1 {
		cfg.Burst = cfg.RequestsPerWindow
	}
	return &Limiter{
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		limit:       cfg.RequestsPerWindow,
		window:      cfg.Window,
		now:         time.Now,
		logger:      logger,
		lastCleanup: time.Now(),
	}
}

// Allow never fails; the error result exists to satisfy the shared contract.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int, int, time.Time, error) {
	now := l.now()
	limiter := l.get(key)

	allowed := limiter.AllowN(now, 1)
	tokens := limiter.TokensAt(now)
	remaining := int(math.Max(0, math.Floor(tokens)))

	// time until the bucket is full again
	missing := float64(l.burst) - tokens
	reset := now
	if missing > 0 && l.rate > 0 {
		reset = now.Add(time.Duration(missing / float64(l.rate) * float64(time.Second)))
	}

	if !allowed && l.logger != nil {
		l.logger.WithFields(logrus.Fields{"key": key, "limit": l.limit, "window": l.window.String()}).Debug("local rate limit exceeded")
	}
	return allowed, remaining, l.limit, reset, nil
}

func (l *Limiter) get(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	l.maybeCleanup()
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket is full, i.e. keys that have been
// idle long enough to refill completely.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) < cleanupInterval {
		return
	}
	l.lastCleanup = now

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).TokensAt(now) >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}

// Len reports how many keys currently hold a limiter.
func (l *Limiter) Len() int {
	n := 0
	l.limiters.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
