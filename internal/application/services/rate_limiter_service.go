package services

import (
	"context"
	"time"

	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// RateLimiterService implements a fixed-window limiter over a shared counter
// store, so every instance sees the same budget per key.
type RateLimiterService struct {
	repo            ports.RateLimitRepository
	defaultLimit    int
	burstMultiplier float64
	window          time.Duration
	keyPrefix       string
	logger          *logrus.Logger
}

var _ ports.RateLimiterService = (*RateLimiterService)(nil)

// RateLimiterConfig groups configuration parameters for the rate limiter.
type RateLimiterConfig struct {
	DefaultRequestsPerMinute int
	BurstMultiplier          float64
	Window                   time.Duration
	KeyPrefix                string
}

func NewRateLimiterService(repo ports.RateLimitRepository, cfg *RateLimiterConfig, logger *logrus.Logger) *RateLimiterService {
	// Apply defaults
	dl := 60
	bm := 1.0
	w := time.Minute
	kp := "ratelimit:client"
	if cfg != nil {
		if cfg.DefaultRequestsPerMinute > 0 {
			dl = cfg.DefaultRequestsPerMinute
		}
		if cfg.BurstMultiplier > 0 {
			bm = cfg.BurstMultiplier
		}
		if cfg.Window > 0 {
			w = cfg.Window
		}
		if cfg.KeyPrefix != "" {
			kp = cfg.KeyPrefix
		}
	}
	return &RateLimiterService{repo: repo, defaultLimit: dl, burstMultiplier: bm, window: w, keyPrefix: kp, logger: logger}
}

func (s *RateLimiterService) Allow(ctx context.Context, key string) (bool, int, int, time.Time, error) {
	limit := s.defaultLimit
	ttl := s.window * 2 // retain overlap window
	count, windowStart, err := s.repo.IncrementWindow(ctx, key, s.window, s.keyPrefix, ttl)
	reset := windowStart.Add(s.window)
	burst := int(float64(limit) * s.burstMultiplier)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"key": key}).WithError(err).Error("rate limiter: failed to increment window")
		}
		// fail open
		return true, burst, limit, reset, err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"key": key, "count": count, "burst": burst, "limit": limit}).Debug("rate limiter window state")
	}
	if count > burst {
		return false, 0, limit, reset, nil
	}
	remaining := burst - count
	return true, remaining, limit, reset, nil
}
