package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/avatarctic/identity-kv/internal/core/ports"
)

// RateLimitRedisRepository keeps fixed-window request counters in Redis so
// that every server instance shares the same budget per client.
type RateLimitRedisRepository struct {
	r redis.Cmdable
}

var _ ports.RateLimitRepository = (*RateLimitRedisRepository)(nil)

func NewRateLimitRedisRepository(r redis.Cmdable) *RateLimitRedisRepository {
	return &RateLimitRedisRepository{r: r}
}

// IncrementWindow counts one request for key in the window containing now.
// The counter key embeds the window start, so a new window starts at zero.
func (repo *RateLimitRedisRepository) IncrementWindow(ctx context.Context, key string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, errors.New("rate limit window must be positive")
	}
	if ttl < window {
		ttl = window
	}
	windowStart := time.Now().Truncate(window)
	counterKey := fmt.Sprintf("%s:%s:%d", keyPrefix, key, windowStart.Unix())

	var incr *redis.IntCmd
	_, err := repo.r.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, counterKey)
		pipe.PExpire(ctx, counterKey, ttl)
		return nil
	})
	if err != nil {
		return 0, windowStart, fmt.Errorf("failed to increment rate limit window: %w", err)
	}
	return int(incr.Val()), windowStart, nil
}
