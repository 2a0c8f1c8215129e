package redis

import (
	"context"
	"fmt"
	"net"

	config "github.com/avatarctic/identity-kv/configs"
	"github.com/go-redis/redis/v8"
)

// Options translates the redis section of the configuration into client
// options. Zero pool and timeout values keep the go-redis defaults.
func Options(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// NewRedisClient connects to Redis and pings it within ctx. The same client
// type backs the redis store driver and the shared rate limit counters.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(Options(cfg))
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", client.Options().Addr, err)
	}
	return client, nil
}
