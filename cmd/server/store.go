package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/identity-kv/configs"
	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/avatarctic/identity-kv/internal/infrastructure/db"
	"github.com/avatarctic/identity-kv/internal/infrastructure/health"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/dynamo"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/memory"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/pgstore"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/redisstore"
	"github.com/avatarctic/identity-kv/internal/infrastructure/redis"
	"github.com/avatarctic/identity-kv/internal/infrastructure/repositories"
)

// storeBundle is the opened key-value store plus whatever must be closed on
// shutdown and probed by the health endpoint.
type storeBundle struct {
	client   kv.Client
	checkers []ports.HealthChecker
	closers  []io.Closer
}

func (b *storeBundle) Close(logger *logrus.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			logger.WithError(err).Warn("failed to close store resource")
		}
	}
}

func openStore(ctx context.Context, cfg *config.StoreConfig, logger *logrus.Logger) (*storeBundle, error) {
	names := repositories.TableNames{
		Users:           cfg.Tables.Users,
		RefreshTokens:   cfg.Tables.RefreshTokens,
		EphemeralTokens: cfg.Tables.EphemeralTokens,
		UserRoles:       cfg.Tables.UserRoles,
	}
	tables := names.Definitions()
	b := &storeBundle{}

	switch cfg.Driver {
	case config.DriverDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamo.Options{
			Region:    cfg.AWS.Region,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		if cfg.AWS.CreateTables {
			if err := dynamo.EnsureTables(ctx, client, tables, logger); err != nil {
				return nil, err
			}
		}
		b.client = dynamo.New(client, tables...)
		b.checkers = append(b.checkers, health.NewDynamoHealthChecker(client, names.Users))

	case config.DriverRedis:
		rdb, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, rdb)
		b.client = redisstore.New(rdb, cfg.Redis.KeyPrefix, tables...)
		b.checkers = append(b.checkers, health.NewRedisHealthChecker(rdb))

	case config.DriverPostgres:
		database, err := db.NewDatabaseWithConfig(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, database)
		if err := database.Migrate(); err != nil {
			b.Close(logger)
			return nil, err
		}
		b.client = pgstore.New(database.DB, tables...)
		b.checkers = append(b.checkers, health.NewDBHealthChecker(database))

	case config.DriverMemory:
		logger.Warn("using the in-memory store; data is lost on restart")
		b.client = memory.New(tables...)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	b.checkers = append(b.checkers, health.NewStoreHealthChecker(b.client, names.Users))
	logger.WithField("driver", cfg.Driver).Info("key-value store ready")
	return b, nil
}
