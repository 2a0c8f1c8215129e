package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/avatarctic/identity-kv/internal/core/ports"
	infraDB "github.com/avatarctic/identity-kv/internal/infrastructure/db"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-redis/redis/v8"
)

// dbHealthChecker wraps the database for health checks.
type dbHealthChecker struct{ db *infraDB.Database }

func (d *dbHealthChecker) Name() string                    { return "database" }
func (d *dbHealthChecker) Check(ctx context.Context) error { return d.db.DB.PingContext(ctx) }

// redisHealthChecker wraps the redis client for health checks.
type redisHealthChecker struct{ client redis.UniversalClient }

func (r *redisHealthChecker) Name() string                    { return "redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// dynamoDescriber is the one DynamoDB call the checker makes.
type dynamoDescriber interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoHealthChecker requires the table to exist and be active.
type dynamoHealthChecker struct {
	api   dynamoDescriber
	table string
}

func (d *dynamoHealthChecker) Name() string { return "dynamodb" }
func (d *dynamoHealthChecker) Check(ctx context.Context) error {
	out, err := d.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
	if err != nil {
		return err
	}
	if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		return fmt.Errorf("table %s is not active", d.table)
	}
	return nil
}

// storeHealthChecker reads a key that never exists; any answer other than
// "not found" means the store is unreachable or misconfigured.
type storeHealthChecker struct {
	client kv.Client
	table  string
}

func (s *storeHealthChecker) Name() string { return "store" }
func (s *storeHealthChecker) Check(ctx context.Context) error {
	_, err := s.client.Get(ctx, s.table, codec.String("health-probe"))
	if err == nil || errors.Is(err, kv.ErrItemNotFound) {
		return nil
	}
	return err
}

// NewDBHealthChecker creates a health checker for the database.
func NewDBHealthChecker(db *infraDB.Database) ports.HealthChecker { return &dbHealthChecker{db: db} }

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client redis.UniversalClient) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}

// NewDynamoHealthChecker creates a health checker for a DynamoDB table.
func NewDynamoHealthChecker(api dynamoDescriber, table string) ports.HealthChecker {
	return &dynamoHealthChecker{api: api, table: table}
}

// NewStoreHealthChecker probes any kv.Client through a point read on table.
func NewStoreHealthChecker(client kv.Client, table string) ports.HealthChecker {
	return &storeHealthChecker{client: client, table: table}
}
