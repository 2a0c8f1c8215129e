//go:build integration

package redisstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/codec"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/kvtest"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/redisstore"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, mappedPort.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestStore_Conformance(t *testing.T) {
	kvtest.Run(t, redisstore.New(setupRedis(t), "test", kvtest.Widgets))
}

func TestStore_IndexesFollowUpdatesAndDeletes(t *testing.T) {
	ctx := context.Background()
	rdb := setupRedis(t)
	store := redisstore.New(rdb, "idx", kvtest.Widgets)

	require.NoError(t, store.PutIfAbsent(ctx, kvtest.Widgets.Name, codec.Item{"Id": codec.String("a"), "Color": codec.String("red")}))
	require.NoError(t, store.Update(ctx, kvtest.Widgets.Name, codec.String("a"), codec.Item{"Color": codec.String("blue")}))

	red, err := rdb.SCard(ctx, "idx:Widgets:idx:ColorIndex:S:red").Result()
	require.NoError(t, err)
	require.Zero(t, red)

	require.NoError(t, store.Delete(ctx, kvtest.Widgets.Name, codec.String("a")))
	keys, err := rdb.Keys(ctx, "idx:*").Result()
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestStore_ConcurrentPutIfAbsentIndexesExactlyOneItem(t *testing.T) {
	ctx := context.Background()
	rdb := setupRedis(t)
	store := redisstore.New(rdb, "race", kvtest.Widgets)

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.PutIfAbsent(ctx, kvtest.Widgets.Name, codec.Item{
				"Id":    codec.String("w"),
				"Color": codec.String(fmt.Sprintf("c%d", i)),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, kv.ErrConditionFailed):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, created)
	require.Equal(t, writers-1, conflicts)

	stored, err := store.Get(ctx, kvtest.Widgets.Name, codec.String("w"))
	require.NoError(t, err)
	found, err := store.Query(ctx, kv.QueryInput{
		Table: kvtest.Widgets.Name,
		Index: "ColorIndex",
		Value: stored["Color"],
	})
	require.NoError(t, err)
	require.Len(t, found, 1)

	members, err := rdb.Keys(ctx, "race:Widgets:idx:ColorIndex:*").Result()
	require.NoError(t, err)
	require.Len(t, members, 1, "only the winning writer may leave an index entry")
}
