//go:build integration

package pgstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/avatarctic/identity-kv/internal/infrastructure/db"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/kvtest"
	"github.com/avatarctic/identity-kv/internal/infrastructure/kv/pgstore"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a disposable PostgreSQL and returns its DSN.
func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "identity",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
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
	mappedPort, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/identity?sslmode=disable", host, mappedPort.Port())
}

func TestStore_Conformance(t *testing.T) {
	database, err := db.NewDatabase(context.Background(), setupPostgres(t))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, database.Migrate())
	// a second run is a no-op
	require.NoError(t, database.Migrate())

	kvtest.Run(t, pgstore.New(database.DB, kvtest.Widgets))
}
