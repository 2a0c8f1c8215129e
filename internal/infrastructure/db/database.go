package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/avatarctic/identity-kv/configs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Database struct {
	DB *sqlx.DB
}

// NewDatabase opens a DB from a bare DSN with the default pool settings.
func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	return NewDatabaseWithConfig(ctx, &configs.DatabaseConfig{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	})
}

// NewDatabaseWithConfig opens a DB, applies the configured pool limits and
// pings it within ctx.
func NewDatabaseWithConfig(ctx context.Context, cfg *configs.DatabaseConfig) (*Database, error) {
	dbx, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	applyPool(dbx, cfg)

	if err := dbx.PingContext(ctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Database{DB: dbx}, nil
}

func applyPool(dbx *sqlx.DB, cfg *configs.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		dbx.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		dbx.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		dbx.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		dbx.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (d *Database) Close() error {
	return d.DB.Close()
}

// Migrate applies the embedded schema migrations.
func (d *Database) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(d.DB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
