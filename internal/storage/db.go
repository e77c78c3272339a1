// Package storage implements the ledger's interval store on PostgreSQL and
// SQLite, and archives committed transitions to ClickHouse.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"fleet_status/internal/ledger"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultLockTimeout bounds how long a transition waits for the
// per-aircraft lock before failing with a conflict.
const DefaultLockTimeout = 3 * time.Second

// Config holds the interval store settings.
type Config struct {
	Driver      string
	SQLitePath  string
	Postgres    PostgresConfig
	LockTimeout time.Duration
}

// Store is an interval store that owns its connections.
type Store interface {
	ledger.Store
	io.Closer
	CreateSchema(ctx context.Context) error
}

// Open opens the store selected by cfg.Driver and ensures its schema exists.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	switch cfg.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.SQLitePath, cfg.LockTimeout)
	case DriverPostgres:
		pg, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		pg.lockTimeout = cfg.LockTimeout
		if err := pg.CreateSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
