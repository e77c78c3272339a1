// Package config loads fleet-status settings from FLEET_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"fleet_status/internal/events"
	"fleet_status/internal/ledger"
	"fleet_status/internal/storage"
)

// Config is the process configuration.
type Config struct {
	Driver      string        `env:"FLEET_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string        `env:"FLEET_SQLITE_PATH" envDefault:"fleet_status.db"`
	LockTimeout time.Duration `env:"FLEET_LOCK_TIMEOUT" envDefault:"3s"`

	Postgres struct {
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     int    `env:"PORT" envDefault:"5432"`
		Database string `env:"DB" envDefault:"fleet_status"`
		User     string `env:"USER" envDefault:"fleet"`
		Password string `env:"PASSWORD" envDefault:"fleet"`
		SSLMode  string `env:"SSLMODE" envDefault:"disable"`
		MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
	} `envPrefix:"FLEET_POSTGRES_"`

	ClickHouse struct {
		Enabled  bool   `env:"ENABLED"`
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     int    `env:"PORT" envDefault:"9000"`
		Database string `env:"DB" envDefault:"default"`
		User     string `env:"USER" envDefault:"default"`
		Password string `env:"PASSWORD"`
	} `envPrefix:"FLEET_CLICKHOUSE_"`

	NATS struct {
		URL           string `env:"URL"`
		SubjectPrefix string `env:"SUBJECT_PREFIX" envDefault:"fleet.status"`
	} `envPrefix:"FLEET_NATS_"`

	HTTP struct {
		Port        int      `env:"PORT" envDefault:"8090"`
		AuthEnabled bool     `env:"AUTH_ENABLED"`
		APIKeys     []string `env:"API_KEYS" envSeparator:","`
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	} `envPrefix:"FLEET_HTTP_"`

	StorageTimeout time.Duration `env:"FLEET_STORAGE_TIMEOUT" envDefault:"5s"`
	StorageRetries int           `env:"FLEET_STORAGE_RETRIES" envDefault:"2"`
	RetryDelay     time.Duration `env:"FLEET_RETRY_DELAY" envDefault:"100ms"`
	NotifyTimeout  time.Duration `env:"FLEET_NOTIFY_TIMEOUT" envDefault:"5s"`

	LogLevel string `env:"FLEET_LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"FLEET_LOG_JSON"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the process cannot run with.
func (c Config) Validate() error {
	switch c.Driver {
	case storage.DriverSQLite, storage.DriverPostgres:
	default:
		return fmt.Errorf("FLEET_STORAGE_DRIVER: unknown driver %q", c.Driver)
	}
	if c.StorageRetries < 0 {
		return fmt.Errorf("FLEET_STORAGE_RETRIES must not be negative")
	}
	if c.LockTimeout > 0 && c.StorageTimeout > 0 && c.LockTimeout >= c.StorageTimeout {
		return fmt.Errorf("FLEET_LOCK_TIMEOUT (%s) must be shorter than FLEET_STORAGE_TIMEOUT (%s)", c.LockTimeout, c.StorageTimeout)
	}
	if c.HTTP.AuthEnabled && len(c.HTTP.APIKeys) == 0 {
		return fmt.Errorf("FLEET_HTTP_AUTH_ENABLED requires FLEET_HTTP_API_KEYS")
	}
	return nil
}

// Storage returns the interval store settings.
func (c Config) Storage() storage.Config {
	return storage.Config{
		Driver:     c.Driver,
		SQLitePath: c.SQLitePath,
		Postgres: storage.PostgresConfig{
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			Database: c.Postgres.Database,
			User:     c.Postgres.User,
			Password: c.Postgres.Password,
			SSLMode:  c.Postgres.SSLMode,
			MaxConns: c.Postgres.MaxConns,
		},
		LockTimeout: c.LockTimeout,
	}
}

// ClickHouseConfig returns the archive settings.
func (c Config) ClickHouseConfig() storage.ClickHouseConfig {
	return storage.ClickHouseConfig{
		Host:     c.ClickHouse.Host,
		Port:     c.ClickHouse.Port,
		Database: c.ClickHouse.Database,
		User:     c.ClickHouse.User,
		Password: c.ClickHouse.Password,
	}
}

// NATSConfig returns the event publisher settings.
func (c Config) NATSConfig() events.Config {
	return events.Config{
		URL:           c.NATS.URL,
		Name:          "fleet-status",
		SubjectPrefix: c.NATS.SubjectPrefix,
	}
}

// LedgerOptions returns the ledger timeouts and retry policy. Logger,
// Notifier and Clock are left for the caller.
func (c Config) LedgerOptions() ledger.Options {
	return ledger.Options{
		StorageTimeout: c.StorageTimeout,
		StorageRetries: c.StorageRetries,
		RetryDelay:     c.RetryDelay,
		NotifyTimeout:  c.NotifyTimeout,
	}
}
