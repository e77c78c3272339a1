// Package main provides the fleet-status binary.
//
// fleet-status records aircraft status (AOG, LIMITATION, IN_SERVICE, ...) as
// an append-only ledger of time intervals, serves it over a REST API and
// offers a few operator commands against the same store.
//
// Usage:
//
//	fleet-status serve                 run the REST API
//	fleet-status schema                create tables in the configured store
//	fleet-status aircraft add TAIL     provision an aircraft
//	fleet-status aircraft list         list the fleet
//	fleet-status transition ID STATUS  record a status change
//	fleet-status list STATUS           aircraft currently in STATUS
//	fleet-status events                recent transitions from ClickHouse
//
// Configuration comes from FLEET_* environment variables; see
// internal/config. Flags override the storage driver, SQLite path and log
// level.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleet_status/internal/config"
	"fleet_status/internal/events"
	"fleet_status/internal/ledger"
	"fleet_status/internal/logging"
	"fleet_status/internal/storage"
)

var version = "dev"

// app carries what every command needs once the root pre-run has loaded
// the configuration.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	output outputFormat
}

// openStore opens the configured interval store.
func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	st, err := storage.Open(ctx, a.cfg.Storage())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Driver, err)
	}
	return st, nil
}

// notifiers connects the configured transition sinks concurrently. The
// returned cleanup closes them; it is nil when err is not.
func (a *app) notifiers(ctx context.Context) (ledger.Notifier, func(), error) {
	var (
		pub *events.Publisher
		ch  *storage.ClickHouseArchive
	)

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.NATS.URL != "" {
		g.Go(func() error {
			var err error
			pub, err = events.Connect(a.cfg.NATSConfig(), a.log)
			return err
		})
	}
	if a.cfg.ClickHouse.Enabled {
		g.Go(func() error {
			var err error
			if ch, err = storage.OpenClickHouse(gctx, a.cfg.ClickHouseConfig()); err != nil {
				return err
			}
			return ch.CreateSchema(gctx)
		})
	}
	err := g.Wait()

	cleanup := func() {
		if ch != nil {
			_ = ch.Close()
		}
		if pub != nil {
			pub.Close()
		}
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var ns ledger.Notifiers
	if pub != nil {
		ns = append(ns, pub)
		a.log.Info("publishing transitions to NATS", zap.String("subject", pub.Subject(0)))
	}
	if ch != nil {
		ns = append(ns, ch)
		a.log.Info("archiving transitions to ClickHouse")
	}
	if len(ns) == 0 {
		return nil, cleanup, nil
	}
	return ns, cleanup, nil
}

// ledgerOptions returns the ledger options for this process.
func (a *app) ledgerOptions(n ledger.Notifier) ledger.Options {
	opts := a.cfg.LedgerOptions()
	opts.Logger = a.log
	opts.Notifier = n
	return opts
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		driver     string
		sqlitePath string
		logLevel   string
		output     string
	)

	root := &cobra.Command{
		Use:     "fleet-status",
		Short:   "Aircraft status ledger",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("driver") {
				cfg.Driver = driver
			}
			if cmd.Flags().Changed("sqlite-path") {
				cfg.SQLitePath = sqlitePath
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg

			if a.output, err = parseOutputFormat(output); err != nil {
				return err
			}
			a.log, err = logging.New(cfg.LogLevel, cfg.LogJSON)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&driver, "driver", storage.DriverSQLite, "Storage driver: sqlite or postgres (env: FLEET_STORAGE_DRIVER)")
	root.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "fleet_status.db", "SQLite database path (env: FLEET_SQLITE_PATH)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (env: FLEET_LOG_LEVEL)")
	root.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json, yaml")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newSchemaCmd(a))
	root.AddCommand(newAircraftCmd(a))
	root.AddCommand(newTransitionCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newEventsCmd(a))

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
