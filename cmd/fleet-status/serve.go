package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fleet_status/internal/api"
	"fleet_status/internal/ledger"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		Long: `Run the REST API on /api/v1. The schema is created on start.

Committed transitions are published on NATS when FLEET_NATS_URL is set and
archived to ClickHouse when FLEET_CLICKHOUSE_ENABLED is true.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.HTTP.Port = port
			}
			return runServe(cmd.Context(), a)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8090, "HTTP port (env: FLEET_HTTP_PORT)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier, closeNotifiers, err := a.notifiers(ctx)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	l := ledger.New(store, a.ledgerOptions(notifier))
	server := api.NewServer(l, api.Config{
		Port:        a.cfg.HTTP.Port,
		AuthEnabled: a.cfg.HTTP.AuthEnabled,
		APIKeys:     a.cfg.HTTP.APIKeys,
		CORSOrigins: a.cfg.HTTP.CORSOrigins,
		Logger:      a.log,
	})

	a.log.Info("fleet-status starting",
		zap.String("version", version),
		zap.String("driver", a.cfg.Driver),
		zap.Int("port", a.cfg.HTTP.Port))

	err = server.Run(ctx)
	a.log.Info("shutting down")
	return err
}
