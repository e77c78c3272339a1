package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"fleet_status/internal/api"
	"fleet_status/internal/ledger"
	"fleet_status/internal/storage"
)

// withLedger opens the store, builds a ledger over it and runs fn.
func withLedger(ctx context.Context, a *app, fn func(*ledger.Ledger) error) error {
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

	return fn(ledger.New(store, a.ledgerOptions(notifier)))
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create tables, indexes and triggers in the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			// Open already ensures the schema; run it again so the command
			// reports errors explicitly.
			if err := store.CreateSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", a.cfg.Driver)
			return nil
		},
	}
}

func newAircraftCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aircraft",
		Short: "Manage aircraft",
	}

	var model string
	add := &cobra.Command{
		Use:   "add TAIL",
		Short: "Provision an aircraft with status UNKNOWN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), a, func(l *ledger.Ledger) error {
				ac, err := l.Records.CreateAircraft(cmd.Context(), args[0], model)
				if err != nil {
					return err
				}
				return printAircraft(cmd, a, []ledger.Aircraft{ac})
			})
		},
	}
	add.Flags().StringVar(&model, "model", "", "Aircraft model")

	list := &cobra.Command{
		Use:   "list",
		Short: "List every aircraft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), a, func(l *ledger.Ledger) error {
				all, err := l.Records.ListAircraft(cmd.Context())
				if err != nil {
					return err
				}
				return printAircraft(cmd, a, all)
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func printAircraft(cmd *cobra.Command, a *app, list []ledger.Aircraft) error {
	data := make([]api.AircraftResponse, 0, len(list))
	rows := make([][]string, 0, len(list))
	for _, ac := range list {
		data = append(data, api.NewAircraftResponse(ac))
		rows = append(rows, []string{
			strconv.FormatInt(ac.ID, 10), ac.TailNumber, ac.Model, ac.CurrentStatus,
			ac.UpdatedAt.Format(time.RFC3339),
		})
	}
	return printOutput(cmd.OutOrStdout(), a.output, data,
		[]string{"id", "tail", "model", "status", "updated"}, rows)
}

func newTransitionCmd(a *app) *cobra.Command {
	var (
		at          string
		description string
		actor       string
	)

	cmd := &cobra.Command{
		Use:   "transition AIRCRAFT_ID STATUS",
		Short: "Record a status change for an aircraft",
		Long: `Close the aircraft's open interval and open a new one in STATUS.

--at takes an RFC 3339 time and defaults to now. A time earlier than the
current interval's start is rejected.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("aircraft id: %w", err)
			}
			start := time.Now()
			if at != "" {
				if start, err = time.Parse(time.RFC3339Nano, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			if actor == "" {
				actor = os.Getenv("USER")
			}

			return withLedger(cmd.Context(), a, func(l *ledger.Ledger) error {
				iv, err := l.Engine.Transition(cmd.Context(), ledger.TransitionRequest{
					AircraftID:  id,
					Status:      args[1],
					StartTime:   start,
					Description: description,
					Actor:       actor,
				})
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), a.output, api.NewIntervalResponse(iv, time.Now()),
					[]string{"interval", "aircraft", "status", "start"},
					[][]string{{
						strconv.FormatInt(iv.ID, 10), strconv.FormatInt(iv.AircraftID, 10),
						iv.Status, iv.StartTime.Format(time.RFC3339),
					}})
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Start time of the new status (RFC 3339)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Free-text description")
	cmd.Flags().StringVar(&actor, "actor", "", "Who made the change (default: $USER)")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list STATUS",
		Short: "List aircraft currently in STATUS, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), a, func(l *ledger.Ledger) error {
				entries, err := l.Query.ListByStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				now := time.Now()
				data := make([]api.StatusEntryResponse, 0, len(entries))
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					data = append(data, api.NewStatusEntryResponse(e, now))
					rows = append(rows, []string{
						strconv.FormatInt(e.Aircraft.ID, 10), e.Aircraft.TailNumber,
						e.Interval.StartTime.Format(time.RFC3339),
						e.Since.Round(time.Minute).String(),
						truncate(e.Interval.Description, 40),
					})
				}
				return printOutput(cmd.OutOrStdout(), a.output, data,
					[]string{"id", "tail", "since", "for", "description"}, rows)
			})
		},
	}
}

func newEventsCmd(a *app) *cobra.Command {
	var (
		aircraftID int64
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent transitions archived in ClickHouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := storage.OpenClickHouse(cmd.Context(), a.cfg.ClickHouseConfig())
			if err != nil {
				return err
			}
			defer ch.Close()

			evs, err := ch.Events(cmd.Context(), aircraftID, limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(evs))
			for _, e := range evs {
				rows = append(rows, []string{
					e.StartTime.Format(time.RFC3339), e.TailNumber,
					e.PreviousStatus, e.Status, e.Actor,
				})
			}
			return printOutput(cmd.OutOrStdout(), a.output, evs,
				[]string{"start", "tail", "from", "to", "actor"}, rows)
		},
	}

	cmd.Flags().Int64Var(&aircraftID, "aircraft", 0, "Only this aircraft")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum events")
	return cmd
}
