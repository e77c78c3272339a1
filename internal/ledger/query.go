package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultArchiveLimit = 100
	maxArchiveLimit     = 1000
)

// StatusEntry is an aircraft together with the open interval that put it in
// its current status.
type StatusEntry struct {
	Aircraft Aircraft
	Interval StatusInterval
	Since    time.Duration // Time spent in the status so far.
}

// Query answers aggregate questions about current status. It only reads.
type Query struct {
	store Store
	run   runner
	log   *zap.Logger
	now   func() time.Time
}

// NewQuery creates a status query service over store.
func NewQuery(store Store, opts Options) *Query {
	log := loggerOf(opts).Named("query")
	return &Query{
		store: store,
		run:   newRunner(opts, log),
		log:   log,
		now:   clockOf(opts),
	}
}

// ListByStatus returns the aircraft whose projection and open interval both
// equal status, most recently entered first (descending open interval start,
// ties by aircraft id). A row where the two disagree fails the whole call
// with CodeIntegrityViolation. A blank status matches no aircraft.
func (q *Query) ListByStatus(ctx context.Context, status string) ([]StatusEntry, error) {
	status = NormalizeStatus(status)
	if status == "" {
		return []StatusEntry{}, nil
	}

	var rows []OpenStatusRow
	err := q.run.do(ctx, "list_by_status", func(ctx context.Context) error {
		return q.store.ReadTx(ctx, func(r Reader) error {
			var err error
			rows, err = r.ListOpenByStatus(ctx, status)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	now := q.now()
	entries := make([]StatusEntry, 0, len(rows))
	var faults []string
	for _, row := range rows {
		if row.Interval == nil || row.Aircraft.CurrentStatus != status || row.Interval.Status != status {
			faults = append(faults, describeFault(row))
			continue
		}
		entries = append(entries, StatusEntry{
			Aircraft: row.Aircraft,
			Interval: *row.Interval,
			Since:    row.Interval.Duration(now),
		})
	}
	if len(faults) > 0 {
		q.log.Error("projection disagrees with open interval",
			zap.String("status", status),
			zap.Strings("faults", faults))
		return nil, Errorf(CodeIntegrityViolation, "status %s: %s", status, strings.Join(faults, "; "))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Interval.StartTime, entries[j].Interval.StartTime
		if !a.Equal(b) {
			return a.After(b)
		}
		return entries[i].Aircraft.ID < entries[j].Aircraft.ID
	})
	return entries, nil
}

func describeFault(row OpenStatusRow) string {
	if row.Interval == nil {
		return fmt.Sprintf("aircraft %d current_status %q has no open interval",
			row.Aircraft.ID, row.Aircraft.CurrentStatus)
	}
	return fmt.Sprintf("aircraft %d current_status %q, open interval %d %q",
		row.Aircraft.ID, row.Aircraft.CurrentStatus, row.Interval.ID, row.Interval.Status)
}

// FleetSummary counts aircraft per current status, ordered by status.
func (q *Query) FleetSummary(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := q.run.do(ctx, "fleet_summary", func(ctx context.Context) error {
		return q.store.ReadTx(ctx, func(r Reader) error {
			var err error
			counts, err = r.CountByStatus(ctx)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Status < counts[j].Status })
	return counts, nil
}

// Archive returns closed intervals, latest end first.
func (q *Query) Archive(ctx context.Context, filter ArchiveFilter) ([]StatusInterval, error) {
	switch {
	case filter.Limit < 0:
		return nil, Errorf(CodeInvalidInput, "limit must not be negative, got %d", filter.Limit)
	case filter.Limit == 0:
		filter.Limit = defaultArchiveLimit
	case filter.Limit > maxArchiveLimit:
		filter.Limit = maxArchiveLimit
	}
	filter.Status = NormalizeStatus(filter.Status)

	var out []StatusInterval
	err := q.run.do(ctx, "archive", func(ctx context.Context) error {
		return q.store.ReadTx(ctx, func(r Reader) error {
			var err error
			out, err = r.ListClosed(ctx, filter)
			return err
		})
	})
	return out, err
}
