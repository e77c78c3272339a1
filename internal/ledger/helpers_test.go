package ledger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleet_status/internal/ledger"
	"fleet_status/internal/storage"
)

var t0 = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, opts ledger.Options) (*ledger.Ledger, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	if opts.StorageTimeout == 0 {
		opts.StorageTimeout = 20 * time.Second
	}
	return ledger.New(store, opts), store
}

func addAircraft(t *testing.T, l *ledger.Ledger, tail string) ledger.Aircraft {
	t.Helper()
	a, err := l.Records.CreateAircraft(context.Background(), tail, "A320")
	require.NoError(t, err)
	return a
}

func transition(t *testing.T, l *ledger.Ledger, id int64, status string, at time.Time, desc string) ledger.StatusInterval {
	t.Helper()
	iv, err := l.Engine.Transition(context.Background(), ledger.TransitionRequest{
		AircraftID:  id,
		Status:      status,
		StartTime:   at,
		Description: desc,
	})
	require.NoError(t, err)
	return iv
}

func history(t *testing.T, l *ledger.Ledger, id int64) ledger.Dossier {
	t.Helper()
	d, err := l.Dossiers.Dossier(context.Background(), id)
	require.NoError(t, err)
	return d
}

// requireTimeline checks the interval invariants on a history ordered most
// recent first: at most one open interval, it is the latest, closed
// intervals are contiguous, and the projection matches.
func requireTimeline(t *testing.T, d ledger.Dossier) {
	t.Helper()
	open := 0
	for i, iv := range d.History {
		if iv.Open() {
			open++
			require.Equal(t, 0, i, "open interval must be the latest")
			continue
		}
		require.False(t, iv.EndTime.Before(iv.StartTime), "interval %d ends before it starts", iv.ID)
		if i > 0 {
			next := d.History[i-1]
			require.True(t, iv.EndTime.Equal(next.StartTime),
				"interval %d ends %s but next starts %s", iv.ID, iv.EndTime, next.StartTime)
		}
	}
	require.LessOrEqual(t, open, 1)
	if cur := d.Current(); cur != nil {
		require.Equal(t, cur.Status, d.Aircraft.CurrentStatus)
	} else {
		require.Equal(t, ledger.StatusUnknown, d.Aircraft.CurrentStatus)
	}
}
