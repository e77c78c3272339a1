package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_status/internal/ledger"
)

func TestListByStatusReturnsOnlyMatchingAircraft(t *testing.T) {
	l, _ := newTestLedger(t, ledger.Options{})
	seven := addAircraft(t, l, "VH-007")
	nine := addAircraft(t, l, "VH-009")

	transition(t, l, seven.ID, "IN_SERVICE", t0, "")
	transition(t, l, nine.ID, "AOG", t0.Add(time.Hour), "bird strike")

	got, err := l.Query.ListByStatus(context.Background(), "AOG")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, nine.ID, got[0].Aircraft.ID)
	assert.Equal(t, "AOG", got[0].Interval.Status)
	assert.Equal(t, "bird strike", got[0].Interval.Description)
	assert.Positive(t, got[0].Since)

	got, err = l.Query.ListByStatus(context.Background(), "in service")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, seven.ID, got[0].Aircraft.ID)

	got, err = l.Query.ListByStatus(context.Background(), "STORED")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListByStatusOrdering(t *testing.T) {
	now := t0.Add(24 * time.Hour)
	l, _ := newTestLedger(t, ledger.Options{Clock: func() time.Time { return now }})
	a := addAircraft(t, l, "VH-AAA")
	b := addAircraft(t, l, "VH-BBB")
	c := addAircraft(t, l, "VH-CCC")

	transition(t, l, c.ID, "AOG", t0, "")
	transition(t, l, b.ID, "AOG", t0, "")
	transition(t, l, a.ID, "AOG", t0.Add(-time.Hour), "")

	got, err := l.Query.ListByStatus(context.Background(), "AOG")
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Latest entry first, ties by aircraft id.
	assert.Equal(t, []int64{b.ID, c.ID, a.ID}, []int64{got[0].Aircraft.ID, got[1].Aircraft.ID, got[2].Aircraft.ID})
	assert.Equal(t, 25*time.Hour, got[2].Since)
}

func TestListByStatusBlankMatchesNothing(t *testing.T) {
	l, _ := newTestLedger(t, ledger.Options{})
	a := addAircraft(t, l, "VH-BLK")
	transition(t, l, a.ID, "AOG", t0, "")

	for _, status := range []string{"", "   "} {
		got, err := l.Query.ListByStatus(context.Background(), status)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestListByStatusSurfacesBrokenProjection(t *testing.T) {
	l, store := newTestLedger(t, ledger.Options{})
	ok := addAircraft(t, l, "VH-OK1")
	bad := addAircraft(t, l, "VH-BAD")
	transition(t, l, ok.ID, "AOG", t0, "")
	transition(t, l, bad.ID, "IN_SERVICE", t0, "")

	require.NoError(t, store.WriteTx(context.Background(), func(w ledger.Writer) error {
		return w.SetCurrentStatus(context.Background(), bad.ID, "AOG", t0)
	}))

	_, err := l.Query.ListByStatus(context.Background(), "AOG")
	require.Error(t, err)
	assert.Equal(t, ledger.CodeIntegrityViolation, ledger.CodeOf(err))
	assert.Contains(t, err.Error(), "IN_SERVICE")

	// Statuses the broken row does not touch still answer.
	_, err = l.Query.ListByStatus(context.Background(), "LIMITATION")
	assert.NoError(t, err)
}

func TestFleetSummary(t *testing.T) {
	l, _ := newTestLedger(t, ledger.Options{})
	a := addAircraft(t, l, "VH-FS1")
	b := addAircraft(t, l, "VH-FS2")
	addAircraft(t, l, "VH-FS3")
	transition(t, l, a.ID, "AOG", t0, "")
	transition(t, l, b.ID, "AOG", t0, "")
	transition(t, l, b.ID, "IN_SERVICE", t0.Add(time.Hour), "")

	got, err := l.Query.FleetSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ledger.StatusCount{
		{Status: "AOG", Count: 1},
		{Status: "IN_SERVICE", Count: 1},
		{Status: "UNKNOWN", Count: 1},
	}, got)
}

func TestArchive(t *testing.T) {
	l, _ := newTestLedger(t, ledger.Options{})
	a := addAircraft(t, l, "VH-ARC")
	transition(t, l, a.ID, "AOG", t0, "")
	transition(t, l, a.ID, "LIMITATION", t0.Add(time.Hour), "")
	transition(t, l, a.ID, "AOG", t0.Add(2*time.Hour), "")
	transition(t, l, a.ID, "IN_SERVICE", t0.Add(3*time.Hour), "")

	ctx := context.Background()
	all, err := l.Query.Archive(ctx, ledger.ArchiveFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, iv := range all {
		assert.False(t, iv.Open())
		if i > 0 {
			assert.True(t, all[i-1].EndTime.After(*iv.EndTime), "latest end first")
		}
	}

	aog, err := l.Query.Archive(ctx, ledger.ArchiveFilter{Status: "aog"})
	require.NoError(t, err)
	require.Len(t, aog, 2)
	assert.Equal(t, t0.Add(3*time.Hour), *aog[0].EndTime)

	one, err := l.Query.Archive(ctx, ledger.ArchiveFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)

	big, err := l.Query.Archive(ctx, ledger.ArchiveFilter{Limit: 1_000_000})
	require.NoError(t, err)
	assert.Len(t, big, 3)

	_, err = l.Query.Archive(ctx, ledger.ArchiveFilter{Limit: -1})
	assert.Equal(t, ledger.CodeInvalidInput, ledger.CodeOf(err))
}
