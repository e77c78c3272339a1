package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_status/internal/ledger"
)

func TestDossierUnknownAircraft(t *testing.T) {
	l, _ := newTestLedger(t, ledger.Options{})

	_, err := l.Dossiers.Dossier(context.Background(), 999)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = l.Dossiers.Dossier(context.Background(), 0)
	assert.Equal(t, ledger.CodeInvalidInput, ledger.CodeOf(err))
}

func TestDossierNewAircraft(t *testing.T) {
	l, _ := newTestLedger(t, ledger.Options{})
	a := addAircraft(t, l, "vh-new ")

	d := history(t, l, a.ID)
	assert.Equal(t, "VH-NEW", d.Aircraft.TailNumber)
	assert.Equal(t, ledger.StatusUnknown, d.Aircraft.CurrentStatus)
	assert.Empty(t, d.History)
	assert.Nil(t, d.Current())
	assert.Empty(t, d.OpenLimits)
	assert.Empty(t, d.MaintenanceForms)
}

func TestDossierAssemblesRecords(t *testing.T) {
	l, _ := newTestLedger(t, ledger.Options{})
	ctx := context.Background()
	a := addAircraft(t, l, "VH-DOS")
	other := addAircraft(t, l, "VH-OTH")

	transition(t, l, a.ID, "AOG", t0, "engine change")
	transition(t, l, a.ID, "LIMITATION", t0.Add(6*time.Hour), "MEL 21-1")

	due := t0.Add(72 * time.Hour)
	kept, err := l.Records.AddCriticalLimit(ctx, ledger.CriticalLimit{AircraftID: a.ID, Title: "APU inop", DueAt: &due})
	require.NoError(t, err)
	resolved, err := l.Records.AddCriticalLimit(ctx, ledger.CriticalLimit{AircraftID: a.ID, Title: "Galley oven"})
	require.NoError(t, err)
	_, err = l.Records.ResolveCriticalLimit(ctx, resolved.ID)
	require.NoError(t, err)
	_, err = l.Records.AddCriticalLimit(ctx, ledger.CriticalLimit{AircraftID: other.ID, Title: "Not mine"})
	require.NoError(t, err)

	form, err := l.Records.AddMaintenanceForm(ctx, ledger.MaintenanceForm{AircraftID: a.ID, FormType: "CRS", Reference: "WO-1"})
	require.NoError(t, err)

	d := history(t, l, a.ID)
	require.Len(t, d.History, 2)
	assert.Equal(t, "LIMITATION", d.History[0].Status)
	require.NotNil(t, d.Current())
	assert.Equal(t, d.History[0].ID, d.Current().ID)

	require.Len(t, d.OpenLimits, 1)
	assert.Equal(t, kept.ID, d.OpenLimits[0].ID)
	require.NotNil(t, d.OpenLimits[0].DueAt)
	assert.Equal(t, due, *d.OpenLimits[0].DueAt)

	require.Len(t, d.MaintenanceForms, 1)
	assert.Equal(t, form.ID, d.MaintenanceForms[0].ID)
	requireTimeline(t, d)
}
