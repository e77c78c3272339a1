package ledger

import (
	"context"

	"go.uber.org/zap"
)

// Dossier is the assembled view of one aircraft.
type Dossier struct {
	Aircraft         Aircraft
	History          []StatusInterval // Most recent start first.
	OpenLimits       []CriticalLimit
	MaintenanceForms []MaintenanceForm
}

// Current returns the open interval from the history, if any.
func (d Dossier) Current() *StatusInterval {
	for i := range d.History {
		if d.History[i].Open() {
			return &d.History[i]
		}
	}
	return nil
}

// Dossiers assembles dossiers from a single read snapshot.
type Dossiers struct {
	store Store
	run   runner
	log   *zap.Logger
}

// NewDossiers creates a dossier assembler over store.
func NewDossiers(store Store, opts Options) *Dossiers {
	log := loggerOf(opts).Named("dossier")
	return &Dossiers{
		store: store,
		run:   newRunner(opts, log),
		log:   log,
	}
}

// Dossier reads the aircraft, its full history, unresolved critical limits
// and maintenance forms in one snapshot.
func (d *Dossiers) Dossier(ctx context.Context, aircraftID int64) (Dossier, error) {
	if aircraftID <= 0 {
		return Dossier{}, Errorf(CodeInvalidInput, "aircraft id must be positive, got %d", aircraftID)
	}

	var out Dossier
	err := d.run.do(ctx, "dossier", func(ctx context.Context) error {
		out = Dossier{}
		return d.store.ReadTx(ctx, func(r Reader) error {
			var err error
			if out.Aircraft, err = r.GetAircraft(ctx, aircraftID); err != nil {
				return err
			}
			if out.History, err = r.HistoryFor(ctx, aircraftID); err != nil {
				return err
			}
			if out.OpenLimits, err = r.OpenCriticalLimits(ctx, aircraftID); err != nil {
				return err
			}
			out.MaintenanceForms, err = r.MaintenanceForms(ctx, aircraftID)
			return err
		})
	})
	if err != nil {
		return Dossier{}, err
	}

	if err := checkHistory(out); err != nil {
		d.log.Error("dossier failed consistency check",
			zap.Int64("aircraft_id", aircraftID),
			zap.Error(err))
		return Dossier{}, err
	}
	return out, nil
}

func checkHistory(d Dossier) error {
	open := 0
	for _, iv := range d.History {
		if iv.Open() {
			open++
		}
	}
	if open > 1 {
		return Errorf(CodeIntegrityViolation, "aircraft %d has %d open intervals", d.Aircraft.ID, open)
	}
	return checkProjection(d.Aircraft, d.Current())
}
