package ledger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Records manages aircraft attributes and the ancillary records attached to
// an aircraft. None of these carry an interval invariant.
type Records struct {
	store Store
	run   runner
	log   *zap.Logger
	now   func() time.Time
}

// NewRecords creates a records service over store.
func NewRecords(store Store, opts Options) *Records {
	log := loggerOf(opts).Named("records")
	return &Records{
		store: store,
		run:   newRunner(opts, log),
		log:   log,
		now:   clockOf(opts),
	}
}

// CreateAircraft provisions an aircraft with status UNKNOWN.
func (s *Records) CreateAircraft(ctx context.Context, tailNumber, model string) (Aircraft, error) {
	tailNumber = strings.ToUpper(strings.TrimSpace(tailNumber))
	model = strings.TrimSpace(model)
	if tailNumber == "" {
		return Aircraft{}, NewError(CodeInvalidInput, "tail number is required")
	}

	now := NormalizeTime(s.now())
	var out Aircraft
	err := s.run.do(ctx, "create_aircraft", func(ctx context.Context) error {
		var err error
		out, err = s.store.Records().CreateAircraft(ctx, Aircraft{
			TailNumber:    tailNumber,
			Model:         model,
			CurrentStatus: StatusUnknown,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		return err
	})
	if err != nil {
		return Aircraft{}, err
	}
	s.log.Info("aircraft provisioned", zap.Int64("aircraft_id", out.ID), zap.String("tail", out.TailNumber))
	return out, nil
}

// UpdateAircraftAttributes changes the tail number and model of an aircraft.
func (s *Records) UpdateAircraftAttributes(ctx context.Context, aircraftID int64, tailNumber, model string) (Aircraft, error) {
	if aircraftID <= 0 {
		return Aircraft{}, Errorf(CodeInvalidInput, "aircraft id must be positive, got %d", aircraftID)
	}
	tailNumber = strings.ToUpper(strings.TrimSpace(tailNumber))
	model = strings.TrimSpace(model)
	if tailNumber == "" {
		return Aircraft{}, NewError(CodeInvalidInput, "tail number is required")
	}

	now := NormalizeTime(s.now())
	var out Aircraft
	err := s.run.do(ctx, "update_aircraft", func(ctx context.Context) error {
		var err error
		out, err = s.store.Records().UpdateAircraftAttributes(ctx, aircraftID, tailNumber, model, now)
		return err
	})
	return out, err
}

// ListAircraft returns every aircraft ordered by id.
func (s *Records) ListAircraft(ctx context.Context) ([]Aircraft, error) {
	var out []Aircraft
	err := s.run.do(ctx, "list_aircraft", func(ctx context.Context) error {
		return s.store.ReadTx(ctx, func(r Reader) error {
			var err error
			out, err = r.ListAircraft(ctx)
			return err
		})
	})
	return out, err
}

// AddCriticalLimit attaches an unresolved critical limit to an aircraft.
func (s *Records) AddCriticalLimit(ctx context.Context, l CriticalLimit) (CriticalLimit, error) {
	if l.AircraftID <= 0 {
		return CriticalLimit{}, Errorf(CodeInvalidInput, "aircraft id must be positive, got %d", l.AircraftID)
	}
	l.Title = strings.TrimSpace(l.Title)
	l.Description = strings.TrimSpace(l.Description)
	if l.Title == "" {
		return CriticalLimit{}, NewError(CodeInvalidInput, "title is required")
	}
	if l.DueAt != nil {
		due := NormalizeTime(*l.DueAt)
		if err := checkTimeRange("due time", due); err != nil {
			return CriticalLimit{}, err
		}
		l.DueAt = &due
	}
	l.IsResolved = false
	l.ResolvedAt = nil
	l.CreatedAt = NormalizeTime(s.now())

	var out CriticalLimit
	err := s.run.do(ctx, "add_critical_limit", func(ctx context.Context) error {
		var err error
		out, err = s.store.Records().CreateCriticalLimit(ctx, l)
		return err
	})
	return out, err
}

// ResolveCriticalLimit marks a critical limit resolved.
func (s *Records) ResolveCriticalLimit(ctx context.Context, limitID int64) (CriticalLimit, error) {
	if limitID <= 0 {
		return CriticalLimit{}, Errorf(CodeInvalidInput, "limit id must be positive, got %d", limitID)
	}
	now := NormalizeTime(s.now())
	var out CriticalLimit
	err := s.run.do(ctx, "resolve_critical_limit", func(ctx context.Context) error {
		var err error
		out, err = s.store.Records().ResolveCriticalLimit(ctx, limitID, now)
		return err
	})
	return out, err
}

// DeleteCriticalLimit removes a critical limit.
func (s *Records) DeleteCriticalLimit(ctx context.Context, limitID int64) error {
	if limitID <= 0 {
		return Errorf(CodeInvalidInput, "limit id must be positive, got %d", limitID)
	}
	return s.run.do(ctx, "delete_critical_limit", func(ctx context.Context) error {
		return s.store.Records().DeleteCriticalLimit(ctx, limitID)
	})
}

// AddMaintenanceForm attaches a maintenance form to an aircraft.
func (s *Records) AddMaintenanceForm(ctx context.Context, f MaintenanceForm) (MaintenanceForm, error) {
	if f.AircraftID <= 0 {
		return MaintenanceForm{}, Errorf(CodeInvalidInput, "aircraft id must be positive, got %d", f.AircraftID)
	}
	f.FormType = strings.TrimSpace(f.FormType)
	f.Reference = strings.TrimSpace(f.Reference)
	f.Status = strings.TrimSpace(f.Status)
	f.Notes = strings.TrimSpace(f.Notes)
	if f.FormType == "" {
		return MaintenanceForm{}, NewError(CodeInvalidInput, "form type is required")
	}
	f.CreatedAt = NormalizeTime(s.now())

	var out MaintenanceForm
	err := s.run.do(ctx, "add_maintenance_form", func(ctx context.Context) error {
		var err error
		out, err = s.store.Records().CreateMaintenanceForm(ctx, f)
		return err
	})
	return out, err
}

// DeleteMaintenanceForm removes a maintenance form.
func (s *Records) DeleteMaintenanceForm(ctx context.Context, formID int64) error {
	if formID <= 0 {
		return Errorf(CodeInvalidInput, "form id must be positive, got %d", formID)
	}
	return s.run.do(ctx, "delete_maintenance_form", func(ctx context.Context) error {
		return s.store.Records().DeleteMaintenanceForm(ctx, formID)
	})
}
