package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxDescriptionLen = 4000

// TransitionRequest asks the engine to move an aircraft into a new status.
type TransitionRequest struct {
	AircraftID  int64
	Status      string
	StartTime   time.Time
	Description string
	Actor       string // Authenticated caller, recorded on the event only.
}

// Engine is the only writer of status intervals.
//
// A transition locks the aircraft row, so concurrent transitions on the same
// aircraft run one after another: the second waits for the lock and is then
// validated against the state the first committed. A lock that cannot be
// acquired within the store's lock timeout fails with CodeConflictingWrite.
// Transitions on different aircraft never share a lock.
type Engine struct {
	store         Store
	run           runner
	notify        Notifier
	notifyTimeout time.Duration
	log           *zap.Logger
	now           func() time.Time
}

// NewEngine creates a transition engine over store.
func NewEngine(store Store, opts Options) *Engine {
	log := loggerOf(opts).Named("engine")
	e := &Engine{
		store:         store,
		run:           newRunner(opts, log),
		notify:        opts.Notifier,
		notifyTimeout: opts.NotifyTimeout,
		log:           log,
		now:           clockOf(opts),
	}
	if e.notifyTimeout <= 0 {
		e.notifyTimeout = DefaultNotifyTimeout
	}
	return e
}

func (req *TransitionRequest) normalize() error {
	if req.AircraftID <= 0 {
		return Errorf(CodeInvalidInput, "aircraft id must be positive, got %d", req.AircraftID)
	}
	req.Status = NormalizeStatus(req.Status)
	if req.Status == "" {
		return NewError(CodeInvalidInput, "status is required")
	}
	if req.Status == StatusUnknown {
		return Errorf(CodeInvalidInput, "%s is reserved", StatusUnknown)
	}
	if req.StartTime.IsZero() {
		return NewError(CodeInvalidInput, "start time is required")
	}
	req.StartTime = NormalizeTime(req.StartTime)
	if err := checkTimeRange("start time", req.StartTime); err != nil {
		return err
	}
	req.Description = strings.TrimSpace(req.Description)
	if len(req.Description) > maxDescriptionLen {
		return Errorf(CodeInvalidInput, "description longer than %d bytes", maxDescriptionLen)
	}
	return nil
}

// Transition closes the aircraft's open interval at req.StartTime, opens a
// new interval in req.Status and updates the current_status projection, all
// in one transaction. It returns the new open interval.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (StatusInterval, error) {
	if err := req.normalize(); err != nil {
		return StatusInterval{}, err
	}

	var (
		created  StatusInterval
		previous *StatusInterval
		aircraft Aircraft
	)
	err := e.run.do(ctx, "transition", func(ctx context.Context) error {
		previous = nil
		return e.store.WriteTx(ctx, func(w Writer) error {
			now := NormalizeTime(e.now())

			a, err := w.LockAircraft(ctx, req.AircraftID)
			if err != nil {
				return err
			}
			open, err := w.OpenIntervalFor(ctx, req.AircraftID)
			if err != nil {
				return err
			}
			if err := checkProjection(a, open); err != nil {
				return err
			}
			lastEnd, err := w.LatestClosedEnd(ctx, req.AircraftID)
			if err != nil {
				return err
			}
			if lastEnd != nil && req.StartTime.Before(*lastEnd) {
				return Errorf(CodeInvalidTimeOrdering,
					"start time %s precedes end of latest closed interval %s",
					req.StartTime.Format(time.RFC3339Nano), lastEnd.Format(time.RFC3339Nano))
			}
			if open != nil && req.StartTime.Before(open.StartTime) {
				return Errorf(CodeInvalidTimeOrdering,
					"start time %s precedes start of open interval %s",
					req.StartTime.Format(time.RFC3339Nano), open.StartTime.Format(time.RFC3339Nano))
			}

			if open != nil {
				if err := w.CloseOpenInterval(ctx, req.AircraftID, req.StartTime); err != nil {
					return err
				}
				closed := *open
				end := req.StartTime
				closed.EndTime = &end
				previous = &closed
			}

			iv, err := w.InsertInterval(ctx, StatusInterval{
				AircraftID:  req.AircraftID,
				Status:      req.Status,
				StartTime:   req.StartTime,
				Description: req.Description,
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			if err := w.SetCurrentStatus(ctx, req.AircraftID, req.Status, now); err != nil {
				return err
			}

			a.CurrentStatus = req.Status
			a.UpdatedAt = now
			aircraft = a
			created = iv
			return nil
		})
	})
	if err != nil {
		e.logFailure(req, err)
		return StatusInterval{}, err
	}

	e.log.Info("status transition committed",
		zap.Int64("aircraft_id", req.AircraftID),
		zap.String("tail", aircraft.TailNumber),
		zap.String("status", req.Status),
		zap.Time("start", req.StartTime),
		zap.String("actor", req.Actor))

	e.publish(ctx, TransitionEvent{
		ID:          uuid.NewString(),
		Aircraft:    aircraft,
		Previous:    previous,
		Current:     created,
		Actor:       req.Actor,
		CommittedAt: created.CreatedAt,
	})
	return created, nil
}

// publish runs after commit on a context detached from the caller, so a
// disconnect cannot cut notifications short.
func (e *Engine) publish(ctx context.Context, ev TransitionEvent) {
	if e.notify == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
	defer cancel()
	if err := e.notify.TransitionCommitted(nctx, ev); err != nil {
		e.log.Warn("transition notification failed",
			zap.String("event_id", ev.ID),
			zap.Int64("aircraft_id", ev.Aircraft.ID),
			zap.Error(err))
	}
}

func (e *Engine) logFailure(req TransitionRequest, err error) {
	fields := []zap.Field{
		zap.Int64("aircraft_id", req.AircraftID),
		zap.String("status", req.Status),
		zap.String("code", string(CodeOf(err))),
		zap.Error(err),
	}
	switch CodeOf(err) {
	case CodeIntegrityViolation, CodeInternal:
		e.log.Error("transition failed", fields...)
	case CodeConflictingWrite, CodeStorageUnavailable:
		e.log.Info("transition rejected", fields...)
	default:
		e.log.Debug("transition rejected", fields...)
	}
}

// checkProjection verifies that current_status agrees with the open
// interval. A disagreement is reported, never repaired.
func checkProjection(a Aircraft, open *StatusInterval) error {
	switch {
	case open == nil && a.CurrentStatus != StatusUnknown:
		return Errorf(CodeIntegrityViolation,
			"aircraft %d has current_status %q but no open interval", a.ID, a.CurrentStatus)
	case open != nil && a.CurrentStatus != open.Status:
		return Errorf(CodeIntegrityViolation,
			"aircraft %d has current_status %q but open interval %d is %q",
			a.ID, a.CurrentStatus, open.ID, open.Status)
	}
	return nil
}
