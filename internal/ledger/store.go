package ledger

import (
	"context"
	"time"
)

// Reader is the read side of the interval store. Implementations run every
// method inside the snapshot the Reader was created for.
type Reader interface {
	// GetAircraft returns CodeNotFound when the aircraft does not exist.
	GetAircraft(ctx context.Context, aircraftID int64) (Aircraft, error)
	ListAircraft(ctx context.Context) ([]Aircraft, error)

	// OpenIntervalFor returns nil when the aircraft has no open interval.
	OpenIntervalFor(ctx context.Context, aircraftID int64) (*StatusInterval, error)
	// HistoryFor returns every interval, most recent start first.
	HistoryFor(ctx context.Context, aircraftID int64) ([]StatusInterval, error)

	// ListOpenByStatus returns every aircraft whose projection equals status
	// or whose open interval is labelled status.
	ListOpenByStatus(ctx context.Context, status string) ([]OpenStatusRow, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	// ListClosed returns closed intervals, latest end first.
	ListClosed(ctx context.Context, filter ArchiveFilter) ([]StatusInterval, error)

	OpenCriticalLimits(ctx context.Context, aircraftID int64) ([]CriticalLimit, error)
	MaintenanceForms(ctx context.Context, aircraftID int64) ([]MaintenanceForm, error)
}

// Writer is the write side of the interval store, valid for the lifetime of
// one write transaction. Only the Engine composes these primitives.
type Writer interface {
	Reader

	// LockAircraft takes the per-aircraft write lock for the rest of the
	// transaction and returns the locked row.
	LockAircraft(ctx context.Context, aircraftID int64) (Aircraft, error)
	// LatestClosedEnd returns the end_time of the most recently closed
	// interval, or nil when none has been closed.
	LatestClosedEnd(ctx context.Context, aircraftID int64) (*time.Time, error)
	CloseOpenInterval(ctx context.Context, aircraftID int64, endTime time.Time) error
	InsertInterval(ctx context.Context, iv StatusInterval) (StatusInterval, error)
	SetCurrentStatus(ctx context.Context, aircraftID int64, status string, at time.Time) error
}

// RecordWriter mutates aircraft attributes and ancillary records. It never
// touches status intervals or the current_status projection.
type RecordWriter interface {
	CreateAircraft(ctx context.Context, a Aircraft) (Aircraft, error)
	UpdateAircraftAttributes(ctx context.Context, aircraftID int64, tailNumber, model string, at time.Time) (Aircraft, error)

	CreateCriticalLimit(ctx context.Context, l CriticalLimit) (CriticalLimit, error)
	ResolveCriticalLimit(ctx context.Context, limitID int64, at time.Time) (CriticalLimit, error)
	DeleteCriticalLimit(ctx context.Context, limitID int64) error

	CreateMaintenanceForm(ctx context.Context, f MaintenanceForm) (MaintenanceForm, error)
	DeleteMaintenanceForm(ctx context.Context, formID int64) error
}

// Store is a transactional interval store. Implementations translate their
// driver errors into *Error values: CodeNotFound, CodeConflictingWrite for
// lock timeouts and unique-index violations, CodeStorageUnavailable for
// connection failures.
type Store interface {
	// WriteTx runs fn in a read-write transaction and commits when fn
	// returns nil.
	WriteTx(ctx context.Context, fn func(Writer) error) error
	// ReadTx runs fn in a read-only snapshot transaction.
	ReadTx(ctx context.Context, fn func(Reader) error) error

	Records() RecordWriter
}
