package ledger

import (
	"time"

	"go.uber.org/zap"
)

// Options configures the ledger services.
type Options struct {
	StorageTimeout time.Duration // Per storage call.
	StorageRetries int           // Extra attempts after a StorageUnavailable failure.
	RetryDelay     time.Duration // Initial backoff.
	NotifyTimeout  time.Duration

	Notifier Notifier
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Ledger bundles the services built over one Store.
type Ledger struct {
	Engine   *Engine
	Query    *Query
	Dossiers *Dossiers
	Records  *Records
}

// New builds every ledger service over store.
func New(store Store, opts Options) *Ledger {
	return &Ledger{
		Engine:   NewEngine(store, opts),
		Query:    NewQuery(store, opts),
		Dossiers: NewDossiers(store, opts),
		Records:  NewRecords(store, opts),
	}
}

func loggerOf(opts Options) *zap.Logger {
	if opts.Logger == nil {
		return zap.NewNop()
	}
	return opts.Logger
}

func clockOf(opts Options) func() time.Time {
	if opts.Clock == nil {
		return time.Now
	}
	return opts.Clock
}
