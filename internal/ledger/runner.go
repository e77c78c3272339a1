package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultStorageTimeout = 5 * time.Second
	DefaultStorageRetries = 2
	DefaultRetryDelay     = 100 * time.Millisecond
	DefaultNotifyTimeout  = 5 * time.Second
)

// runner executes storage calls under a per-call timeout and retries
// StorageUnavailable failures with exponential backoff.
type runner struct {
	timeout time.Duration
	retries int
	delay   time.Duration
	log     *zap.Logger
}

func newRunner(opts Options, log *zap.Logger) runner {
	r := runner{
		timeout: opts.StorageTimeout,
		retries: opts.StorageRetries,
		delay:   opts.RetryDelay,
		log:     log,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultStorageTimeout
	}
	if r.retries < 0 {
		r.retries = 0
	}
	if r.delay <= 0 {
		r.delay = DefaultRetryDelay
	}
	return r
}

func (r runner) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		err := classify(ctx, callCtx, fn(callCtx))
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.delay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.retries)), ctx)

	err := backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		r.log.Warn("storage unavailable, retrying",
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	return classify(ctx, ctx, err)
}

func retryable(err error) bool {
	return IsCode(err, CodeStorageUnavailable) && !errors.Is(err, ErrCommitUncertain)
}

// classify turns context and driver failures into *Error values. parent is
// the caller's context and call the per-call context derived from it; a
// deadline on call without one on parent is a storage timeout.
func classify(parent, call context.Context, err error) error {
	if err == nil {
		return nil
	}

	var le *Error
	isLedger := errors.As(err, &le)
	if isLedger && le.Code != CodeStorageUnavailable && le.Code != CodeInternal {
		return err
	}
	if errors.Is(err, ErrCommitUncertain) {
		return err
	}
	if parent.Err() != nil {
		return Wrap(CodeCanceled, "request canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(call.Err(), context.DeadlineExceeded) {
		return Wrap(CodeStorageUnavailable, "storage call timed out", err)
	}
	if isLedger {
		return err
	}
	return Wrap(CodeInternal, "storage failure", err)
}
