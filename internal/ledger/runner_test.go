package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRunner(retries int, timeout time.Duration) runner {
	return newRunner(Options{
		StorageTimeout: timeout,
		StorageRetries: retries,
		RetryDelay:     time.Millisecond,
	}, zap.NewNop())
}

func TestRunnerRetriesUnavailable(t *testing.T) {
	r := testRunner(2, time.Second)
	calls := 0
	err := r.do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return Wrap(CodeStorageUnavailable, "connection reset", errors.New("eof"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunnerGivesUpAfterRetries(t *testing.T) {
	r := testRunner(1, time.Second)
	calls := 0
	err := r.do(context.Background(), "op", func(context.Context) error {
		calls++
		return NewError(CodeStorageUnavailable, "down")
	})
	assert.Equal(t, CodeStorageUnavailable, CodeOf(err))
	assert.Equal(t, 2, calls)
}

func TestRunnerDoesNotRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"uncertain commit", Wrap(CodeStorageUnavailable, "commit", ErrCommitUncertain), CodeStorageUnavailable},
		{"conflict", NewError(CodeConflictingWrite, "locked"), CodeConflictingWrite},
		{"ordering", NewError(CodeInvalidTimeOrdering, "backdated"), CodeInvalidTimeOrdering},
		{"integrity", NewError(CodeIntegrityViolation, "mismatch"), CodeIntegrityViolation},
		{"plain error", errors.New("syntax error"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := testRunner(3, time.Second).do(context.Background(), "op", func(context.Context) error {
				calls++
				return tt.err
			})
			assert.Equal(t, tt.want, CodeOf(err))
			assert.Equal(t, 1, calls)
		})
	}
}

func TestRunnerUncertainCommitKeepsMarker(t *testing.T) {
	err := testRunner(3, time.Second).do(context.Background(), "op", func(context.Context) error {
		return Wrap(CodeStorageUnavailable, "commit", ErrCommitUncertain)
	})
	assert.ErrorIs(t, err, ErrCommitUncertain)
}

func TestRunnerTimeoutIsUnavailable(t *testing.T) {
	r := testRunner(0, 20*time.Millisecond)
	err := r.do(context.Background(), "op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Equal(t, CodeStorageUnavailable, CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunnerCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := testRunner(3, time.Second)
	calls := 0
	err := r.do(ctx, "op", func(ctx context.Context) error {
		calls++
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Equal(t, CodeCanceled, CodeOf(err))
	assert.Equal(t, 1, calls)
}

func TestRunnerCallerDeadlineIsCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := testRunner(0, time.Second).do(ctx, "op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Equal(t, CodeCanceled, CodeOf(err))
}

func TestCheckProjection(t *testing.T) {
	open := &StatusInterval{ID: 3, Status: "AOG"}
	tests := []struct {
		name    string
		current string
		open    *StatusInterval
		wantErr bool
	}{
		{"unknown without interval", StatusUnknown, nil, false},
		{"matching", "AOG", open, false},
		{"status without interval", "AOG", nil, true},
		{"unknown with interval", StatusUnknown, open, true},
		{"mismatch", "IN_SERVICE", open, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkProjection(Aircraft{ID: 1, CurrentStatus: tt.current}, tt.open)
			if tt.wantErr {
				assert.Equal(t, CodeIntegrityViolation, CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckHistoryRejectsTwoOpenIntervals(t *testing.T) {
	err := checkHistory(Dossier{
		Aircraft: Aircraft{ID: 1, CurrentStatus: "AOG"},
		History:  []StatusInterval{{ID: 2, Status: "AOG"}, {ID: 1, Status: "AOG"}},
	})
	assert.Equal(t, CodeIntegrityViolation, CodeOf(err))
}
