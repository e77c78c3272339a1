package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_status/internal/ledger"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs     []published
	pubErr   error
	flushErr error
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.msgs = append(f.msgs, published{subject: subj, data: data})
	return nil
}

func (f *fakeConn) FlushWithContext(context.Context) error { return f.flushErr }

func TestPublisherSubjectAndPayload(t *testing.T) {
	fc := &fakeConn{}
	p := NewPublisher(fc, "ops.fleet.")

	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start
	ev := ledger.TransitionEvent{
		ID:          "evt-1",
		Aircraft:    ledger.Aircraft{ID: 42, TailNumber: "VH-XYZ"},
		Previous:    &ledger.StatusInterval{ID: 1, Status: "AOG", StartTime: start.Add(-time.Hour), EndTime: &end},
		Current:     ledger.StatusInterval{ID: 2, Status: "IN_SERVICE", StartTime: start},
		Actor:       "line-maint",
		CommittedAt: start.Add(time.Second),
	}

	require.NoError(t, p.TransitionCommitted(context.Background(), ev))
	require.Len(t, fc.msgs, 1)
	assert.Equal(t, "ops.fleet.42", fc.msgs[0].subject)

	var msg Message
	require.NoError(t, json.Unmarshal(fc.msgs[0].data, &msg))
	assert.Equal(t, "evt-1", msg.EventID)
	assert.Equal(t, int64(42), msg.AircraftID)
	assert.Equal(t, "IN_SERVICE", msg.Current.Status)
	require.NotNil(t, msg.Previous)
	assert.Equal(t, "AOG", msg.Previous.Status)
	assert.True(t, end.Equal(*msg.Previous.EndTime))
}

func TestPublisherDefaultPrefix(t *testing.T) {
	p := NewPublisher(&fakeConn{}, "")
	assert.Equal(t, "fleet.status.7", p.Subject(7))
}

func TestPublisherErrors(t *testing.T) {
	ev := ledger.TransitionEvent{Aircraft: ledger.Aircraft{ID: 1}}

	boom := errors.New("boom")
	err := NewPublisher(&fakeConn{pubErr: boom}, "").TransitionCommitted(context.Background(), ev)
	assert.ErrorIs(t, err, boom)

	err = NewPublisher(&fakeConn{flushErr: boom}, "").TransitionCommitted(context.Background(), ev)
	assert.ErrorIs(t, err, boom)
}
