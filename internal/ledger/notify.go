package ledger

import (
	"context"
	"errors"
	"time"
)

// TransitionEvent describes a committed transition.
type TransitionEvent struct {
	ID          string
	Aircraft    Aircraft
	Previous    *StatusInterval // Interval closed by the transition, if any.
	Current     StatusInterval
	Actor       string
	CommittedAt time.Time
}

// Notifier is told about transitions after they commit. A notifier error is
// logged by the engine and never undoes the transition.
type Notifier interface {
	TransitionCommitted(ctx context.Context, ev TransitionEvent) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev TransitionEvent) error

func (f NotifierFunc) TransitionCommitted(ctx context.Context, ev TransitionEvent) error {
	return f(ctx, ev)
}

// Notifiers fans an event out to every notifier in order.
type Notifiers []Notifier

func (ns Notifiers) TransitionCommitted(ctx context.Context, ev TransitionEvent) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.TransitionCommitted(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
