// Package events publishes committed status transitions on NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"fleet_status/internal/ledger"
)

// DefaultSubjectPrefix is used when Config.SubjectPrefix is empty.
const DefaultSubjectPrefix = "fleet.status"

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
}

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Publisher sends each committed transition to <prefix>.<aircraft_id>.
type Publisher struct {
	nc     conn
	closer func()
	prefix string
}

var _ ledger.Notifier = (*Publisher)(nil)

// Connect dials the NATS server and returns a publisher on it.
func Connect(cfg Config, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "fleet-status"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := NewPublisher(nc, cfg.SubjectPrefix)
	p.closer = nc.Close
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(nc conn, prefix string) *Publisher {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Close closes the connection if the publisher opened it.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// Subject returns the subject transitions of aircraftID are published on.
func (p *Publisher) Subject(aircraftID int64) string {
	return p.prefix + "." + strconv.FormatInt(aircraftID, 10)
}

// Interval is the wire form of a status interval.
type Interval struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Message is the JSON payload of a transition event.
type Message struct {
	EventID     string    `json:"event_id"`
	AircraftID  int64     `json:"aircraft_id"`
	TailNumber  string    `json:"tail_number"`
	Previous    *Interval `json:"previous,omitempty"`
	Current     Interval  `json:"current"`
	Actor       string    `json:"actor,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
}

func wireInterval(iv ledger.StatusInterval) Interval {
	return Interval{
		ID:          iv.ID,
		Status:      iv.Status,
		StartTime:   iv.StartTime,
		EndTime:     iv.EndTime,
		Description: iv.Description,
	}
}

// NewMessage converts a transition event to its wire form.
func NewMessage(ev ledger.TransitionEvent) Message {
	m := Message{
		EventID:     ev.ID,
		AircraftID:  ev.Aircraft.ID,
		TailNumber:  ev.Aircraft.TailNumber,
		Current:     wireInterval(ev.Current),
		Actor:       ev.Actor,
		CommittedAt: ev.CommittedAt,
	}
	if ev.Previous != nil {
		prev := wireInterval(*ev.Previous)
		m.Previous = &prev
	}
	return m
}

// TransitionCommitted publishes ev and flushes so that a delivery failure
// is reported before ctx expires.
func (p *Publisher) TransitionCommitted(ctx context.Context, ev ledger.TransitionEvent) error {
	data, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}
	subject := p.Subject(ev.Aircraft.ID)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}
