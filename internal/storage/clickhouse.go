package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"fleet_status/internal/ledger"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseArchive records committed transitions in ClickHouse for fleet
// analytics. It is a ledger.Notifier; the interval store stays the source
// of truth.
type ClickHouseArchive struct {
	conn driver.Conn
}

var _ ledger.Notifier = (*ClickHouseArchive)(nil)

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return NewClickHouseArchive(conn), nil
}

// NewClickHouseArchive wraps an existing connection.
func NewClickHouseArchive(conn driver.Conn) *ClickHouseArchive {
	return &ClickHouseArchive{conn: conn}
}

// Close closes the ClickHouse connection.
func (a *ClickHouseArchive) Close() error {
	return a.conn.Close()
}

// CreateSchema creates the status_events table.
func (a *ClickHouseArchive) CreateSchema(ctx context.Context) error {
	err := a.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS status_events (
		event_id         String,
		aircraft_id      Int64,
		tail_number      LowCardinality(String),
		status           LowCardinality(String),
		previous_status  LowCardinality(String),
		interval_id      Int64,
		start_time       DateTime64(6, 'UTC'),
		previous_start   Nullable(DateTime64(6, 'UTC')),
		description      String,
		actor            LowCardinality(String),
		committed_at     DateTime64(6, 'UTC')
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(start_time)
	ORDER BY (aircraft_id, start_time, interval_id)`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// StatusEvent is one archived transition.
type StatusEvent struct {
	EventID        string     `json:"event_id" yaml:"event_id"`
	AircraftID     int64      `json:"aircraft_id" yaml:"aircraft_id"`
	TailNumber     string     `json:"tail_number" yaml:"tail_number"`
	Status         string     `json:"status" yaml:"status"`
	PreviousStatus string     `json:"previous_status,omitempty" yaml:"previous_status,omitempty"`
	IntervalID     int64      `json:"interval_id" yaml:"interval_id"`
	StartTime      time.Time  `json:"start_time" yaml:"start_time"`
	PreviousStart  *time.Time `json:"previous_start,omitempty" yaml:"previous_start,omitempty"`
	Description    string     `json:"description,omitempty" yaml:"description,omitempty"`
	Actor          string     `json:"actor,omitempty" yaml:"actor,omitempty"`
	CommittedAt    time.Time  `json:"committed_at" yaml:"committed_at"`
}

// EventFromTransition flattens a committed transition into an archive row.
func EventFromTransition(ev ledger.TransitionEvent) StatusEvent {
	se := StatusEvent{
		EventID:     ev.ID,
		AircraftID:  ev.Aircraft.ID,
		TailNumber:  ev.Aircraft.TailNumber,
		Status:      ev.Current.Status,
		IntervalID:  ev.Current.ID,
		StartTime:   ev.Current.StartTime,
		Description: ev.Current.Description,
		Actor:       ev.Actor,
		CommittedAt: ev.CommittedAt,
	}
	if ev.Previous != nil {
		se.PreviousStatus = ev.Previous.Status
		start := ev.Previous.StartTime
		se.PreviousStart = &start
	}
	return se
}

// TransitionCommitted appends the transition to status_events.
func (a *ClickHouseArchive) TransitionCommitted(ctx context.Context, ev ledger.TransitionEvent) error {
	return a.InsertBatch(ctx, []StatusEvent{EventFromTransition(ev)})
}

// InsertBatch stores several events in one round trip.
func (a *ClickHouseArchive) InsertBatch(ctx context.Context, events []StatusEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO status_events (event_id, aircraft_id, tail_number, status, previous_status,
			interval_id, start_time, previous_start, description, actor, committed_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err := batch.Append(e.EventID, e.AircraftID, e.TailNumber, e.Status, e.PreviousStatus,
			e.IntervalID, e.StartTime, e.PreviousStart, e.Description, e.Actor, e.CommittedAt)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Events returns the most recent archived events for an aircraft, newest
// first. A zero aircraftID returns events for the whole fleet.
func (a *ClickHouseArchive) Events(ctx context.Context, aircraftID int64, limit int) ([]StatusEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT event_id, aircraft_id, tail_number, status, previous_status,
		interval_id, start_time, previous_start, description, actor, committed_at
		FROM status_events`
	var args []any
	if aircraftID != 0 {
		query += ` WHERE aircraft_id = ?`
		args = append(args, aircraftID)
	}
	query += fmt.Sprintf(` ORDER BY start_time DESC, interval_id DESC LIMIT %d`, limit)

	rows, err := a.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StatusEvent
	for rows.Next() {
		var e StatusEvent
		err := rows.Scan(&e.EventID, &e.AircraftID, &e.TailNumber, &e.Status, &e.PreviousStatus,
			&e.IntervalID, &e.StartTime, &e.PreviousStart, &e.Description, &e.Actor, &e.CommittedAt)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// TransitionCounts returns how many transitions into each status were
// archived since the given time.
func (a *ClickHouseArchive) TransitionCounts(ctx context.Context, since time.Time) (map[string]uint64, error) {
	rows, err := a.conn.Query(ctx, `
		SELECT status, count() FROM status_events WHERE start_time >= ? GROUP BY status
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query transition counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var status string
		var n uint64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
