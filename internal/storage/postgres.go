package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet_status/internal/ledger"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
}

// PostgresDB is the interval store backed by a PostgreSQL connection pool.
// Transitions serialise on a row lock of the aircraft they touch.
type PostgresDB struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ ledger.Store = (*PostgresDB)(nil)

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslMode)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewPostgresDB(pool, DefaultLockTimeout), nil
}

// NewPostgresDB wraps an existing pool.
func NewPostgresDB(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresDB {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &PostgresDB{pool: pool, lockTimeout: lockTimeout}
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() error {
	d.pool.Close()
	return nil
}

// CreateSchema creates the PostgreSQL tables, indexes and triggers.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	for _, stmt := range postgresPostSchema {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// WriteTx runs fn in a read committed transaction.
func (d *PostgresDB) WriteTx(ctx context.Context, fn func(ledger.Writer) error) error {
	return d.inTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(t *pgTx) error { return fn(t) })
}

// ReadTx runs fn in a read-only repeatable read transaction so that every
// read inside fn sees the same snapshot.
func (d *PostgresDB) ReadTx(ctx context.Context, fn func(ledger.Reader) error) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return pgErr("begin read", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()
	return fn(&pgTx{tx: tx, lockTimeout: d.lockTimeout})
}

// Records returns the ancillary record writer.
func (d *PostgresDB) Records() ledger.RecordWriter {
	return pgRecords{d: d}
}

func (d *PostgresDB) inTx(ctx context.Context, opts pgx.TxOptions, fn func(*pgTx) error) error {
	tx, err := d.pool.BeginTx(ctx, opts)
	if err != nil {
		return pgErr("begin", err)
	}
	if err := fn(&pgTx{tx: tx, lockTimeout: d.lockTimeout}); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		var pgE *pgconn.PgError
		if errors.As(err, &pgE) {
			// The server answered, so the outcome is known: rolled back.
			return pgErr("commit", err)
		}
		return ledger.Wrap(ledger.CodeStorageUnavailable, "commit",
			fmt.Errorf("%w: %w", ledger.ErrCommitUncertain, err))
	}
	return nil
}

// pgTx implements ledger.Writer on one transaction.
type pgTx struct {
	tx          pgx.Tx
	lockTimeout time.Duration
}

const pgAircraftCols = `id, tail_number, model, current_status, created_at, updated_at`
const pgIntervalCols = `id, aircraft_id, status, start_time, end_time, description, created_at`

func scanPgAircraft(row pgx.Row) (ledger.Aircraft, error) {
	var a ledger.Aircraft
	err := row.Scan(&a.ID, &a.TailNumber, &a.Model, &a.CurrentStatus, &a.CreatedAt, &a.UpdatedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, err
}

func scanPgInterval(row pgx.Row) (ledger.StatusInterval, error) {
	var iv ledger.StatusInterval
	err := row.Scan(&iv.ID, &iv.AircraftID, &iv.Status, &iv.StartTime, &iv.EndTime, &iv.Description, &iv.CreatedAt)
	iv.StartTime = iv.StartTime.UTC()
	iv.EndTime = utcPtr(iv.EndTime)
	iv.CreatedAt = iv.CreatedAt.UTC()
	return iv, err
}

func scanPgLimit(row pgx.Row) (ledger.CriticalLimit, error) {
	var l ledger.CriticalLimit
	err := row.Scan(&l.ID, &l.AircraftID, &l.Title, &l.Description, &l.DueAt, &l.IsResolved, &l.ResolvedAt, &l.CreatedAt)
	l.DueAt = utcPtr(l.DueAt)
	l.ResolvedAt = utcPtr(l.ResolvedAt)
	l.CreatedAt = l.CreatedAt.UTC()
	return l, err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (t *pgTx) GetAircraft(ctx context.Context, aircraftID int64) (ledger.Aircraft, error) {
	a, err := scanPgAircraft(t.tx.QueryRow(ctx, `SELECT `+pgAircraftCols+` FROM aircraft WHERE id = $1`, aircraftID))
	if errors.Is(err, pgx.ErrNoRows) {
		return a, ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", aircraftID)
	}
	return a, pgErr("get aircraft", err)
}

func (t *pgTx) ListAircraft(ctx context.Context) ([]ledger.Aircraft, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+pgAircraftCols+` FROM aircraft ORDER BY id`)
	if err != nil {
		return nil, pgErr("list aircraft", err)
	}
	defer rows.Close()

	var out []ledger.Aircraft
	for rows.Next() {
		a, err := scanPgAircraft(rows)
		if err != nil {
			return nil, pgErr("scan aircraft", err)
		}
		out = append(out, a)
	}
	return out, pgErr("list aircraft", rows.Err())
}

// LockAircraft takes the row lock on the aircraft, waiting at most the
// configured lock timeout.
func (t *pgTx) LockAircraft(ctx context.Context, aircraftID int64) (ledger.Aircraft, error) {
	timeout := fmt.Sprintf("%dms", t.lockTimeout.Milliseconds())
	if _, err := t.tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return ledger.Aircraft{}, pgErr("set lock timeout", err)
	}
	a, err := scanPgAircraft(t.tx.QueryRow(ctx, `SELECT `+pgAircraftCols+` FROM aircraft WHERE id = $1 FOR UPDATE`, aircraftID))
	if errors.Is(err, pgx.ErrNoRows) {
		return a, ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", aircraftID)
	}
	return a, pgErr("lock aircraft", err)
}

func (t *pgTx) OpenIntervalFor(ctx context.Context, aircraftID int64) (*ledger.StatusInterval, error) {
	iv, err := scanPgInterval(t.tx.QueryRow(ctx, `
		SELECT `+pgIntervalCols+`
		FROM status_intervals
		WHERE aircraft_id = $1 AND end_time IS NULL
	`, aircraftID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgErr("open interval", err)
	}
	return &iv, nil
}

func (t *pgTx) HistoryFor(ctx context.Context, aircraftID int64) ([]ledger.StatusInterval, error) {
	return t.queryIntervals(ctx, "history", `
		SELECT `+pgIntervalCols+`
		FROM status_intervals
		WHERE aircraft_id = $1
		ORDER BY start_time DESC, id DESC
	`, aircraftID)
}

func (t *pgTx) ListClosed(ctx context.Context, filter ledger.ArchiveFilter) ([]ledger.StatusInterval, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + pgIntervalCols + ` FROM status_intervals WHERE end_time IS NOT NULL`)
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		fmt.Fprintf(&b, ` AND status = $%d`, len(args))
	}
	args = append(args, filter.Limit)
	fmt.Fprintf(&b, ` ORDER BY end_time DESC, id DESC LIMIT $%d`, len(args))
	return t.queryIntervals(ctx, "archive", b.String(), args...)
}

func (t *pgTx) queryIntervals(ctx context.Context, op, query string, args ...any) ([]ledger.StatusInterval, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, pgErr(op, err)
	}
	defer rows.Close()

	var out []ledger.StatusInterval
	for rows.Next() {
		iv, err := scanPgInterval(rows)
		if err != nil {
			return nil, pgErr(op, err)
		}
		out = append(out, iv)
	}
	return out, pgErr(op, rows.Err())
}

func (t *pgTx) ListOpenByStatus(ctx context.Context, status string) ([]ledger.OpenStatusRow, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT a.id, a.tail_number, a.model, a.current_status, a.created_at, a.updated_at,
		       i.id, i.status, i.start_time, i.description, i.created_at
		FROM aircraft a
		LEFT JOIN status_intervals i ON i.aircraft_id = a.id AND i.end_time IS NULL
		WHERE a.current_status = $1 OR i.status = $1
		ORDER BY i.start_time DESC NULLS LAST, a.id
	`, status)
	if err != nil {
		return nil, pgErr("list by status", err)
	}
	defer rows.Close()

	var out []ledger.OpenStatusRow
	for rows.Next() {
		var row ledger.OpenStatusRow
		var ivID *int64
		var ivStatus, ivDesc *string
		var ivStart, ivCreated *time.Time
		err := rows.Scan(&row.Aircraft.ID, &row.Aircraft.TailNumber, &row.Aircraft.Model,
			&row.Aircraft.CurrentStatus, &row.Aircraft.CreatedAt, &row.Aircraft.UpdatedAt,
			&ivID, &ivStatus, &ivStart, &ivDesc, &ivCreated)
		if err != nil {
			return nil, pgErr("scan status row", err)
		}
		row.Aircraft.CreatedAt = row.Aircraft.CreatedAt.UTC()
		row.Aircraft.UpdatedAt = row.Aircraft.UpdatedAt.UTC()
		if ivID != nil {
			row.Interval = &ledger.StatusInterval{
				ID:          *ivID,
				AircraftID:  row.Aircraft.ID,
				Status:      *ivStatus,
				StartTime:   ivStart.UTC(),
				Description: *ivDesc,
				CreatedAt:   ivCreated.UTC(),
			}
		}
		out = append(out, row)
	}
	return out, pgErr("list by status", rows.Err())
}

func (t *pgTx) CountByStatus(ctx context.Context) ([]ledger.StatusCount, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT current_status, COUNT(*) FROM aircraft GROUP BY current_status ORDER BY current_status
	`)
	if err != nil {
		return nil, pgErr("count by status", err)
	}
	defer rows.Close()

	var out []ledger.StatusCount
	for rows.Next() {
		var c ledger.StatusCount
		var n int64
		if err := rows.Scan(&c.Status, &n); err != nil {
			return nil, pgErr("scan count", err)
		}
		c.Count = int(n)
		out = append(out, c)
	}
	return out, pgErr("count by status", rows.Err())
}

func (t *pgTx) OpenCriticalLimits(ctx context.Context, aircraftID int64) ([]ledger.CriticalLimit, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, aircraft_id, title, description, due_at, is_resolved, resolved_at, created_at
		FROM critical_limits
		WHERE aircraft_id = $1 AND NOT is_resolved
		ORDER BY created_at, id
	`, aircraftID)
	if err != nil {
		return nil, pgErr("critical limits", err)
	}
	defer rows.Close()

	var out []ledger.CriticalLimit
	for rows.Next() {
		l, err := scanPgLimit(rows)
		if err != nil {
			return nil, pgErr("scan critical limit", err)
		}
		out = append(out, l)
	}
	return out, pgErr("critical limits", rows.Err())
}

func (t *pgTx) MaintenanceForms(ctx context.Context, aircraftID int64) ([]ledger.MaintenanceForm, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, aircraft_id, form_type, reference, status, notes, created_at
		FROM maintenance_forms
		WHERE aircraft_id = $1
		ORDER BY created_at DESC, id DESC
	`, aircraftID)
	if err != nil {
		return nil, pgErr("maintenance forms", err)
	}
	defer rows.Close()

	var out []ledger.MaintenanceForm
	for rows.Next() {
		var f ledger.MaintenanceForm
		if err := rows.Scan(&f.ID, &f.AircraftID, &f.FormType, &f.Reference, &f.Status, &f.Notes, &f.CreatedAt); err != nil {
			return nil, pgErr("scan maintenance form", err)
		}
		f.CreatedAt = f.CreatedAt.UTC()
		out = append(out, f)
	}
	return out, pgErr("maintenance forms", rows.Err())
}

func (t *pgTx) LatestClosedEnd(ctx context.Context, aircraftID int64) (*time.Time, error) {
	var end *time.Time
	err := t.tx.QueryRow(ctx, `
		SELECT MAX(end_time) FROM status_intervals WHERE aircraft_id = $1 AND end_time IS NOT NULL
	`, aircraftID).Scan(&end)
	if err != nil {
		return nil, pgErr("latest closed end", err)
	}
	return utcPtr(end), nil
}

func (t *pgTx) CloseOpenInterval(ctx context.Context, aircraftID int64, endTime time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE status_intervals SET end_time = $1 WHERE aircraft_id = $2 AND end_time IS NULL
	`, endTime, aircraftID)
	if err != nil {
		return pgErr("close interval", err)
	}
	if n := tag.RowsAffected(); n != 1 {
		return ledger.Errorf(ledger.CodeConflictingWrite, "aircraft %d: expected one open interval to close, closed %d", aircraftID, n)
	}
	return nil
}

func (t *pgTx) InsertInterval(ctx context.Context, iv ledger.StatusInterval) (ledger.StatusInterval, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO status_intervals (aircraft_id, status, start_time, end_time, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, iv.AircraftID, iv.Status, iv.StartTime, iv.EndTime, iv.Description, iv.CreatedAt).Scan(&iv.ID)
	return iv, pgErr("insert interval", err)
}

func (t *pgTx) SetCurrentStatus(ctx context.Context, aircraftID int64, status string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE aircraft SET current_status = $1, updated_at = $2 WHERE id = $3
	`, status, at, aircraftID)
	if err != nil {
		return pgErr("set current status", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", aircraftID)
	}
	return nil
}

// pgRecords implements ledger.RecordWriter.
type pgRecords struct {
	d *PostgresDB
}

func (r pgRecords) write(ctx context.Context, fn func(*pgTx) error) error {
	return r.d.inTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (r pgRecords) CreateAircraft(ctx context.Context, a ledger.Aircraft) (ledger.Aircraft, error) {
	err := r.write(ctx, func(t *pgTx) error {
		return pgErr("create aircraft", t.tx.QueryRow(ctx, `
			INSERT INTO aircraft (tail_number, model, current_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, a.TailNumber, a.Model, a.CurrentStatus, a.CreatedAt, a.UpdatedAt).Scan(&a.ID))
	})
	return a, err
}

func (r pgRecords) UpdateAircraftAttributes(ctx context.Context, aircraftID int64, tailNumber, model string, at time.Time) (ledger.Aircraft, error) {
	var out ledger.Aircraft
	err := r.write(ctx, func(t *pgTx) error {
		var err error
		out, err = scanPgAircraft(t.tx.QueryRow(ctx, `
			UPDATE aircraft SET tail_number = $1, model = $2, updated_at = $3 WHERE id = $4
			RETURNING `+pgAircraftCols, tailNumber, model, at, aircraftID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", aircraftID)
		}
		return pgErr("update aircraft", err)
	})
	return out, err
}

func (r pgRecords) CreateCriticalLimit(ctx context.Context, l ledger.CriticalLimit) (ledger.CriticalLimit, error) {
	err := r.write(ctx, func(t *pgTx) error {
		err := t.tx.QueryRow(ctx, `
			INSERT INTO critical_limits (aircraft_id, title, description, due_at, is_resolved, created_at)
			VALUES ($1, $2, $3, $4, FALSE, $5)
			RETURNING id
		`, l.AircraftID, l.Title, l.Description, l.DueAt, l.CreatedAt).Scan(&l.ID)
		if pgCode(err) == "23503" {
			return ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", l.AircraftID)
		}
		return pgErr("create critical limit", err)
	})
	return l, err
}

func (r pgRecords) ResolveCriticalLimit(ctx context.Context, limitID int64, at time.Time) (ledger.CriticalLimit, error) {
	var out ledger.CriticalLimit
	err := r.write(ctx, func(t *pgTx) error {
		var err error
		out, err = scanPgLimit(t.tx.QueryRow(ctx, `
			UPDATE critical_limits SET is_resolved = TRUE, resolved_at = COALESCE(resolved_at, $1)
			WHERE id = $2
			RETURNING id, aircraft_id, title, description, due_at, is_resolved, resolved_at, created_at
		`, at, limitID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Errorf(ledger.CodeNotFound, "critical limit %d not found", limitID)
		}
		return pgErr("resolve critical limit", err)
	})
	return out, err
}

func (r pgRecords) DeleteCriticalLimit(ctx context.Context, limitID int64) error {
	return r.write(ctx, func(t *pgTx) error {
		tag, err := t.tx.Exec(ctx, `DELETE FROM critical_limits WHERE id = $1`, limitID)
		if err != nil {
			return pgErr("delete critical limit", err)
		}
		if tag.RowsAffected() == 0 {
			return ledger.Errorf(ledger.CodeNotFound, "critical limit %d not found", limitID)
		}
		return nil
	})
}

func (r pgRecords) CreateMaintenanceForm(ctx context.Context, f ledger.MaintenanceForm) (ledger.MaintenanceForm, error) {
	err := r.write(ctx, func(t *pgTx) error {
		err := t.tx.QueryRow(ctx, `
			INSERT INTO maintenance_forms (aircraft_id, form_type, reference, status, notes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, f.AircraftID, f.FormType, f.Reference, f.Status, f.Notes, f.CreatedAt).Scan(&f.ID)
		if pgCode(err) == "23503" {
			return ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", f.AircraftID)
		}
		return pgErr("create maintenance form", err)
	})
	return f, err
}

func (r pgRecords) DeleteMaintenanceForm(ctx context.Context, formID int64) error {
	return r.write(ctx, func(t *pgTx) error {
		tag, err := t.tx.Exec(ctx, `DELETE FROM maintenance_forms WHERE id = $1`, formID)
		if err != nil {
			return pgErr("delete maintenance form", err)
		}
		if tag.RowsAffected() == 0 {
			return ledger.Errorf(ledger.CodeNotFound, "maintenance form %d not found", formID)
		}
		return nil
	})
}

func pgCode(err error) string {
	var pgE *pgconn.PgError
	if errors.As(err, &pgE) {
		return pgE.Code
	}
	return ""
}

// pgErr maps PostgreSQL SQLSTATE codes onto ledger codes.
func pgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *ledger.Error
	if errors.As(err, &le) {
		return err
	}
	switch code := pgCode(err); {
	case code == "55P03":
		return ledger.Wrap(ledger.CodeConflictingWrite, op+": aircraft lock not acquired", err)
	case code == "40001" || code == "40P01" || code == "23505":
		return ledger.Wrap(ledger.CodeConflictingWrite, op, err)
	case code == "23503":
		return ledger.Wrap(ledger.CodeNotFound, op+": referenced row missing", err)
	case code == "23514" || code == "P0001":
		return ledger.Wrap(ledger.CodeIntegrityViolation, op, err)
	case strings.HasPrefix(code, "08") || code == "57P01":
		return ledger.Wrap(ledger.CodeStorageUnavailable, op, err)
	case code != "":
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return ledger.Wrap(ledger.CodeStorageUnavailable, op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return ledger.Wrap(ledger.CodeStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
