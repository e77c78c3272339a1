package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fleet_status/internal/ledger"
)

// timeLayout is a fixed-width UTC layout: lexical order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLiteStore is the embedded interval store.
//
// Writes go through a pool whose transactions begin IMMEDIATE, so a write
// transaction holds the database write lock from its first statement and
// concurrent transitions queue on busy_timeout. Reads go through a second
// pool with deferred transactions, which in WAL mode read a stable snapshot
// without blocking or being blocked by the writer.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
}

var _ ledger.Store = (*SQLiteStore)(nil)

func sqliteDSN(path string, lockTimeout time.Duration, immediate bool) string {
	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", lockTimeout.Milliseconds()),
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
	}
	if immediate {
		params = append(params, "_txlock=immediate")
	}
	return path + "?" + strings.Join(params, "&")
}

// OpenSQLite opens or creates a SQLite database at path and ensures the
// schema exists. ":memory:" shares a single connection between readers and
// the writer.
func OpenSQLite(ctx context.Context, path string, lockTimeout time.Duration) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	writer, err := sql.Open("sqlite", sqliteDSN(path, lockTimeout, true))
	if err != nil {
		return nil, fmt.Errorf("open sqlite writer: %w", err)
	}

	reader := writer
	if path == ":memory:" {
		writer.SetMaxOpenConns(1)
	} else {
		reader, err = sql.Open("sqlite", sqliteDSN(path, lockTimeout, false))
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("open sqlite reader: %w", err)
		}
	}

	s := NewSQLiteStore(writer, reader)
	if err := s.CreateSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps already opened handles. The writer handle must begin
// transactions IMMEDIATE.
func NewSQLiteStore(writer, reader *sql.DB) *SQLiteStore {
	if reader == nil {
		reader = writer
	}
	return &SQLiteStore{writer: writer, reader: reader}
}

// Close closes both handles.
func (s *SQLiteStore) Close() error {
	err := s.writer.Close()
	if s.reader != s.writer {
		if rerr := s.reader.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// CreateSchema creates the tables, indexes and triggers.
func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	if _, err := s.writer.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// WriteTx runs fn in an IMMEDIATE transaction.
func (s *SQLiteStore) WriteTx(ctx context.Context, fn func(ledger.Writer) error) error {
	return s.inTx(ctx, s.writer, func(tx *sqliteTx) error { return fn(tx) })
}

// ReadTx runs fn in a deferred transaction that is always rolled back.
func (s *SQLiteStore) ReadTx(ctx context.Context, fn func(ledger.Reader) error) error {
	tx, err := s.reader.BeginTx(ctx, nil)
	if err != nil {
		return sqliteBeginErr(err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&sqliteTx{tx: tx})
}

// Records returns the ancillary record writer.
func (s *SQLiteStore) Records() ledger.RecordWriter {
	return sqliteRecords{s: s}
}

func (s *SQLiteStore) inTx(ctx context.Context, db *sql.DB, fn func(*sqliteTx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteBeginErr(err)
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Wrap(ledger.CodeStorageUnavailable, "commit",
			fmt.Errorf("%w: %w", ledger.ErrCommitUncertain, err))
	}
	return nil
}

// sqliteTx implements ledger.Writer on one transaction.
type sqliteTx struct {
	tx *sql.Tx
}

const sqliteAircraftCols = `id, tail_number, model, current_status, created_at, updated_at`
const sqliteIntervalCols = `id, aircraft_id, status, start_time, end_time, description, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAircraft(row rowScanner) (ledger.Aircraft, error) {
	var a ledger.Aircraft
	var created, updated string
	if err := row.Scan(&a.ID, &a.TailNumber, &a.Model, &a.CurrentStatus, &created, &updated); err != nil {
		return a, err
	}
	var err error
	if a.CreatedAt, err = parseTime(created); err != nil {
		return a, err
	}
	a.UpdatedAt, err = parseTime(updated)
	return a, err
}

func scanSQLiteInterval(row rowScanner) (ledger.StatusInterval, error) {
	var iv ledger.StatusInterval
	var start, created string
	var end sql.NullString
	if err := row.Scan(&iv.ID, &iv.AircraftID, &iv.Status, &start, &end, &iv.Description, &created); err != nil {
		return iv, err
	}
	var err error
	if iv.StartTime, err = parseTime(start); err != nil {
		return iv, err
	}
	if iv.EndTime, err = parseNullTime(end); err != nil {
		return iv, err
	}
	iv.CreatedAt, err = parseTime(created)
	return iv, err
}

func (t *sqliteTx) GetAircraft(ctx context.Context, aircraftID int64) (ledger.Aircraft, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+sqliteAircraftCols+` FROM aircraft WHERE id = ?`, aircraftID)
	a, err := scanSQLiteAircraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", aircraftID)
	}
	if err != nil {
		return a, sqliteErr("get aircraft", err)
	}
	return a, nil
}

func (t *sqliteTx) ListAircraft(ctx context.Context) ([]ledger.Aircraft, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+sqliteAircraftCols+` FROM aircraft ORDER BY id`)
	if err != nil {
		return nil, sqliteErr("list aircraft", err)
	}
	defer rows.Close()

	var out []ledger.Aircraft
	for rows.Next() {
		a, err := scanSQLiteAircraft(rows)
		if err != nil {
			return nil, sqliteErr("scan aircraft", err)
		}
		out = append(out, a)
	}
	return out, sqliteErr("list aircraft", rows.Err())
}

// LockAircraft reads the aircraft row. The IMMEDIATE transaction already
// holds the database write lock.
func (t *sqliteTx) LockAircraft(ctx context.Context, aircraftID int64) (ledger.Aircraft, error) {
	return t.GetAircraft(ctx, aircraftID)
}

func (t *sqliteTx) OpenIntervalFor(ctx context.Context, aircraftID int64) (*ledger.StatusInterval, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+sqliteIntervalCols+`
		FROM status_intervals
		WHERE aircraft_id = ? AND end_time IS NULL
	`, aircraftID)
	iv, err := scanSQLiteInterval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sqliteErr("open interval", err)
	}
	return &iv, nil
}

func (t *sqliteTx) HistoryFor(ctx context.Context, aircraftID int64) ([]ledger.StatusInterval, error) {
	return t.queryIntervals(ctx, "history", `
		SELECT `+sqliteIntervalCols+`
		FROM status_intervals
		WHERE aircraft_id = ?
		ORDER BY start_time DESC, id DESC
	`, aircraftID)
}

func (t *sqliteTx) ListClosed(ctx context.Context, filter ledger.ArchiveFilter) ([]ledger.StatusInterval, error) {
	query := `SELECT ` + sqliteIntervalCols + ` FROM status_intervals WHERE end_time IS NOT NULL`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY end_time DESC, id DESC LIMIT ?`
	args = append(args, filter.Limit)
	return t.queryIntervals(ctx, "archive", query, args...)
}

func (t *sqliteTx) queryIntervals(ctx context.Context, op, query string, args ...any) ([]ledger.StatusInterval, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteErr(op, err)
	}
	defer rows.Close()

	var out []ledger.StatusInterval
	for rows.Next() {
		iv, err := scanSQLiteInterval(rows)
		if err != nil {
			return nil, sqliteErr(op, err)
		}
		out = append(out, iv)
	}
	return out, sqliteErr(op, rows.Err())
}

func (t *sqliteTx) ListOpenByStatus(ctx context.Context, status string) ([]ledger.OpenStatusRow, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT a.id, a.tail_number, a.model, a.current_status, a.created_at, a.updated_at,
		       i.id, i.status, i.start_time, i.description, i.created_at
		FROM aircraft a
		LEFT JOIN status_intervals i ON i.aircraft_id = a.id AND i.end_time IS NULL
		WHERE a.current_status = ? OR i.status = ?
		ORDER BY i.start_time DESC, a.id
	`, status, status)
	if err != nil {
		return nil, sqliteErr("list by status", err)
	}
	defer rows.Close()

	var out []ledger.OpenStatusRow
	for rows.Next() {
		var row ledger.OpenStatusRow
		var aCreated, aUpdated string
		var ivID sql.NullInt64
		var ivStatus, ivStart, ivDesc, ivCreated sql.NullString
		err := rows.Scan(&row.Aircraft.ID, &row.Aircraft.TailNumber, &row.Aircraft.Model,
			&row.Aircraft.CurrentStatus, &aCreated, &aUpdated,
			&ivID, &ivStatus, &ivStart, &ivDesc, &ivCreated)
		if err != nil {
			return nil, sqliteErr("scan status row", err)
		}
		if row.Aircraft.CreatedAt, err = parseTime(aCreated); err != nil {
			return nil, err
		}
		if row.Aircraft.UpdatedAt, err = parseTime(aUpdated); err != nil {
			return nil, err
		}
		if ivID.Valid {
			iv := ledger.StatusInterval{
				ID:          ivID.Int64,
				AircraftID:  row.Aircraft.ID,
				Status:      ivStatus.String,
				Description: ivDesc.String,
			}
			if iv.StartTime, err = parseTime(ivStart.String); err != nil {
				return nil, err
			}
			if iv.CreatedAt, err = parseTime(ivCreated.String); err != nil {
				return nil, err
			}
			row.Interval = &iv
		}
		out = append(out, row)
	}
	return out, sqliteErr("list by status", rows.Err())
}

func (t *sqliteTx) CountByStatus(ctx context.Context) ([]ledger.StatusCount, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT current_status, COUNT(*) FROM aircraft GROUP BY current_status ORDER BY current_status
	`)
	if err != nil {
		return nil, sqliteErr("count by status", err)
	}
	defer rows.Close()

	var out []ledger.StatusCount
	for rows.Next() {
		var c ledger.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, sqliteErr("scan count", err)
		}
		out = append(out, c)
	}
	return out, sqliteErr("count by status", rows.Err())
}

func (t *sqliteTx) OpenCriticalLimits(ctx context.Context, aircraftID int64) ([]ledger.CriticalLimit, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, aircraft_id, title, description, due_at, is_resolved, resolved_at, created_at
		FROM critical_limits
		WHERE aircraft_id = ? AND is_resolved = 0
		ORDER BY created_at, id
	`, aircraftID)
	if err != nil {
		return nil, sqliteErr("critical limits", err)
	}
	defer rows.Close()

	var out []ledger.CriticalLimit
	for rows.Next() {
		l, err := scanSQLiteLimit(rows)
		if err != nil {
			return nil, sqliteErr("scan critical limit", err)
		}
		out = append(out, l)
	}
	return out, sqliteErr("critical limits", rows.Err())
}

func scanSQLiteLimit(row rowScanner) (ledger.CriticalLimit, error) {
	var l ledger.CriticalLimit
	var due, resolved sql.NullString
	var created string
	if err := row.Scan(&l.ID, &l.AircraftID, &l.Title, &l.Description, &due, &l.IsResolved, &resolved, &created); err != nil {
		return l, err
	}
	var err error
	if l.DueAt, err = parseNullTime(due); err != nil {
		return l, err
	}
	if l.ResolvedAt, err = parseNullTime(resolved); err != nil {
		return l, err
	}
	l.CreatedAt, err = parseTime(created)
	return l, err
}

func (t *sqliteTx) MaintenanceForms(ctx context.Context, aircraftID int64) ([]ledger.MaintenanceForm, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, aircraft_id, form_type, reference, status, notes, created_at
		FROM maintenance_forms
		WHERE aircraft_id = ?
		ORDER BY created_at DESC, id DESC
	`, aircraftID)
	if err != nil {
		return nil, sqliteErr("maintenance forms", err)
	}
	defer rows.Close()

	var out []ledger.MaintenanceForm
	for rows.Next() {
		var f ledger.MaintenanceForm
		var created string
		if err := rows.Scan(&f.ID, &f.AircraftID, &f.FormType, &f.Reference, &f.Status, &f.Notes, &created); err != nil {
			return nil, sqliteErr("scan maintenance form", err)
		}
		if f.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, sqliteErr("maintenance forms", rows.Err())
}

func (t *sqliteTx) LatestClosedEnd(ctx context.Context, aircraftID int64) (*time.Time, error) {
	var end sql.NullString
	err := t.tx.QueryRowContext(ctx, `
		SELECT MAX(end_time) FROM status_intervals WHERE aircraft_id = ? AND end_time IS NOT NULL
	`, aircraftID).Scan(&end)
	if err != nil {
		return nil, sqliteErr("latest closed end", err)
	}
	return parseNullTime(end)
}

func (t *sqliteTx) CloseOpenInterval(ctx context.Context, aircraftID int64, endTime time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE status_intervals SET end_time = ? WHERE aircraft_id = ? AND end_time IS NULL
	`, formatTime(endTime), aircraftID)
	if err != nil {
		return sqliteErr("close interval", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sqliteErr("close interval", err)
	}
	if n != 1 {
		return ledger.Errorf(ledger.CodeConflictingWrite, "aircraft %d: expected one open interval to close, closed %d", aircraftID, n)
	}
	return nil
}

func (t *sqliteTx) InsertInterval(ctx context.Context, iv ledger.StatusInterval) (ledger.StatusInterval, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO status_intervals (aircraft_id, status, start_time, end_time, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, iv.AircraftID, iv.Status, formatTime(iv.StartTime), formatNullTime(iv.EndTime), iv.Description, formatTime(iv.CreatedAt))
	if err != nil {
		return iv, sqliteErr("insert interval", err)
	}
	if iv.ID, err = res.LastInsertId(); err != nil {
		return iv, sqliteErr("insert interval", err)
	}
	return iv, nil
}

func (t *sqliteTx) SetCurrentStatus(ctx context.Context, aircraftID int64, status string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE aircraft SET current_status = ?, updated_at = ? WHERE id = ?
	`, status, formatTime(at), aircraftID)
	return expectOne(res, err, "set current status", ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", aircraftID))
}

func expectOne(res sql.Result, err error, op string, missing error) error {
	if err != nil {
		return sqliteErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sqliteErr(op, err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

// sqliteRecords implements ledger.RecordWriter.
type sqliteRecords struct {
	s *SQLiteStore
}

func (r sqliteRecords) CreateAircraft(ctx context.Context, a ledger.Aircraft) (ledger.Aircraft, error) {
	err := r.s.inTx(ctx, r.s.writer, func(t *sqliteTx) error {
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO aircraft (tail_number, model, current_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, a.TailNumber, a.Model, a.CurrentStatus, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
		if err != nil {
			return sqliteErr("create aircraft", err)
		}
		a.ID, err = res.LastInsertId()
		return sqliteErr("create aircraft", err)
	})
	return a, err
}

func (r sqliteRecords) UpdateAircraftAttributes(ctx context.Context, aircraftID int64, tailNumber, model string, at time.Time) (ledger.Aircraft, error) {
	var out ledger.Aircraft
	err := r.s.inTx(ctx, r.s.writer, func(t *sqliteTx) error {
		res, err := t.tx.ExecContext(ctx, `
			UPDATE aircraft SET tail_number = ?, model = ?, updated_at = ? WHERE id = ?
		`, tailNumber, model, formatTime(at), aircraftID)
		if err := expectOne(res, err, "update aircraft", ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", aircraftID)); err != nil {
			return err
		}
		out, err = t.GetAircraft(ctx, aircraftID)
		return err
	})
	return out, err
}

func (r sqliteRecords) CreateCriticalLimit(ctx context.Context, l ledger.CriticalLimit) (ledger.CriticalLimit, error) {
	err := r.s.inTx(ctx, r.s.writer, func(t *sqliteTx) error {
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO critical_limits (aircraft_id, title, description, due_at, is_resolved, resolved_at, created_at)
			VALUES (?, ?, ?, ?, 0, NULL, ?)
		`, l.AircraftID, l.Title, l.Description, formatNullTime(l.DueAt), formatTime(l.CreatedAt))
		if err != nil {
			return sqliteRefErr("create critical limit", l.AircraftID, err)
		}
		l.ID, err = res.LastInsertId()
		return sqliteErr("create critical limit", err)
	})
	return l, err
}

func (r sqliteRecords) ResolveCriticalLimit(ctx context.Context, limitID int64, at time.Time) (ledger.CriticalLimit, error) {
	var out ledger.CriticalLimit
	err := r.s.inTx(ctx, r.s.writer, func(t *sqliteTx) error {
		res, err := t.tx.ExecContext(ctx, `
			UPDATE critical_limits SET is_resolved = 1, resolved_at = COALESCE(resolved_at, ?) WHERE id = ?
		`, formatTime(at), limitID)
		if err := expectOne(res, err, "resolve critical limit", ledger.Errorf(ledger.CodeNotFound, "critical limit %d not found", limitID)); err != nil {
			return err
		}
		row := t.tx.QueryRowContext(ctx, `
			SELECT id, aircraft_id, title, description, due_at, is_resolved, resolved_at, created_at
			FROM critical_limits WHERE id = ?
		`, limitID)
		out, err = scanSQLiteLimit(row)
		return sqliteErr("read critical limit", err)
	})
	return out, err
}

func (r sqliteRecords) DeleteCriticalLimit(ctx context.Context, limitID int64) error {
	return r.s.inTx(ctx, r.s.writer, func(t *sqliteTx) error {
		res, err := t.tx.ExecContext(ctx, `DELETE FROM critical_limits WHERE id = ?`, limitID)
		return expectOne(res, err, "delete critical limit", ledger.Errorf(ledger.CodeNotFound, "critical limit %d not found", limitID))
	})
}

func (r sqliteRecords) CreateMaintenanceForm(ctx context.Context, f ledger.MaintenanceForm) (ledger.MaintenanceForm, error) {
	err := r.s.inTx(ctx, r.s.writer, func(t *sqliteTx) error {
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO maintenance_forms (aircraft_id, form_type, reference, status, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, f.AircraftID, f.FormType, f.Reference, f.Status, f.Notes, formatTime(f.CreatedAt))
		if err != nil {
			return sqliteRefErr("create maintenance form", f.AircraftID, err)
		}
		f.ID, err = res.LastInsertId()
		return sqliteErr("create maintenance form", err)
	})
	return f, err
}

func (r sqliteRecords) DeleteMaintenanceForm(ctx context.Context, formID int64) error {
	return r.s.inTx(ctx, r.s.writer, func(t *sqliteTx) error {
		res, err := t.tx.ExecContext(ctx, `DELETE FROM maintenance_forms WHERE id = ?`, formID)
		return expectOne(res, err, "delete maintenance form", ledger.Errorf(ledger.CodeNotFound, "maintenance form %d not found", formID))
	})
}

// sqliteRefErr reports a foreign key failure on aircraft_id as NotFound.
func sqliteRefErr(op string, aircraftID int64, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return ledger.Errorf(ledger.CodeNotFound, "aircraft %d not found", aircraftID)
	}
	return sqliteErr(op, err)
}

func sqliteBeginErr(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && isBusy(se.Code()) {
		return ledger.Wrap(ledger.CodeConflictingWrite, "database write lock not acquired", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ledger.Wrap(ledger.CodeStorageUnavailable, "begin transaction", err)
}

// sqliteErr maps SQLite result codes onto ledger codes.
func sqliteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *ledger.Error
	if errors.As(err, &le) {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		switch {
		case isBusy(code):
			return ledger.Wrap(ledger.CodeConflictingWrite, op+": database busy", err)
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ledger.Wrap(ledger.CodeConflictingWrite, op, err)
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ledger.Wrap(ledger.CodeNotFound, op+": referenced row missing", err)
		case code == sqlite3.SQLITE_CONSTRAINT_CHECK || code == sqlite3.SQLITE_CONSTRAINT_TRIGGER:
			return ledger.Wrap(ledger.CodeIntegrityViolation, op, err)
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return ledger.Wrap(ledger.CodeStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(code int) bool {
	primary := code & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}

func formatTime(t time.Time) string {
	return ledger.NormalizeTime(t).Format(timeLayout)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return t, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
