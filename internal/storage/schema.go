package storage

// sqliteSchema holds the SQLite table definitions. Timestamps are stored as
// fixed-width UTC text (see timeLayout) so that text order is time order.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS aircraft (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	tail_number    TEXT NOT NULL,
	model          TEXT NOT NULL DEFAULT '',
	current_status TEXT NOT NULL DEFAULT 'UNKNOWN',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aircraft_current_status ON aircraft(current_status);

CREATE TABLE IF NOT EXISTS status_intervals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	aircraft_id INTEGER NOT NULL REFERENCES aircraft(id),
	status      TEXT NOT NULL,
	start_time  TEXT NOT NULL,
	end_time    TEXT,
	description TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	CHECK (end_time IS NULL OR end_time >= start_time)
);

-- At most one open interval per aircraft.
CREATE UNIQUE INDEX IF NOT EXISTS idx_status_intervals_one_open
	ON status_intervals(aircraft_id) WHERE end_time IS NULL;
CREATE INDEX IF NOT EXISTS idx_status_intervals_aircraft_start
	ON status_intervals(aircraft_id, start_time DESC);
CREATE INDEX IF NOT EXISTS idx_status_intervals_open_status
	ON status_intervals(status) WHERE end_time IS NULL;
CREATE INDEX IF NOT EXISTS idx_status_intervals_end
	ON status_intervals(end_time) WHERE end_time IS NOT NULL;

-- Intervals are append-only: end_time is set once, nothing else changes.
CREATE TRIGGER IF NOT EXISTS status_intervals_append_only_update
BEFORE UPDATE ON status_intervals
WHEN OLD.end_time IS NOT NULL
	OR NEW.end_time IS NULL
	OR NEW.aircraft_id IS NOT OLD.aircraft_id
	OR NEW.status IS NOT OLD.status
	OR NEW.start_time IS NOT OLD.start_time
	OR NEW.description IS NOT OLD.description
BEGIN
	SELECT RAISE(ABORT, 'status intervals are append-only');
END;

CREATE TRIGGER IF NOT EXISTS status_intervals_append_only_delete
BEFORE DELETE ON status_intervals
BEGIN
	SELECT RAISE(ABORT, 'status intervals are append-only');
END;

CREATE TABLE IF NOT EXISTS critical_limits (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	aircraft_id INTEGER NOT NULL REFERENCES aircraft(id),
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_at      TEXT,
	is_resolved INTEGER NOT NULL DEFAULT 0,
	resolved_at TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_critical_limits_aircraft ON critical_limits(aircraft_id, is_resolved);

CREATE TABLE IF NOT EXISTS maintenance_forms (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	aircraft_id INTEGER NOT NULL REFERENCES aircraft(id),
	form_type   TEXT NOT NULL,
	reference   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	notes       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_maintenance_forms_aircraft ON maintenance_forms(aircraft_id);
`

// postgresSchema holds the PostgreSQL table definitions.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS aircraft (
	id             BIGSERIAL PRIMARY KEY,
	tail_number    TEXT NOT NULL,
	model          TEXT NOT NULL DEFAULT '',
	current_status TEXT NOT NULL DEFAULT 'UNKNOWN',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_aircraft_current_status ON aircraft(current_status);

CREATE TABLE IF NOT EXISTS status_intervals (
	id          BIGSERIAL PRIMARY KEY,
	aircraft_id BIGINT NOT NULL REFERENCES aircraft(id),
	status      TEXT NOT NULL,
	start_time  TIMESTAMPTZ NOT NULL,
	end_time    TIMESTAMPTZ,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (end_time IS NULL OR end_time >= start_time)
);

CREATE INDEX IF NOT EXISTS idx_status_intervals_aircraft_start
	ON status_intervals(aircraft_id, start_time DESC);

CREATE TABLE IF NOT EXISTS critical_limits (
	id          BIGSERIAL PRIMARY KEY,
	aircraft_id BIGINT NOT NULL REFERENCES aircraft(id),
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_at      TIMESTAMPTZ,
	is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_critical_limits_aircraft ON critical_limits(aircraft_id, is_resolved);

CREATE TABLE IF NOT EXISTS maintenance_forms (
	id          BIGSERIAL PRIMARY KEY,
	aircraft_id BIGINT NOT NULL REFERENCES aircraft(id),
	form_type   TEXT NOT NULL,
	reference   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	notes       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_maintenance_forms_aircraft ON maintenance_forms(aircraft_id);

CREATE OR REPLACE FUNCTION status_intervals_append_only() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		RAISE EXCEPTION 'status intervals are append-only';
	END IF;
	IF OLD.end_time IS NOT NULL
		OR NEW.end_time IS NULL
		OR NEW.aircraft_id IS DISTINCT FROM OLD.aircraft_id
		OR NEW.status IS DISTINCT FROM OLD.status
		OR NEW.start_time IS DISTINCT FROM OLD.start_time
		OR NEW.description IS DISTINCT FROM OLD.description THEN
		RAISE EXCEPTION 'status intervals are append-only';
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;
`

// postgresPostSchema runs statement by statement after postgresSchema:
// partial indexes and the append-only trigger.
var postgresPostSchema = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_status_intervals_one_open ON status_intervals(aircraft_id) WHERE end_time IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_status_intervals_open_status ON status_intervals(status) WHERE end_time IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_status_intervals_end ON status_intervals(end_time) WHERE end_time IS NOT NULL`,
	`DROP TRIGGER IF EXISTS status_intervals_append_only ON status_intervals`,
	`CREATE TRIGGER status_intervals_append_only BEFORE UPDATE OR DELETE ON status_intervals
		FOR EACH ROW EXECUTE FUNCTION status_intervals_append_only()`,
}
