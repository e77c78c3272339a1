// Package ledger records aircraft status transitions as a partition of time
// into contiguous, non-overlapping intervals and answers queries against it.
//
// The Engine is the only writer of status intervals. Query, Dossiers and
// Records read through the same Store but never take the per-aircraft write
// lock.
package ledger

import (
	"strings"
	"time"
)

// Instants outside [minTime, maxTime] cannot be written and read back by
// every store.
var (
	minTime = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime = time.Date(9999, 12, 31, 23, 59, 59, 999999000, time.UTC)
)

// StatusUnknown is the projection value of an aircraft that has never had a
// status interval.
const StatusUnknown = "UNKNOWN"

// Well-known status labels. Any non-empty label is accepted.
const (
	StatusAOG        = "AOG"
	StatusLimitation = "LIMITATION"
	StatusInService  = "IN_SERVICE"
)

// Aircraft is a tracked airframe.
type Aircraft struct {
	ID            int64
	TailNumber    string
	Model         string
	CurrentStatus string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusInterval records that an aircraft held Status from StartTime until
// EndTime. A nil EndTime marks the open interval.
type StatusInterval struct {
	ID          int64
	AircraftID  int64
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	Description string
	CreatedAt   time.Time
}

// Open reports whether the interval is still ongoing.
func (iv StatusInterval) Open() bool {
	return iv.EndTime == nil
}

// Duration returns the interval length, measured up to now for an open one.
func (iv StatusInterval) Duration(now time.Time) time.Duration {
	if iv.EndTime != nil {
		return iv.EndTime.Sub(iv.StartTime)
	}
	return now.Sub(iv.StartTime)
}

// CriticalLimit is an operational limitation attached to an aircraft.
type CriticalLimit struct {
	ID          int64
	AircraftID  int64
	Title       string
	Description string
	DueAt       *time.Time
	IsResolved  bool
	ResolvedAt  *time.Time
	CreatedAt   time.Time
}

// MaintenanceForm is a maintenance record attached to an aircraft.
type MaintenanceForm struct {
	ID         int64
	AircraftID int64
	FormType   string
	Reference  string
	Status     string
	Notes      string
	CreatedAt  time.Time
}

// OpenStatusRow is one row of the open-interval-by-status join as read from
// the store, before consistency checking. Interval is nil when the aircraft
// has no open interval.
type OpenStatusRow struct {
	Aircraft Aircraft
	Interval *StatusInterval
}

// StatusCount is the number of aircraft currently in a status.
type StatusCount struct {
	Status string
	Count  int
}

// ArchiveFilter selects closed intervals.
type ArchiveFilter struct {
	Status string // Empty matches every status.
	Limit  int
}

// NormalizeStatus canonicalises a status label.
func NormalizeStatus(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}

// NormalizeTime truncates t to the precision every backend can store.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// checkTimeRange rejects an already normalized instant outside the storable
// range.
func checkTimeRange(field string, t time.Time) error {
	if t.Before(minTime) || t.After(maxTime) {
		return Errorf(CodeInvalidInput, "%s %s is outside years 0001-9999", field, t.Format(time.RFC3339))
	}
	return nil
}
