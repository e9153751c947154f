package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/acepocalypse/tt2check/internal/timeutil"
)

// LaunchEvent is one classified launch attempt in the append-only log.
type LaunchEvent struct {
	ID           int64   `json:"id"`
	RecordedUnix float64 `json:"recorded_unix"`
	Outcome      string  `json:"outcome"`
}

// EventStore handles writes and reads of the launches table. The only
// permitted mutation of an existing row is the single amend rule.
type EventStore struct {
	db          *DB
	minInterval time.Duration
}

// NewEventStore creates an EventStore with the given minimum interval between
// rows of the same outcome.
func NewEventStore(db *DB, minInterval time.Duration) *EventStore {
	return &EventStore{db: db, minInterval: minInterval}
}

// Record appends the outcome unless a row with the same outcome exists within
// the minimum interval, in which case the write is suppressed and (false,
// nil) is returned. Suppression protects against the same physical event
// being logged twice by overlapping detector cycles; it is not an error.
func (s *EventStore) Record(outcome string, ts time.Time) (bool, error) {
	var prevUnix float64
	err := s.db.QueryRow(
		`SELECT recorded_unix FROM launches WHERE outcome = ? ORDER BY id DESC LIMIT 1`,
		outcome,
	).Scan(&prevUnix)
	switch {
	case err == nil:
		elapsed := float64(ts.Unix()) - prevUnix
		if elapsed < s.minInterval.Seconds() {
			return false, nil
		}
	case errors.Is(err, sql.ErrNoRows):
		// First event of this outcome.
	default:
		return false, fmt.Errorf("dedup lookup for %s: %w", outcome, err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO launches (recorded_unix, outcome) VALUES (?, ?)`,
		float64(ts.Unix()), outcome,
	); err != nil {
		return false, fmt.Errorf("insert %s event: %w", outcome, err)
	}
	return true, nil
}

// AmendLastRollbackToSuccess rewrites the outcome of the single most recent
// rollback row. Older rollback rows are never touched. Returns whether a row
// was changed.
func (s *EventStore) AmendLastRollbackToSuccess() (bool, error) {
	res, err := s.db.Exec(`
		UPDATE launches SET outcome = 'success'
		WHERE id = (SELECT id FROM launches WHERE outcome = 'rollback' ORDER BY id DESC LIMIT 1)
	`)
	if err != nil {
		return false, fmt.Errorf("amend rollback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("amend rollback rows: %w", err)
	}
	return n > 0, nil
}

// LatestLaunch returns the most recent event, or nil if none exist.
func (db *DB) LatestLaunch() (*LaunchEvent, error) {
	var e LaunchEvent
	err := db.QueryRow(
		`SELECT id, recorded_unix, outcome FROM launches ORDER BY id DESC LIMIT 1`,
	).Scan(&e.ID, &e.RecordedUnix, &e.Outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest launch: %w", err)
	}
	return &e, nil
}

// ListLaunches returns the limit most recent events, newest first.
func (db *DB) ListLaunches(limit int) ([]LaunchEvent, error) {
	rows, err := db.Query(
		`SELECT id, recorded_unix, outcome FROM launches ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	defer rows.Close()

	events := []LaunchEvent{}
	for rows.Next() {
		var e LaunchEvent
		if err := rows.Scan(&e.ID, &e.RecordedUnix, &e.Outcome); err != nil {
			return nil, fmt.Errorf("scan launch row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate launch rows: %w", err)
	}
	return events, nil
}

// LaunchStats returns a count of rows per outcome.
func (db *DB) LaunchStats() (map[string]int, error) {
	rows, err := db.Query(`SELECT outcome, COUNT(*) FROM launches GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("launch stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats rows: %w", err)
	}
	return stats, nil
}

// LaunchesByDay returns per-day outcome counts for the report tool, oldest
// day first, covering the trailing days window. Days are bucketed in the
// given location so late-evening launches land on the right operating day.
func (db *DB) LaunchesByDay(days int, loc *time.Location) (map[string]map[string]int, []string, error) {
	if loc == nil {
		loc = time.UTC
	}
	cutoff := float64(time.Now().AddDate(0, 0, -days).Unix())
	rows, err := db.Query(`
		SELECT recorded_unix, outcome
		FROM launches
		WHERE recorded_unix >= ?
		ORDER BY id ASC
	`, cutoff)
	if err != nil {
		return nil, nil, fmt.Errorf("launches by day: %w", err)
	}
	defer rows.Close()

	byDay := map[string]map[string]int{}
	var order []string
	for rows.Next() {
		var recordedUnix float64
		var outcome string
		if err := rows.Scan(&recordedUnix, &outcome); err != nil {
			return nil, nil, fmt.Errorf("scan day row: %w", err)
		}
		day := timeutil.DayOf(time.Unix(int64(recordedUnix), 0), loc)
		if _, ok := byDay[day]; !ok {
			byDay[day] = map[string]int{}
			order = append(order, day)
		}
		byDay[day][outcome]++
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate day rows: %w", err)
	}
	return byDay, order, nil
}
