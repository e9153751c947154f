package db

import (
	"fmt"
	"time"
)

// QueueSample is one poll of the third-party wait-time API. Rows are written
// only by the queue-time poller and are immutable once written.
type QueueSample struct {
	ID          int64   `json:"id"`
	SampledUnix float64 `json:"sampled_unix"`
	IsOpen      bool    `json:"is_open"`
	WaitMinutes int     `json:"wait_minutes"`
	ReportedAt  string  `json:"reported_at"`
}

// InsertQueueSample appends one wait-time sample.
func (db *DB) InsertQueueSample(ts time.Time, isOpen bool, waitMinutes int, reportedAt string) error {
	if _, err := db.Exec(
		`INSERT INTO queue_samples (sampled_unix, is_open, wait_minutes, reported_at) VALUES (?, ?, ?, ?)`,
		float64(ts.Unix()), isOpen, waitMinutes, reportedAt,
	); err != nil {
		return fmt.Errorf("insert queue sample: %w", err)
	}
	return nil
}

// ListQueueSamples returns the limit most recent samples, newest first.
func (db *DB) ListQueueSamples(limit int) ([]QueueSample, error) {
	rows, err := db.Query(
		`SELECT id, sampled_unix, is_open, wait_minutes, reported_at
		 FROM queue_samples ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list queue samples: %w", err)
	}
	defer rows.Close()

	samples := []QueueSample{}
	for rows.Next() {
		var s QueueSample
		if err := rows.Scan(&s.ID, &s.SampledUnix, &s.IsOpen, &s.WaitMinutes, &s.ReportedAt); err != nil {
			return nil, fmt.Errorf("scan queue sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue samples: %w", err)
	}
	return samples, nil
}
