// Package queuetimes polls a third-party wait-time API and appends samples to
// the queue_samples table. It is an optional auxiliary writer; the detection
// core never reads or depends on it.
package queuetimes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/acepocalypse/tt2check/internal/db"
	"github.com/acepocalypse/tt2check/internal/httputil"
	"github.com/acepocalypse/tt2check/internal/monitoring"
	"github.com/acepocalypse/tt2check/internal/timeutil"
)

// DefaultURL is the park feed carrying the launch coaster's queue.
const DefaultURL = "https://queue-times.com/parks/50/queue_times.json"

// DefaultRideID is the upstream identifier of the coaster.
const DefaultRideID = 278

// ride mirrors one ride entry of the upstream feed.
type ride struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	IsOpen      bool   `json:"is_open"`
	WaitTime    int    `json:"wait_time"`
	LastUpdated string `json:"last_updated"`
}

// feed mirrors the upstream park feed. Rides appear either at the top level
// or nested under lands.
type feed struct {
	Lands []struct {
		Rides []ride `json:"rides"`
	} `json:"lands"`
	Rides []ride `json:"rides"`
}

// Poller periodically fetches the feed and stores the tracked ride's sample.
type Poller struct {
	Client   httputil.HTTPClient
	DB       *db.DB
	Clock    timeutil.Clock
	URL      string
	RideID   int
	Interval time.Duration
}

// NewPoller creates a poller with production defaults filled in for any zero
// fields.
func NewPoller(client httputil.HTTPClient, database *db.DB) *Poller {
	return &Poller{
		Client:   client,
		DB:       database,
		Clock:    timeutil.RealClock{},
		URL:      DefaultURL,
		RideID:   DefaultRideID,
		Interval: 5 * time.Minute,
	}
}

// Run polls until the context is cancelled. Individual poll failures are
// reported and skipped; the loop keeps going.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.Clock.NewTicker(p.Interval)
	defer ticker.Stop()

	if err := p.PollOnce(); err != nil {
		monitoring.Logf("[queue] poll failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := p.PollOnce(); err != nil {
				monitoring.Logf("[queue] poll failed: %v", err)
			}
		}
	}
}

// PollOnce fetches the feed once and appends a sample for the tracked ride.
func (p *Poller) PollOnce() error {
	resp, err := p.Client.Get(p.URL)
	if err != nil {
		return fmt.Errorf("fetch queue feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("queue feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read queue feed: %w", err)
	}

	var f feed
	if err := json.Unmarshal(body, &f); err != nil {
		return fmt.Errorf("parse queue feed: %w", err)
	}

	r, ok := findRide(&f, p.RideID)
	if !ok {
		return fmt.Errorf("ride %d not present in feed", p.RideID)
	}

	if err := p.DB.InsertQueueSample(p.Clock.Now(), r.IsOpen, r.WaitTime, r.LastUpdated); err != nil {
		return err
	}
	return nil
}

func findRide(f *feed, id int) (ride, bool) {
	for _, r := range f.Rides {
		if r.ID == id {
			return r, true
		}
	}
	for _, land := range f.Lands {
		for _, r := range land.Rides {
			if r.ID == id {
				return r, true
			}
		}
	}
	return ride{}, false
}
