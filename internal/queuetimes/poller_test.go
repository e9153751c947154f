package queuetimes

import (
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/acepocalypse/tt2check/internal/db"
	"github.com/acepocalypse/tt2check/internal/httputil"
	"github.com/acepocalypse/tt2check/internal/timeutil"
)

const landsFeed = `{
	"lands": [
		{"rides": [
			{"id": 277, "name": "Other Ride", "is_open": true, "wait_time": 5, "last_updated": "2025-06-01T11:55:00Z"},
			{"id": 278, "name": "Launch Coaster", "is_open": true, "wait_time": 90, "last_updated": "2025-06-01T12:00:00Z"}
		]}
	]
}`

const flatFeed = `{
	"rides": [
		{"id": 278, "name": "Launch Coaster", "is_open": false, "wait_time": 0, "last_updated": "2025-06-01T08:00:00Z"}
	]
}`

func newTestPoller(t *testing.T) (*Poller, *httputil.MockHTTPClient, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	client := httputil.NewMockHTTPClient()
	p := NewPoller(client, database)
	p.Clock = timeutil.NewMockClock(time.Unix(1700000000, 0))
	return p, client, database
}

func TestPollOnceStoresSample(t *testing.T) {
	p, client, database := newTestPoller(t)
	client.AddResponse(http.StatusOK, landsFeed)

	if err := p.PollOnce(); err != nil {
		t.Fatal(err)
	}

	samples, err := database.ListQueueSamples(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	s := samples[0]
	if !s.IsOpen || s.WaitMinutes != 90 || s.ReportedAt != "2025-06-01T12:00:00Z" {
		t.Fatalf("sample = %+v", s)
	}
	if client.RequestCount() != 1 {
		t.Fatalf("requests = %d", client.RequestCount())
	}
}

func TestPollOnceFindsTopLevelRides(t *testing.T) {
	p, client, database := newTestPoller(t)
	client.AddResponse(http.StatusOK, flatFeed)

	if err := p.PollOnce(); err != nil {
		t.Fatal(err)
	}
	samples, err := database.ListQueueSamples(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 || samples[0].IsOpen || samples[0].WaitMinutes != 0 {
		t.Fatalf("samples = %+v", samples)
	}
}

func TestPollOnceErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*httputil.MockHTTPClient)
	}{
		{"transport error", func(c *httputil.MockHTTPClient) {
			c.AddErrorResponse(errors.New("connection refused"))
		}},
		{"upstream 500", func(c *httputil.MockHTTPClient) {
			c.AddResponse(http.StatusInternalServerError, "oops")
		}},
		{"malformed body", func(c *httputil.MockHTTPClient) {
			c.AddResponse(http.StatusOK, "{not json")
		}},
		{"ride missing", func(c *httputil.MockHTTPClient) {
			c.AddResponse(http.StatusOK, `{"rides": [{"id": 1}]}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, client, database := newTestPoller(t)
			tt.setup(client)

			if err := p.PollOnce(); err == nil {
				t.Fatal("expected an error")
			}
			samples, err := database.ListQueueSamples(10)
			if err != nil {
				t.Fatal(err)
			}
			if len(samples) != 0 {
				t.Fatalf("a failed poll stored %d samples", len(samples))
			}
		})
	}
}

func TestFindRide(t *testing.T) {
	f := &feed{
		Rides: []ride{{ID: 1}},
		Lands: []struct {
			Rides []ride `json:"rides"`
		}{{Rides: []ride{{ID: 278, WaitTime: 30}}}},
	}

	r, ok := findRide(f, 278)
	if !ok || r.WaitTime != 30 {
		t.Fatalf("findRide = %+v, %v", r, ok)
	}
	if _, ok := findRide(f, 999); ok {
		t.Fatal("found a ride that is not in the feed")
	}
}
