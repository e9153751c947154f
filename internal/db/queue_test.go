package db

import (
	"testing"
	"time"
)

func TestQueueSampleRoundTrip(t *testing.T) {
	db := openTestDB(t)
	base := time.Unix(1700000000, 0)

	if err := db.InsertQueueSample(base, true, 45, "2025-06-01T12:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertQueueSample(base.Add(5*time.Minute), false, 0, ""); err != nil {
		t.Fatal(err)
	}

	samples, err := db.ListQueueSamples(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}

	// Newest first.
	if samples[0].IsOpen || samples[0].WaitMinutes != 0 {
		t.Fatalf("newest sample = %+v", samples[0])
	}
	if !samples[1].IsOpen || samples[1].WaitMinutes != 45 {
		t.Fatalf("oldest sample = %+v", samples[1])
	}
	if samples[1].ReportedAt != "2025-06-01T12:00:00Z" {
		t.Fatalf("reported_at = %q", samples[1].ReportedAt)
	}
	if samples[1].SampledUnix != float64(base.Unix()) {
		t.Fatalf("sampled_unix = %f", samples[1].SampledUnix)
	}
}

func TestListQueueSamplesRespectsLimit(t *testing.T) {
	db := openTestDB(t)
	base := time.Unix(1700000000, 0)

	for i := 0; i < 5; i++ {
		if err := db.InsertQueueSample(base.Add(time.Duration(i)*time.Minute), true, i, ""); err != nil {
			t.Fatal(err)
		}
	}
	samples, err := db.ListQueueSamples(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[0].WaitMinutes != 4 {
		t.Fatalf("newest sample wait = %d, want 4", samples[0].WaitMinutes)
	}
}
