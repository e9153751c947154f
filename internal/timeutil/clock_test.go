package timeutil

import (
	"testing"
	"time"
)

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(90 * time.Second)
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since(start) = %v, want 90s", got)
	}
}

func TestMockClockSleepRecordsAndAdvances(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Sleep(time.Second)
	c.Sleep(2 * time.Second)

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Fatalf("Sleeps() = %v, want [1s 2s]", sleeps)
	}
	if got := c.Since(start); got != 3*time.Second {
		t.Errorf("clock advanced %v during sleeps, want 3s", got)
	}
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tick := c.NewTicker(time.Minute)
	defer tick.Stop()

	select {
	case <-tick.C():
		t.Fatal("ticker fired before interval elapsed")
	default:
	}

	c.Advance(time.Minute)
	select {
	case <-tick.C():
	default:
		t.Fatal("ticker did not fire after interval elapsed")
	}
}
