package timeutil

import (
	"testing"
	"time"
)

func TestIsTimezoneValid(t *testing.T) {
	tests := []struct {
		tz   string
		want bool
	}{
		{"America/New_York", true},
		{"UTC", true},
		{"Not/AZone", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsTimezoneValid(tt.tz); got != tt.want {
			t.Errorf("IsTimezoneValid(%q) = %v, want %v", tt.tz, got, tt.want)
		}
	}
}

func TestLoadLocationDefaults(t *testing.T) {
	loc, err := LoadLocation("")
	if err != nil {
		t.Fatal(err)
	}
	if loc.String() != DefaultTimezone {
		t.Fatalf("default location = %s", loc)
	}

	if _, err := LoadLocation("Not/AZone"); err == nil {
		t.Fatal("invalid zone accepted")
	}
}

func TestDayOfCrossesMidnight(t *testing.T) {
	loc, err := LoadLocation(DefaultTimezone)
	if err != nil {
		t.Fatal(err)
	}

	// 03:00 UTC on July 2nd is still 23:00 on July 1st in the park zone.
	ts := time.Date(2025, 7, 2, 3, 0, 0, 0, time.UTC)
	if got := DayOf(ts, loc); got != "2025-07-01" {
		t.Fatalf("DayOf = %s, want 2025-07-01", got)
	}
	if got := DayOf(ts, nil); got != "2025-07-02" {
		t.Fatalf("DayOf UTC = %s, want 2025-07-02", got)
	}
}
