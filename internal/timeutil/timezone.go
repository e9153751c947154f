package timeutil

import (
	"fmt"
	"time"
)

// DefaultTimezone is the park-local zone used when bucketing launches into
// days; a launch just after midnight UTC still belongs to the previous
// operating day.
const DefaultTimezone = "America/New_York"

// IsTimezoneValid reports whether tz names a zone in the system tz database.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// LoadLocation resolves tz against the tz database, defaulting to the
// park-local zone when tz is empty.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// DayOf formats t as a YYYY-MM-DD day string in the given location.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
