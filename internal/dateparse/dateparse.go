// Package dateparse parses the timestamp expressions accepted by --at flags
// into concrete times.
package dateparse

import (
	"fmt"
	"strings"
	"time"
)

// ParseAt parses a timestamp input using the current time as reference.
//
// Supported formats:
//   - RFC 3339: "2026-03-02T10:00:00Z"
//   - Date and time: "2026-03-02 10:00" (local)
//   - Time of day: "10:00" (today, local)
//   - Relative past: "-2h", "-45m", "-1h30m"
//   - Keywords: "now", "yesterday", "yesterday 10:00"
func ParseAt(input string) (time.Time, error) {
	return ParseAtFrom(input, time.Now())
}

// ParseAtFrom parses a timestamp input relative to the given reference time.
// This variant enables deterministic testing with a fixed "now".
func ParseAtFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty time input")
	}

	lower := strings.ToLower(input)
	if lower == "now" {
		return now, nil
	}

	// RFC 3339
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}

	// Date and time, local
	if t, err := time.ParseInLocation("2006-01-02 15:04", input, now.Location()); err == nil {
		return t, nil
	}

	// Bare date: midnight local
	if t, err := time.ParseInLocation("2006-01-02", input, now.Location()); err == nil {
		return t, nil
	}

	// Time of day: today at that time
	if t, err := time.ParseInLocation("15:04", input, now.Location()); err == nil {
		return atTimeOfDay(now, t), nil
	}

	// Yesterday, optionally with a time of day
	if rest, ok := strings.CutPrefix(lower, "yesterday"); ok {
		day := now.AddDate(0, 0, -1)
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return day, nil
		}
		if t, err := time.ParseInLocation("15:04", rest, now.Location()); err == nil {
			return atTimeOfDay(day, t), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized time of day %q after yesterday", rest)
	}

	// Relative past: -2h, -45m, -1h30m
	if strings.HasPrefix(input, "-") {
		d, err := time.ParseDuration(input[1:])
		if err != nil || d < 0 {
			return time.Time{}, fmt.Errorf("unrecognized relative time %q (use forms like -2h, -45m)", input)
		}
		return now.Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", input)
}

// atTimeOfDay keeps day's date and takes the clock reading from tod.
func atTimeOfDay(day, tod time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		tod.Hour(), tod.Minute(), 0, 0, day.Location())
}
