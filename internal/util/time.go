package util

import (
	"fmt"
	"time"
)

// FormatAge renders the time elapsed since created using its largest whole unit, e.g. 3d, 5h, 12m, 40s
func FormatAge(created, now time.Time) string {
	if created.IsZero() {
		return "<unknown>"
	}
	return FormatDuration(now.Sub(created))
}

func FormatDuration(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	seconds := int(duration.Seconds())
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// FormatMillis renders a duration as whole milliseconds, e.g. for load timings
func FormatMillis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// DurationTilNext calculates the duration until the next occurrence of a periodic event that started at start.
//
// Examples:
//
//	start = 00:00:00, now = 00:01:30, between = 1m -> 30s
//	start = 00:00:00, now = 01:20:00, between = 45m -> 10m
func DurationTilNext(start time.Time, now time.Time, between time.Duration) time.Duration {
	elapsed := now.Sub(start)
	intervals := elapsed / between
	nextUpdate := start.Add(between * (intervals + 1))
	return nextUpdate.Sub(now)
}
