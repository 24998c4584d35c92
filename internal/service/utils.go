package service

import (
	"fmt"
	"time"
)

// FormatInterval renders a time.Duration as a candle-length string like
// "1m", "5m", "1h", used when logging or naming chart series by candle
// length. ParseIntervalDuration reads back its whole-minute and
// whole-hour output; the "s" form it gives other whole-second durations
// is not accepted by ParseIntervalDuration.
func FormatInterval(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	if d >= time.Second && d%time.Second == 0 {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	return d.String()
}

// ParseIntervalDuration parses a candle-length string like "1m", "5m",
// "1h", "1d" into a time.Duration.
func ParseIntervalDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("service: invalid interval format %q", s)
	}

	unit := s[len(s)-1:]
	valueStr := s[:len(s)-1]

	var unitDuration time.Duration
	switch unit {
	case "m":
		unitDuration = time.Minute
	case "h":
		unitDuration = time.Hour
	case "d":
		unitDuration = 24 * time.Hour
	default:
		return 0, fmt.Errorf("service: unsupported interval unit %q", unit)
	}

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return 0, fmt.Errorf("service: invalid interval value %q: %w", valueStr, err)
	}

	return time.Duration(value) * unitDuration, nil
}
