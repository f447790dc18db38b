package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var offsetUnits = map[string]time.Duration{
	"sec":    time.Second,
	"second": time.Second,
	"min":    time.Minute,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// MaxOffset bounds lifetime offsets so that now+offset stays representable.
const MaxOffset = 100 * 365 * 24 * time.Hour

// ParseOffset parses a token lifetime offset. It accepts Go durations
// ("90m", "1h30m") and relative phrases such as "+1 hour" or
// "+1 day 12 hours".
func ParseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty offset")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d > MaxOffset || d < -MaxOffset {
			return 0, fmt.Errorf("offset %q exceeds %s", s, MaxOffset)
		}
		return d, nil
	}

	fields := strings.Fields(strings.ToLower(s))
	if len(fields)%2 != 0 {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	var total time.Duration
	for i := 0; i < len(fields); i += 2 {
		n, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid offset %q: %w", s, err)
		}
		unit, ok := offsetUnits[strings.TrimSuffix(fields[i+1], "s")]
		if !ok {
			return 0, fmt.Errorf("invalid offset %q: unknown unit %q", s, fields[i+1])
		}
		if limit := int64(MaxOffset / unit); n > limit || n < -limit {
			return 0, fmt.Errorf("offset %q exceeds %s", s, MaxOffset)
		}
		total += time.Duration(n) * unit
		if total > MaxOffset || total < -MaxOffset {
			return 0, fmt.Errorf("offset %q exceeds %s", s, MaxOffset)
		}
	}
	return total, nil
}
