package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CompactLayout is the YYYYMMDDTHHMMSS form accepted for start times.
const CompactLayout = "20060102T150405"

// ErrInvalidStart is returned for start times in neither accepted layout.
var ErrInvalidStart = errors.New("invalid start time")

// ParseStart parses a track start time. An empty value means now. Times
// without a zone are UTC; the result is always in UTC.
func ParseStart(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return now.UTC(), nil
	}
	if t, err := time.ParseInLocation(CompactLayout, value, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q (want %s or RFC3339)", ErrInvalidStart, value, "YYYYMMDDTHHMMSS")
}
