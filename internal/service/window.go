package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/yairfalse/birthmark/pkg/resource"
)

const dateLayout = "2006-01-02"

// ParseWindow parses RFC 3339 or YYYY-MM-DD bounds. Dates are read in loc;
// a date-only end covers that whole day.
func ParseWindow(start, end string, loc *time.Location) (resource.TimeWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := parseBound(start, loc, false)
	if err != nil {
		return resource.TimeWindow{}, fmt.Errorf("startDate: %w", err)
	}
	e, err := parseBound(end, loc, true)
	if err != nil {
		return resource.TimeWindow{}, fmt.Errorf("endDate: %w", err)
	}
	return resource.NewTimeWindow(s, e)
}

func parseBound(value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: missing", resource.ErrInvalidWindow)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is neither RFC 3339 nor YYYY-MM-DD", resource.ErrInvalidWindow, value)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
