/*
birthday.go - Birthday parsing and calendar matching

PURPOSE:
  Parses the birthday a customer gives at signup and decides which calendar
  day it falls on in a given year.

RULES:
  - Only day and month are kept; a full date's year is discarded
  - 29 February is observed on 28 February in non-leap years
  - Matching uses the calendar fields of the time passed in, so callers pass
    times already in the café's zone (see Service.Now)
*/
package loyalty

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDayMonth parses a birthday given as "DD/MM", "MM-DD" or "YYYY-MM-DD".
// The year, when present, is discarded. An empty string yields nil.
func ParseDayMonth(s string) (*DayMonth, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var day, month int
	var err error
	switch {
	case strings.Contains(s, "/"):
		day, month, err = splitPair(s, "/")
	case strings.Count(s, "-") == 2:
		var t time.Time
		t, err = time.Parse("2006-01-02", s)
		day, month = t.Day(), int(t.Month())
	case strings.Count(s, "-") == 1:
		month, day, err = splitPair(s, "-")
	default:
		err = fmt.Errorf("unrecognised format")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: birthday %q: %v", ErrInvalidArgument, s, err)
	}

	// 2000 is a leap year, so 29/02 is accepted.
	if month < 1 || month > 12 || day < 1 ||
		day > time.Date(2000, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day() {
		return nil, fmt.Errorf("%w: birthday %q is not a calendar day", ErrInvalidArgument, s)
	}
	return &DayMonth{Day: day, Month: time.Month(month)}, nil
}

func splitPair(s, sep string) (int, int, error) {
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two fields")
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// Observed returns the day this birthday is celebrated in the given year.
// 29 February falls back to 28 February outside leap years.
func (d DayMonth) Observed(year int) time.Time {
	if d.Month == time.February && d.Day == 29 && !isLeap(year) {
		return time.Date(year, time.February, 28, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
