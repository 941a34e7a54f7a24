package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	isoDateLayout = "2006-01-02"
	dmyDateLayout = "02-01-2006"

	// Bounds accepted by the plan report.
	MinReportWeek Week = 202001
	MaxReportWeek Week = 209953
)

// Week is a year-week number in YYYYWW form (e.g. 202601).
type Week int

// ParseWeek parses and validates a YYYYWW string.
func ParseWeek(raw string) (Week, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeek, raw)
	}
	w := Week(n)
	if err := w.Validate(); err != nil {
		return 0, err
	}
	return w, nil
}

// Validate checks the week part is between 1 and 53, and that week 53
// exists in the ISO calendar of that year.
func (w Week) Validate() error {
	if w.Year() < 1 || w.Number() < 1 || w.Number() > 53 {
		return fmt.Errorf("%w: %d", ErrInvalidWeek, int(w))
	}
	if w.Number() == 53 && WeekOf(w.Monday()) != w {
		return fmt.Errorf("%w: %d has only 52 weeks", ErrInvalidWeek, w.Year())
	}
	return nil
}

func (w Week) Year() int   { return int(w) / 100 }
func (w Week) Number() int { return int(w) % 100 }

func (w Week) String() string { return strconv.Itoa(int(w)) }

// Monday returns the Monday starting the week, as a UTC calendar date.
// January 4 always falls in week 1, so week 1 starts on the Monday on or
// before it.
func (w Week) Monday() time.Time {
	jan4 := time.Date(w.Year(), time.January, 4, 0, 0, 0, 0, time.UTC)
	dow := int(jan4.Weekday())
	if dow == 0 {
		dow = 7
	}
	firstMonday := jan4.AddDate(0, 0, 1-dow)
	return firstMonday.AddDate(0, 0, (w.Number()-1)*7)
}

// Add moves n weeks forward (or backward) along the ISO calendar, so
// 202601 minus one week is 202552.
func (w Week) Add(n int) Week {
	year, week := w.Monday().AddDate(0, 0, 7*n).ISOWeek()
	return Week(year*100 + week)
}

// WeeksSince is the number of weeks from ref to w, negative when w is
// earlier.
func (w Week) WeeksSince(ref Week) int {
	return int(w.Monday().Sub(ref.Monday()) / (7 * 24 * time.Hour))
}

// WeekOf returns the ISO week containing t.
func WeekOf(t time.Time) Week {
	year, week := t.ISOWeek()
	return Week(year*100 + week)
}

// FormatISODate renders a date as YYYY-MM-DD.
func FormatISODate(t time.Time) string { return t.Format(isoDateLayout) }

// FormatDMYDate renders a date as DD-MM-YYYY.
func FormatDMYDate(t time.Time) string { return t.Format(dmyDateLayout) }

// ParseSnapshotDate accepts both YYYY-MM-DD and DD-MM-YYYY (also with slashes).
func ParseSnapshotDate(raw string) (time.Time, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "/", "-")
	for _, layout := range []string{isoDateLayout, dmyDateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}
