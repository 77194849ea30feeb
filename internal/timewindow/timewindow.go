package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DateLayout is the accepted calendar date format.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidTimezone is returned for unknown, empty or ambient ("Local") zone names.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrInvalidDate is returned for unparseable or out-of-range dates and times.
	ErrInvalidDate = errors.New("invalid date")
)

// Window is a half-open [StartMs, EndMs) range of UTC epoch milliseconds.
type Window struct {
	StartMs int64
	EndMs   int64
}

// Build localizes date at hour:minute in tzName and spans width from there.
func Build(date string, hour, minute int, tzName string, width time.Duration) (Window, error) {
	if width <= 0 {
		return Window{}, fmt.Errorf("window width must be positive, got %s", width)
	}
	loc, err := loadLocation(tzName)
	if err != nil {
		return Window{}, err
	}
	day, err := parseDate(date, loc)
	if err != nil {
		return Window{}, err
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Window{}, fmt.Errorf("%w: time %02d:%02d out of range", ErrInvalidDate, hour, minute)
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	return Window{StartMs: start.UnixMilli(), EndMs: start.Add(width).UnixMilli()}, nil
}

// BuildRange spans local midnight of startDate to the end of endDate in tzName.
func BuildRange(startDate, endDate, tzName string) (Window, error) {
	loc, err := loadLocation(tzName)
	if err != nil {
		return Window{}, err
	}
	first, err := parseDate(startDate, loc)
	if err != nil {
		return Window{}, err
	}
	last, err := parseDate(endDate, loc)
	if err != nil {
		return Window{}, err
	}
	if last.Before(first) {
		return Window{}, fmt.Errorf("%w: end date %s before start date %s", ErrInvalidDate, endDate, startDate)
	}

	// next local midnight, which is not always 24h away across DST changes
	end := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, loc)
	return Window{StartMs: first.UnixMilli(), EndMs: end.UnixMilli()}, nil
}

// FromUTC wraps an explicit range.
func FromUTC(start, end time.Time) (Window, error) {
	if !start.Before(end) {
		return Window{}, fmt.Errorf("%w: range start %s not before end %s", ErrInvalidDate,
			start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}
	return Window{StartMs: start.UnixMilli(), EndMs: end.UnixMilli()}, nil
}

// ParseClock parses an "HH:MM" time of day.
func ParseClock(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: time of day %q, expected HH:MM", ErrInvalidDate, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: hour %q", ErrInvalidDate, parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: minute %q", ErrInvalidDate, parts[1])
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: time of day %q out of range", ErrInvalidDate, value)
	}
	return hour, minute, nil
}

// Start returns the inclusive lower bound in UTC.
func (w Window) Start() time.Time { return time.UnixMilli(w.StartMs).UTC() }

// End returns the exclusive upper bound in UTC.
func (w Window) End() time.Time { return time.UnixMilli(w.EndMs).UTC() }

// Duration of the window.
func (w Window) Duration() time.Duration {
	return time.Duration(w.EndMs-w.StartMs) * time.Millisecond
}

// Contains reports whether ms falls in [StartMs, EndMs).
func (w Window) Contains(ms int64) bool { return ms >= w.StartMs && ms < w.EndMs }

// Align returns the width-long bucket, counted from the UTC epoch, that holds the
// window start. Exchange candles of every supported interval are bucketed this way,
// so the aligned window matches exactly the one candle covering the instant.
func (w Window) Align(width time.Duration) Window {
	ms := width.Milliseconds()
	if ms <= 0 {
		return w
	}
	offset := w.StartMs % ms
	if offset < 0 {
		offset += ms
	}
	start := w.StartMs - offset
	return Window{StartMs: start, EndMs: start + ms}
}

func (w Window) String() string {
	return w.Start().Format(time.RFC3339) + "/" + w.End().Format(time.RFC3339)
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return day, nil
}
