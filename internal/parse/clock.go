package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of exam dates.
const DateLayout = "2006-01-02"

var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// Clock is a wall-clock time of day without a date.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// String formats the clock as HH:MM (HH:MM:SS when seconds are set).
func (c Clock) String() string {
	if c.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Before reports whether c is strictly earlier in the day than other.
func (c Clock) Before(other Clock) bool {
	return c.seconds() < other.seconds()
}

// Add returns the clock shifted by d. Overflow past midnight is not wrapped.
func (c Clock) Add(d time.Duration) Clock {
	total := c.seconds() + int(d/time.Second)
	return Clock{Hour: total / 3600, Minute: (total % 3600) / 60, Second: total % 60}
}

func (c Clock) seconds() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

// On anchors the clock to the calendar day of date, in date's location.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, c.Second, 0, date.Location())
}

// ClockOf extracts the wall-clock part of t in loc.
func ClockOf(t time.Time, loc *time.Location) Clock {
	local := t.In(loc)
	return Clock{Hour: local.Hour(), Minute: local.Minute(), Second: local.Second()}
}

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(raw string) (Clock, error) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Clock{}, fmt.Errorf("unable to parse time of day: %q", raw)
	}

	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}

	if h > 23 || min > 59 || sec > 59 {
		return Clock{}, fmt.Errorf("time of day out of range: %q", raw)
	}
	return Clock{Hour: h, Minute: min, Second: sec}, nil
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date %q: %w", raw, err)
	}
	return d, nil
}

// FormatDate renders the calendar day of t in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
