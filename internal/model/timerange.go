package model

import (
	"errors"
	"time"
)

// ErrInvalidTimeRange is returned when a range would be empty or inverted.
var ErrInvalidTimeRange = errors.New("time range start must be before end")

// TimeRange is a half-open interval [StartAt, EndAt) of UTC instants.
// It is embedded into Slot and Reservation as the start_at/end_at columns.
type TimeRange struct {
	StartAt time.Time `gorm:"not null;index" json:"start_at"`
	EndAt   time.Time `gorm:"not null" json:"end_at"`
}

// NewTimeRange normalizes both ends to UTC at second precision and rejects
// ranges where start is not strictly before end.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	r := TimeRange{
		StartAt: start.UTC().Truncate(time.Second),
		EndAt:   end.UTC().Truncate(time.Second),
	}
	if !r.StartAt.Before(r.EndAt) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return r, nil
}

// Overlaps reports whether the two half-open ranges intersect.
// Ranges that only touch at an edge do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.StartAt.Before(other.EndAt) && other.StartAt.Before(r.EndAt)
}

// Contains reports whether t falls inside [StartAt, EndAt).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.StartAt) && t.Before(r.EndAt)
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.EndAt.Sub(r.StartAt)
}

// Equal compares both ends as instants.
func (r TimeRange) Equal(other TimeRange) bool {
	return r.StartAt.Equal(other.StartAt) && r.EndAt.Equal(other.EndAt)
}
