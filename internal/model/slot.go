package model

import "time"

// Slot is a fixed time bucket of the capacity ledger.
// (date, start_at, end_at) is unique; see db.Migrate.
type Slot struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	Date              string    `gorm:"size:10;not null;index" json:"date"` // YYYY-MM-DD in the exam timezone
	TimeRange         TimeRange `gorm:"embedded" json:"time_range"`
	MaxCapacity       int       `gorm:"not null" json:"max_capacity"`
	RemainingCapacity int       `gorm:"not null" json:"remaining_capacity"`
	CreatedAt         time.Time `json:"-"`
	UpdatedAt         time.Time `json:"-"`
}

// Fits reports whether the slot can absorb the given number of applicants.
func (s Slot) Fits(applicants int) bool {
	return s.RemainingCapacity >= applicants
}
