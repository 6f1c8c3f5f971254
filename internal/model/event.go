package model

import "time"

// EventKind names a reservation change worth telling its owner about.
type EventKind string

const (
	EventConfirmed EventKind = "confirmed"
	EventCancelled EventKind = "cancelled"
)

// ReservationEvent is emitted after a committed confirm or delete.
type ReservationEvent struct {
	ReservationID int64
	OwnerID       int64
	Kind          EventKind
	ExamDate      string
	StartAt       time.Time
}
