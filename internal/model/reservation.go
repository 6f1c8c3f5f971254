package model

import "time"

// ReservationStatus is the lifecycle state of a stored reservation.
// Deleted reservations are removed, so there is no DELETED value.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
)

// ReservationOp names a lifecycle transition.
type ReservationOp string

const (
	OpCreate  ReservationOp = "create"
	OpConfirm ReservationOp = "confirm"
	OpUpdate  ReservationOp = "update"
	OpDelete  ReservationOp = "delete"
)

// CanTransition reports whether op is allowed from status s.
//
//	PENDING   --confirm--> CONFIRMED
//	PENDING   --update---> PENDING
//	PENDING   --delete---> (removed)
//	CONFIRMED --delete---> (removed, capacity returned)
func (s ReservationStatus) CanTransition(op ReservationOp) bool {
	switch s {
	case StatusPending:
		return op == OpConfirm || op == OpUpdate || op == OpDelete
	case StatusConfirmed:
		return op == OpDelete
	}
	return false
}

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Reservation is a request to occupy capacity across every slot its range overlaps.
type Reservation struct {
	ID             int64             `gorm:"primaryKey" json:"id"`
	OwnerID        int64             `gorm:"column:user_id;not null;index" json:"user_id"`
	ExamDate       string            `gorm:"size:10;not null;index" json:"exam_date"`
	TimeRange      TimeRange         `gorm:"embedded" json:"time_range"`
	ApplicantCount int               `gorm:"column:applicants;not null" json:"applicants"`
	Status         ReservationStatus `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`

	// AssignedSlotIDs is loaded explicitly from reservation_slots; it is
	// only populated for CONFIRMED reservations.
	AssignedSlotIDs []int64 `gorm:"-" json:"assigned_slot_ids,omitempty"`
}

// ReservationSlot links a confirmed reservation to a slot it consumed capacity from.
type ReservationSlot struct {
	ReservationID int64     `gorm:"primaryKey"`
	SlotID        int64     `gorm:"primaryKey;index"`
	Applicants    int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}
