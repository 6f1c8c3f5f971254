package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exam-reservation-backend/internal/model"
)

// gormTx implements Tx on top of a gorm transaction handle.
type gormTx struct {
	db      *gorm.DB
	dialect string
	now     func() time.Time
}

// locked applies the row lock for PostgreSQL. SQLite has no row locks; its
// writers are serialized by the single-connection pool instead.
func (t *gormTx) locked(q *gorm.DB, lock LockMode) *gorm.DB {
	if t.dialect != "postgres" {
		return q
	}
	switch lock {
	case LockShare:
		return q.Clauses(clause.Locking{Strength: "SHARE"})
	case LockUpdate:
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// overlapping restricts q to rows whose [start_at, end_at) intersects r.
func (t *gormTx) overlapping(q *gorm.DB, r model.TimeRange) *gorm.DB {
	if t.dialect == "postgres" {
		return q.Where("tstzrange(start_at, end_at, '[)') && tstzrange(?, ?, '[)')", r.StartAt, r.EndAt)
	}
	return q.Where("start_at < ? AND end_at > ?", r.EndAt, r.StartAt)
}

func (t *gormTx) FindOverlappingSlots(ctx context.Context, r model.TimeRange, lock LockMode) ([]model.Slot, error) {
	slots := []model.Slot{}
	q := t.overlapping(t.db.WithContext(ctx).Model(&model.Slot{}), r)
	if err := t.locked(q, lock).Order("id").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("failed to find slots overlapping %s-%s: %w", r.StartAt, r.EndAt, err)
	}
	return slots, nil
}

func (t *gormTx) FindOverlappingReservations(ctx context.Context, r model.TimeRange, statuses ...model.ReservationStatus) ([]model.Reservation, error) {
	reservations := []model.Reservation{}
	q := t.overlapping(t.db.WithContext(ctx).Model(&model.Reservation{}), r)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("start_at, id").Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to find reservations overlapping %s-%s: %w", r.StartAt, r.EndAt, err)
	}
	return reservations, nil
}

func (t *gormTx) GetReservationByID(ctx context.Context, id int64, lock LockMode) (*model.Reservation, error) {
	var reservation model.Reservation
	err := t.locked(t.db.WithContext(ctx), lock).Where("id = ?", id).Take(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation %d: %w", id, err)
	}

	if reservation.Status == model.StatusConfirmed {
		var slotIDs []int64
		if err := t.db.WithContext(ctx).
			Model(&model.ReservationSlot{}).
			Where("reservation_id = ?", id).
			Order("slot_id").
			Pluck("slot_id", &slotIDs).Error; err != nil {
			return nil, fmt.Errorf("failed to load slot assignments of reservation %d: %w", id, err)
		}
		reservation.AssignedSlotIDs = slotIDs
	}
	return &reservation, nil
}

func (t *gormTx) SaveReservation(ctx context.Context, r *model.Reservation) error {
	if err := t.db.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	return nil
}

// DeleteReservation removes the record together with its slot links.
func (t *gormTx) DeleteReservation(ctx context.Context, id int64) error {
	if err := t.db.WithContext(ctx).Where("reservation_id = ?", id).Delete(&model.ReservationSlot{}).Error; err != nil {
		return fmt.Errorf("failed to unlink slots of reservation %d: %w", id, err)
	}
	if err := t.db.WithContext(ctx).Delete(&model.Reservation{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete reservation %d: %w", id, err)
	}
	return nil
}

func (t *gormTx) AdjustSlotCapacity(ctx context.Context, slotID int64, delta int) error {
	result := t.db.WithContext(ctx).
		Model(&model.Slot{}).
		Where("id = ? AND remaining_capacity + ? >= 0 AND remaining_capacity + ? <= max_capacity", slotID, delta, delta).
		Update("remaining_capacity", gorm.Expr("remaining_capacity + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("failed to adjust capacity of slot %d: %w", slotID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: slot %d, delta %d", ErrCapacityGuard, slotID, delta)
	}
	return nil
}

func (t *gormTx) AssignSlots(ctx context.Context, reservationID int64, applicants int, slotIDs []int64) error {
	if len(slotIDs) == 0 {
		return nil
	}
	now := t.now().UTC()
	links := make([]model.ReservationSlot, 0, len(slotIDs))
	for _, id := range slotIDs {
		links = append(links, model.ReservationSlot{
			ReservationID: reservationID,
			SlotID:        id,
			Applicants:    applicants,
			CreatedAt:     now,
		})
	}
	if err := t.db.WithContext(ctx).Create(&links).Error; err != nil {
		return fmt.Errorf("failed to assign slots to reservation %d: %w", reservationID, err)
	}
	return nil
}

func (t *gormTx) AssignedSlots(ctx context.Context, reservationID int64, lock LockMode) ([]model.Slot, error) {
	slots := []model.Slot{}
	q := t.db.WithContext(ctx).
		Model(&model.Slot{}).
		Where("id IN (?)", t.db.Model(&model.ReservationSlot{}).Select("slot_id").Where("reservation_id = ?", reservationID))
	if err := t.locked(q, lock).Order("id").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("failed to load assigned slots of reservation %d: %w", reservationID, err)
	}
	return slots, nil
}
