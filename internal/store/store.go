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

// LockMode selects the row lock taken by a read inside a transaction.
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

// Store defines the interface for all database operations.
type Store interface {
	// WithTransaction runs fn in a single transaction. It commits when fn
	// returns nil and rolls back otherwise, including on panic.
	WithTransaction(ctx context.Context, fn func(tx Tx) error) error

	ListAvailableSlots(ctx context.Context, date string) ([]model.Slot, error)
	ListReservationsByOwner(ctx context.Context, ownerID int64) ([]model.Reservation, error)
	ListReservations(ctx context.Context) ([]model.Reservation, error)
	LedgerUsage(ctx context.Context) ([]SlotUsage, error)
	EnsureSlots(ctx context.Context, slots []model.Slot) (int64, error)

	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, userID int64, endpoint string) error
	SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
}

// Tx is the set of operations available inside WithTransaction.
type Tx interface {
	// FindOverlappingSlots returns slots whose [start_at, end_at) intersects r,
	// ordered by id.
	FindOverlappingSlots(ctx context.Context, r model.TimeRange, lock LockMode) ([]model.Slot, error)
	// FindOverlappingReservations returns reservations intersecting r, limited
	// to the given statuses when any are passed.
	FindOverlappingReservations(ctx context.Context, r model.TimeRange, statuses ...model.ReservationStatus) ([]model.Reservation, error)
	// GetReservationByID returns nil, nil when no such reservation exists.
	GetReservationByID(ctx context.Context, id int64, lock LockMode) (*model.Reservation, error)
	SaveReservation(ctx context.Context, r *model.Reservation) error
	DeleteReservation(ctx context.Context, id int64) error
	// AdjustSlotCapacity adds delta to remaining_capacity, failing with
	// ErrCapacityGuard when the result would leave [0, max_capacity].
	AdjustSlotCapacity(ctx context.Context, slotID int64, delta int) error
	AssignSlots(ctx context.Context, reservationID int64, applicants int, slotIDs []int64) error
	AssignedSlots(ctx context.Context, reservationID int64, lock LockMode) ([]model.Slot, error)
}

// SlotUsage is one row of the ledger audit: a slot's stored counters next to
// the applicants of the confirmed reservations linked to it.
type SlotUsage struct {
	SlotID            int64
	Date              string
	MaxCapacity       int
	RemainingCapacity int
	Confirmed         int
}

// Option configures a gormStore.
type Option func(*gormStore)

// WithLockTimeout bounds every row-lock wait inside a PostgreSQL transaction.
func WithLockTimeout(d time.Duration) Option {
	return func(s *gormStore) {
		s.lockTimeout = d
	}
}

// WithClock sets the time source for rows the store stamps itself.
func WithClock(now func() time.Time) Option {
	return func(s *gormStore) {
		s.now = now
	}
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db          *gorm.DB
	dialect     string
	lockTimeout time.Duration
	now         func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{db: db, dialect: db.Dialector.Name(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTransaction runs fn inside a gorm transaction and classifies the error.
func (s *gormStore) WithTransaction(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.dialect == "postgres" && s.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}
		}
		return fn(&gormTx{db: tx, dialect: s.dialect, now: s.now})
	})
	return classifyError(err)
}

// ListAvailableSlots returns the slots of a date that still have capacity.
func (s *gormStore) ListAvailableSlots(ctx context.Context, date string) ([]model.Slot, error) {
	slots := []model.Slot{}
	err := s.db.WithContext(ctx).
		Where("date = ? AND remaining_capacity > 0", date).
		Order("start_at, id").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list available slots for %s: %w", date, err)
	}
	return slots, nil
}

// ListReservationsByOwner returns every reservation of one user.
func (s *gormStore) ListReservationsByOwner(ctx context.Context, ownerID int64) ([]model.Reservation, error) {
	reservations := []model.Reservation{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("start_at, id").
		Find(&reservations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations of user %d: %w", ownerID, err)
	}
	return reservations, s.loadAssignments(ctx, s.db, reservations)
}

// ListReservations returns every reservation.
func (s *gormStore) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	reservations := []model.Reservation{}
	if err := s.db.WithContext(ctx).Order("start_at, id").Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, s.loadAssignments(ctx, s.db, reservations)
}

// loadAssignments fills AssignedSlotIDs with one query over the join table.
func (s *gormStore) loadAssignments(ctx context.Context, db *gorm.DB, reservations []model.Reservation) error {
	var ids []int64
	for _, r := range reservations {
		if r.Status == model.StatusConfirmed {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var links []model.ReservationSlot
	if err := db.WithContext(ctx).
		Where("reservation_id IN ?", ids).
		Order("reservation_id, slot_id").
		Find(&links).Error; err != nil {
		return fmt.Errorf("failed to load slot assignments: %w", err)
	}

	byReservation := make(map[int64][]int64, len(ids))
	for _, l := range links {
		byReservation[l.ReservationID] = append(byReservation[l.ReservationID], l.SlotID)
	}
	for i := range reservations {
		reservations[i].AssignedSlotIDs = byReservation[reservations[i].ID]
	}
	return nil
}

// LedgerUsage aggregates confirmed applicants per slot.
func (s *gormStore) LedgerUsage(ctx context.Context) ([]SlotUsage, error) {
	usage := []SlotUsage{}
	err := s.db.WithContext(ctx).
		Table("slots AS s").
		Select("s.id AS slot_id, s.date AS date, s.max_capacity AS max_capacity, " +
			"s.remaining_capacity AS remaining_capacity, COALESCE(SUM(rs.applicants), 0) AS confirmed").
		Joins("LEFT JOIN reservation_slots rs ON rs.slot_id = s.id").
		Group("s.id, s.date, s.max_capacity, s.remaining_capacity").
		Order("s.id").
		Scan(&usage).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ledger usage: %w", err)
	}
	return usage, nil
}

// EnsureSlots inserts the given slots, skipping any (date, start_at, end_at)
// window that already exists. It returns the number of rows created.
func (s *gormStore) EnsureSlots(ctx context.Context, slots []model.Slot) (int64, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "start_at"}, {Name: "end_at"}},
			DoNothing: true,
		}).
		CreateInBatches(&slots, 100)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to ensure slots: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CreateUser inserts a new user.
func (s *gormStore) CreateUser(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, classifyError(err))
	}
	return nil
}

// GetUserByEmail returns nil, nil when no user has that email.
func (s *gormStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// GetUserByID returns nil, nil when the user does not exist.
func (s *gormStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// SaveSubscription creates or refreshes a push subscription for its user.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
		}).
		Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes one of a user's subscriptions.
func (s *gormStore) DeleteSubscription(ctx context.Context, userID int64, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&model.PushSubscription{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// SubscriptionsForUser lists the push subscriptions registered by a user.
func (s *gormStore) SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	subs := []model.PushSubscription{}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions of user %d: %w", userID, err)
	}
	return subs, nil
}
