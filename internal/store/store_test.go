package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"exam-reservation-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// Any is a custom matcher for sqlmock that matches any value.
type Any struct{}

// Match satisfies sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}

func window(t *testing.T) model.TimeRange {
	r, err := model.NewTimeRange(
		time.Date(2030, 3, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 3, 15, 1, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return r
}

var slotColumns = []string{"id", "date", "start_at", "end_at", "max_capacity", "remaining_capacity"}

func TestGormTx_FindOverlappingSlots_Postgres(t *testing.T) {
	r := window(t)

	testCases := []struct {
		name   string
		lock   LockMode
		suffix string
	}{
		{name: "Exclusive lock", lock: LockUpdate, suffix: " FOR UPDATE"},
		{name: "Shared lock", lock: LockShare, suffix: " FOR SHARE"},
		{name: "No lock", lock: LockNone, suffix: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newTestDB(t)
			s := NewGormStore(db)

			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta(
				`SELECT * FROM "slots" WHERE tstzrange(start_at, end_at, '[)') && tstzrange($1, $2, '[)') ORDER BY id`+tc.suffix)+"$").
				WithArgs(r.StartAt, r.EndAt).
				WillReturnRows(sqlmock.NewRows(slotColumns).
					AddRow(1, "2030-03-15", r.StartAt, r.EndAt.Add(-30*time.Minute), 50000, 40000).
					AddRow(2, "2030-03-15", r.StartAt.Add(30*time.Minute), r.EndAt, 50000, 50000))
			mock.ExpectCommit()

			var found []model.Slot
			err := s.WithTransaction(context.Background(), func(tx Tx) error {
				var err error
				found, err = tx.FindOverlappingSlots(context.Background(), r, tc.lock)
				return err
			})

			require.NoError(t, err)
			require.Len(t, found, 2)
			assert.Equal(t, int64(1), found[0].ID)
			assert.Equal(t, 40000, found[0].RemainingCapacity)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_WithTransaction_LockTimeout(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewGormStore(db, WithLockTimeout(1500*time.Millisecond))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL lock_timeout = '1500ms'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.WithTransaction(context.Background(), func(tx Tx) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTx_AdjustSlotCapacity(t *testing.T) {
	testCases := []struct {
		name         string
		delta        int
		rowsAffected int64
		expectedErr  error
	}{
		{name: "Within bounds", delta: -30000, rowsAffected: 1},
		{name: "Guard rejects", delta: -60000, rowsAffected: 0, expectedErr: ErrCapacityGuard},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newTestDB(t)
			s := NewGormStore(db)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta(`UPDATE "slots" SET "remaining_capacity"=remaining_capacity + $1,"updated_at"=$2`)).
				WithArgs(tc.delta, Any{}, int64(7), tc.delta, tc.delta).
				WillReturnResult(sqlmock.NewResult(0, tc.rowsAffected))
			if tc.expectedErr != nil {
				mock.ExpectRollback()
			} else {
				mock.ExpectCommit()
			}

			err := s.WithTransaction(context.Background(), func(tx Tx) error {
				return tx.AdjustSlotCapacity(context.Background(), 7, tc.delta)
			})

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormTx_GetReservationByID(t *testing.T) {
	r := window(t)

	t.Run("Absent reservation yields nil", func(t *testing.T) {
		db, mock := newTestDB(t)
		s := NewGormStore(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "reservations" WHERE id = $1`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		var got *model.Reservation
		err := s.WithTransaction(context.Background(), func(tx Tx) error {
			var err error
			got, err = tx.GetReservationByID(context.Background(), 42, LockUpdate)
			return err
		})
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Confirmed reservation loads its slots", func(t *testing.T) {
		db, mock := newTestDB(t)
		s := NewGormStore(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "reservations" WHERE id = $1`) + `.*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "exam_date", "start_at", "end_at", "applicants", "status"}).
				AddRow(5, 9, "2030-03-15", r.StartAt, r.EndAt, 30000, "CONFIRMED"))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT "slot_id" FROM "reservation_slots" WHERE reservation_id = $1 ORDER BY slot_id`)).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"slot_id"}).AddRow(1).AddRow(2))
		mock.ExpectCommit()

		var got *model.Reservation
		err := s.WithTransaction(context.Background(), func(tx Tx) error {
			var err error
			got, err = tx.GetReservationByID(context.Background(), 5, LockUpdate)
			return err
		})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, model.StatusConfirmed, got.Status)
		assert.Equal(t, int64(9), got.OwnerID)
		assert.Equal(t, []int64{1, 2}, got.AssignedSlotIDs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStore_WithTransaction_SerializationFailure(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewGormStore(db)
	r := window(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "slots"`)).
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	err := s.WithTransaction(context.Background(), func(tx Tx) error {
		_, err := tx.FindOverlappingSlots(context.Background(), r, LockUpdate)
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_WithTransaction_PassesDomainErrors(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewGormStore(db)
	domainErr := errors.New("slot is full")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTransaction(context.Background(), func(tx Tx) error { return domainErr })
	assert.Same(t, domainErr, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "Deadlock", err: &pgconn.PgError{Code: "40P01"}, expected: ErrConflict},
		{name: "Lock timeout", err: &pgconn.PgError{Code: "55P03"}, expected: ErrConflict},
		{name: "Statement timeout", err: fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "57014"}), expected: ErrConflict},
		{name: "Unique violation", err: &pgconn.PgError{Code: "23505"}, expected: ErrDuplicate},
		{name: "SQLite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, expected: ErrConflict},
		{name: "SQLite unique", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, expected: ErrDuplicate},
		{name: "Flattened lock message", err: errors.New("database is locked"), expected: ErrConflict},
		{name: "Attempt deadline", err: context.DeadlineExceeded, expected: ErrConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyError(tc.err), tc.expected)
		})
	}

	other := &pgconn.PgError{Code: "42P01"}
	assert.Same(t, other, classifyError(other))
	assert.NoError(t, classifyError(nil))
}
