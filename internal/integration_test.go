package internal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"exam-reservation-backend/config"
	"exam-reservation-backend/internal/admission"
	"exam-reservation-backend/internal/db"
	"exam-reservation-backend/internal/model"
	"exam-reservation-backend/internal/parse"
	"exam-reservation-backend/internal/provision"
	"exam-reservation-backend/internal/stats"
	"exam-reservation-backend/internal/store"
)

type capturedEvents struct {
	mu     sync.Mutex
	events []model.ReservationEvent
}

func (c *capturedEvents) Dispatch(ev model.ReservationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capturedEvents) kinds() []model.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.EventKind, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Kind
	}
	return out
}

// TestReservationLifecycle provisions a week of slots, then drives a batch
// of reservations through create, confirm and delete, auditing the ledger
// after every phase.
func TestReservationLifecycle(t *testing.T) {
	// --- Test Setup ---

	// 1. Setup an in-memory SQLite database for testing.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	// 2. Create a configuration matching the example file.
	cfg := &config.Config{
		Reservation: config.ReservationConfig{
			MaxApplicants: 50000,
			LeadTimeDays:  3,
			Timezone:      "UTC",
			TxTimeout:     5 * time.Second,
			MaxRetries:    3,
		},
		Provision: config.ProvisionConfig{
			Enabled:     true,
			Interval:    time.Hour,
			DaysAhead:   7,
			Open:        "09:00",
			Close:       "12:00",
			SlotMinutes: 30,
		},
	}
	now := time.Date(2030, 3, 10, 3, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	appStore := store.NewGormStore(testDB)
	provisioner, err := provision.NewService(cfg, appStore, provision.WithClock(clock))
	require.NoError(t, err)
	created, err := provisioner.ProvisionOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7*6), created)

	events := &capturedEvents{}
	recorder := stats.NewMemoryRecorder()
	loc, err := cfg.Reservation.Location()
	require.NoError(t, err)
	ctrl := admission.NewController(appStore, admission.Config{
		MaxApplicants: cfg.Reservation.MaxApplicants,
		LeadTimeDays:  cfg.Reservation.LeadTimeDays,
		Location:      loc,
		TxTimeout:     cfg.Reservation.TxTimeout,
		MaxRetries:    cfg.Reservation.MaxRetries,
		Now:           clock,
	}, admission.WithNotifier(events), admission.WithRecorder(recorder))

	admin := admission.Caller{UserID: 1, Role: model.RoleAdmin}
	examDay, err := parse.ParseDate("2030-03-15", loc)
	require.NoError(t, err)

	audit := func(t *testing.T) {
		report, err := ctrl.Audit(context.Background(), admin)
		require.NoError(t, err)
		assert.Equal(t, 42, report.CheckedSlots)
		assert.True(t, report.Consistent(), "discrepancies: %+v", report.Discrepancies)
	}

	// --- Phase 1: ten users each ask for 10000 seats over 10:00-11:00 ---
	var ids []int64
	t.Run("Create", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			owner := admission.Caller{UserID: int64(100 + i), Role: model.RoleUser}
			r, err := ctrl.Create(context.Background(), owner, admission.CreateRequest{
				ExamDate:   examDay,
				StartTime:  parse.Clock{Hour: 10},
				EndTime:    parse.Clock{Hour: 11},
				Applicants: 10000,
			})
			require.NoError(t, err)
			ids = append(ids, r.ID)
		}
		audit(t)
	})

	// --- Phase 2: confirm them all concurrently; only five fit ---
	t.Run("Confirm", func(t *testing.T) {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			confirmed int
			rejected  int
		)
		for _, id := range ids {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := ctrl.Confirm(context.Background(), admin, id)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					confirmed++
					return
				}
				var capacity *admission.CapacityExceededError
				if assert.ErrorAs(t, err, &capacity) {
					rejected++
				}
			}(id)
		}
		wg.Wait()

		assert.Equal(t, 5, confirmed)
		assert.Equal(t, 5, rejected)

		slots, err := ctrl.ListAvailable(context.Background(), examDay)
		require.NoError(t, err)
		assert.Len(t, slots, 4, "the two 10:00-11:00 slots are full")
		audit(t)
	})

	// --- Phase 3: delete everything; the ledger returns to full ---
	t.Run("Delete", func(t *testing.T) {
		for _, id := range ids {
			_, err := ctrl.Delete(context.Background(), admin, id)
			require.NoError(t, err)
		}

		slots, err := ctrl.ListAvailable(context.Background(), examDay)
		require.NoError(t, err)
		require.Len(t, slots, 6)
		for _, s := range slots {
			assert.Equal(t, s.MaxCapacity, s.RemainingCapacity)
		}
		audit(t)

		rest, err := ctrl.ListAll(context.Background(), admin)
		require.NoError(t, err)
		assert.Empty(t, rest)
	})

	// Provisioning again leaves the ledger alone.
	created, err = provisioner.ProvisionOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), created)

	kinds := events.kinds()
	var confirmedEvents, cancelledEvents int
	for _, k := range kinds {
		switch k {
		case model.EventConfirmed:
			confirmedEvents++
		case model.EventCancelled:
			cancelledEvents++
		}
	}
	assert.Equal(t, 5, confirmedEvents)
	assert.Equal(t, 10, cancelledEvents)

	totals, err := recorder.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), totals["create:ok"])
	assert.Equal(t, int64(5), totals["confirm:ok"])
	assert.Equal(t, int64(5), totals["confirm:capacity"])
	assert.Equal(t, int64(10), totals["delete:ok"])
}
