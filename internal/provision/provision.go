package provision

import (
	"context"
	"fmt"
	"log"
	"time"

	"exam-reservation-backend/config"
	"exam-reservation-backend/internal/model"
	"exam-reservation-backend/internal/parse"
)

// SlotStore is the slice of store.Store the provisioner writes through.
type SlotStore interface {
	EnsureSlots(ctx context.Context, slots []model.Slot) (int64, error)
}

// Service keeps the ledger stocked with empty slots for the coming days.
type Service struct {
	cfg       config.ProvisionConfig
	store     SlotStore
	loc       *time.Location
	capacity  int
	open      parse.Clock
	close     parse.Clock
	step      time.Duration
	now       func() time.Time
	onCreated func()
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCreatedHook is called after a cycle that inserted at least one slot.
func WithCreatedHook(fn func()) Option {
	return func(s *Service) { s.onCreated = fn }
}

// NewService creates a provisioner. Every slot gets the reservation
// max_applicants as its capacity.
func NewService(cfg *config.Config, s SlotStore, opts ...Option) (*Service, error) {
	loc, err := cfg.Reservation.Location()
	if err != nil {
		return nil, err
	}
	open, err := parse.ParseClock(cfg.Provision.Open)
	if err != nil {
		return nil, fmt.Errorf("invalid provision.open: %w", err)
	}
	closing, err := parse.ParseClock(cfg.Provision.Close)
	if err != nil {
		return nil, fmt.Errorf("invalid provision.close: %w", err)
	}
	if !open.Before(closing) {
		return nil, fmt.Errorf("provision.open %s must be before provision.close %s", open, closing)
	}
	if cfg.Provision.SlotMinutes <= 0 {
		return nil, fmt.Errorf("provision.slot_minutes must be positive, got %d", cfg.Provision.SlotMinutes)
	}
	if cfg.Reservation.MaxApplicants <= 0 {
		return nil, fmt.Errorf("reservation.max_applicants must be positive, got %d", cfg.Reservation.MaxApplicants)
	}

	svc := &Service{
		cfg:      cfg.Provision,
		store:    s,
		loc:      loc,
		capacity: cfg.Reservation.MaxApplicants,
		open:     open,
		close:    closing,
		step:     time.Duration(cfg.Provision.SlotMinutes) * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Run provisions once and then again on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Slot provisioner is disabled. Not starting.")
		return
	}
	log.Println("Starting slot provisioner...")

	s.ProvisionOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Slot provisioner shutting down.")
			return
		case <-timer.C:
			s.ProvisionOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// ProvisionOnce inserts any missing slots for today and the following
// days_ahead-1 days. Existing slots, and their remaining capacity, are
// left untouched.
func (s *Service) ProvisionOnce(ctx context.Context) (int64, error) {
	slots := s.Plan(s.now())
	created, err := s.store.EnsureSlots(ctx, slots)
	if err != nil {
		log.Printf("Error provisioning %d slots: %v", len(slots), err)
		return 0, err
	}
	if created > 0 {
		log.Printf("Provisioned %d new slots", created)
		if s.onCreated != nil {
			s.onCreated()
		}
	}
	return created, nil
}

// Plan returns the slots that should exist for the days_ahead days
// starting at the calendar day of from in the exam timezone.
func (s *Service) Plan(from time.Time) []model.Slot {
	first := parse.StartOfDay(from, s.loc)
	var slots []model.Slot
	for d := 0; d < s.cfg.DaysAhead; d++ {
		day := first.AddDate(0, 0, d)
		date := parse.FormatDate(day, s.loc)
		for start := s.open; !s.close.Before(start.Add(s.step)); start = start.Add(s.step) {
			r, err := model.NewTimeRange(start.On(day), start.Add(s.step).On(day))
			if err != nil {
				// Wall-clock gap on a DST switch.
				continue
			}
			slots = append(slots, model.Slot{
				Date:              date,
				TimeRange:         r,
				MaxCapacity:       s.capacity,
				RemainingCapacity: s.capacity,
			})
		}
	}
	return slots
}
