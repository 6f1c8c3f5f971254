package admission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"exam-reservation-backend/internal/model"
	"exam-reservation-backend/internal/parse"
	"exam-reservation-backend/internal/store"
)

const retryBackoff = 25 * time.Millisecond

// Config holds the admission settings fixed at construction.
type Config struct {
	MaxApplicants int
	LeadTimeDays  int
	Location      *time.Location
	TxTimeout     time.Duration
	MaxRetries    int
	Now           func() time.Time
}

// Notifier receives committed reservation events. Implementations must not block.
type Notifier interface {
	Dispatch(ev model.ReservationEvent)
}

// Recorder counts operation outcomes.
type Recorder interface {
	Record(ctx context.Context, op, outcome string)
}

// Option configures optional Controller collaborators.
type Option func(*Controller)

// WithNotifier sends confirm and cancel events to n.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithRecorder reports every mutating operation's outcome to r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithLedgerHook calls fn after every committed change to slot capacity.
func WithLedgerHook(fn func()) Option {
	return func(c *Controller) { c.onLedgerChange = fn }
}

// Caller is the authenticated principal an operation runs on behalf of.
type Caller struct {
	UserID int64
	Role   model.Role
}

// IsAdmin reports whether the caller holds the ADMIN role.
func (c Caller) IsAdmin() bool {
	return c.Role == model.RoleAdmin
}

// CreateRequest is a reservation request in the exam timezone.
type CreateRequest struct {
	ExamDate   time.Time
	StartTime  parse.Clock
	EndTime    parse.Clock
	Applicants int
}

// ReservationPatch carries the fields of an update; nil means unchanged.
type ReservationPatch struct {
	ExamDate   *time.Time
	StartTime  *parse.Clock
	EndTime    *parse.Clock
	Applicants *int
}

// merge overlays the patch on the reservation's current values.
func (p ReservationPatch) merge(r *model.Reservation, loc *time.Location) (CreateRequest, error) {
	date, err := parse.ParseDate(r.ExamDate, loc)
	if err != nil {
		return CreateRequest{}, fmt.Errorf("stored exam date of reservation %d: %w", r.ID, err)
	}
	req := CreateRequest{
		ExamDate:   date,
		StartTime:  parse.ClockOf(r.TimeRange.StartAt, loc),
		EndTime:    parse.ClockOf(r.TimeRange.EndAt, loc),
		Applicants: r.ApplicantCount,
	}
	if p.ExamDate != nil {
		req.ExamDate = *p.ExamDate
	}
	if p.StartTime != nil {
		req.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		req.EndTime = *p.EndTime
	}
	if p.Applicants != nil {
		req.Applicants = *p.Applicants
	}
	return req, nil
}

// Controller enforces the admission rules and keeps the capacity ledger
// consistent with confirmed reservations.
type Controller struct {
	store     store.Store
	cfg       Config
	validator *Validator

	notifier       Notifier
	recorder       Recorder
	onLedgerChange func()
}

// NewController creates a Controller over s.
func NewController(s store.Store, cfg Config, opts ...Option) *Controller {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &Controller{
		store:     s,
		cfg:       cfg,
		validator: NewValidator(cfg.Location, cfg.LeadTimeDays, cfg.MaxApplicants, cfg.Now),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create stores a PENDING reservation after checking that every overlapping
// slot could currently absorb it. The ledger is not touched.
func (c *Controller) Create(ctx context.Context, caller Caller, req CreateRequest) (*model.Reservation, error) {
	if err := c.validator.Validate(req.ExamDate, req.StartTime, req.EndTime, req.Applicants); err != nil {
		c.record(ctx, model.OpCreate, err)
		return nil, err
	}
	day, span, err := c.span(req)
	if err != nil {
		c.record(ctx, model.OpCreate, err)
		return nil, err
	}

	var created *model.Reservation
	err = c.inTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := c.admissible(ctx, tx, span, req.Applicants, store.LockShare); err != nil {
			return err
		}
		r := &model.Reservation{
			OwnerID:        caller.UserID,
			ExamDate:       day,
			TimeRange:      span,
			ApplicantCount: req.Applicants,
			Status:         model.StatusPending,
		}
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	c.record(ctx, model.OpCreate, err)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Confirm deducts the reservation's applicants from every overlapping slot
// and marks it CONFIRMED. Either all slots are charged or none are.
func (c *Controller) Confirm(ctx context.Context, caller Caller, id int64) (*model.Reservation, error) {
	if !caller.IsAdmin() {
		err := &AuthorizationError{UserID: caller.UserID, Action: "confirm reservations"}
		c.record(ctx, model.OpConfirm, err)
		return nil, err
	}

	var confirmed *model.Reservation
	err := c.inTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.GetReservationByID(ctx, id, store.LockUpdate)
		if err != nil {
			return err
		}
		if r == nil {
			return &NotFoundError{ReservationID: id}
		}
		if !r.Status.CanTransition(model.OpConfirm) {
			return &StateError{ReservationID: id, Status: r.Status, Op: model.OpConfirm}
		}
		if !r.TimeRange.StartAt.After(c.cfg.Now()) {
			return &StateError{ReservationID: id, Status: r.Status, Op: model.OpConfirm, Reason: "exam has already started"}
		}

		slots, err := c.admissible(ctx, tx, r.TimeRange, r.ApplicantCount, store.LockUpdate)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(slots))
		for _, s := range slots {
			if err := tx.AdjustSlotCapacity(ctx, s.ID, -r.ApplicantCount); err != nil {
				if errors.Is(err, store.ErrCapacityGuard) {
					return &CapacityExceededError{SlotID: s.ID, Remaining: s.RemainingCapacity, Requested: r.ApplicantCount}
				}
				return err
			}
			ids = append(ids, s.ID)
		}
		if err := tx.AssignSlots(ctx, r.ID, r.ApplicantCount, ids); err != nil {
			return err
		}

		r.Status = model.StatusConfirmed
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		r.AssignedSlotIDs = ids
		confirmed = r
		return nil
	})
	c.record(ctx, model.OpConfirm, err)
	if err != nil {
		return nil, err
	}

	c.ledgerChanged()
	c.notify(confirmed, model.EventConfirmed)
	return confirmed, nil
}

// Update changes a PENDING reservation. Absent patch fields keep their value.
func (c *Controller) Update(ctx context.Context, caller Caller, id int64, patch ReservationPatch) (*model.Reservation, error) {
	var updated *model.Reservation
	err := c.inTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := c.manageable(ctx, tx, caller, id, model.OpUpdate)
		if err != nil {
			return err
		}

		req, err := patch.merge(r, c.cfg.Location)
		if err != nil {
			return err
		}
		if err := c.validator.Validate(req.ExamDate, req.StartTime, req.EndTime, req.Applicants); err != nil {
			return err
		}
		day, span, err := c.span(req)
		if err != nil {
			return err
		}

		if !span.Equal(r.TimeRange) || req.Applicants != r.ApplicantCount {
			if _, err := c.admissible(ctx, tx, span, req.Applicants, store.LockShare); err != nil {
				return err
			}
		}

		r.ExamDate = day
		r.TimeRange = span
		r.ApplicantCount = req.Applicants
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	c.record(ctx, model.OpUpdate, err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a reservation. A CONFIRMED reservation first returns its
// applicants to every slot it was charged against.
func (c *Controller) Delete(ctx context.Context, caller Caller, id int64) (*model.Reservation, error) {
	var (
		deleted  *model.Reservation
		restored bool
	)
	err := c.inTx(ctx, func(ctx context.Context, tx store.Tx) error {
		restored = false
		r, err := c.manageable(ctx, tx, caller, id, model.OpDelete)
		if err != nil {
			return err
		}

		if r.Status == model.StatusConfirmed {
			slots, err := tx.AssignedSlots(ctx, r.ID, store.LockUpdate)
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				// Confirmed without stored links: charge back by range.
				if slots, err = tx.FindOverlappingSlots(ctx, r.TimeRange, store.LockUpdate); err != nil {
					return err
				}
			}
			for _, s := range slots {
				if err := tx.AdjustSlotCapacity(ctx, s.ID, r.ApplicantCount); err != nil {
					return fmt.Errorf("failed to return %d seats to slot %d: %w", r.ApplicantCount, s.ID, err)
				}
			}
			restored = len(slots) > 0
		}

		if err := tx.DeleteReservation(ctx, r.ID); err != nil {
			return err
		}
		deleted = r
		return nil
	})
	c.record(ctx, model.OpDelete, err)
	if err != nil {
		return nil, err
	}

	if restored {
		c.ledgerChanged()
	}
	c.notify(deleted, model.EventCancelled)
	return deleted, nil
}

// ListOwn returns the caller's reservations.
func (c *Controller) ListOwn(ctx context.Context, caller Caller) ([]model.Reservation, error) {
	return c.store.ListReservationsByOwner(ctx, caller.UserID)
}

// ListAll returns every reservation. ADMIN only.
func (c *Controller) ListAll(ctx context.Context, caller Caller) ([]model.Reservation, error) {
	if !caller.IsAdmin() {
		return nil, &AuthorizationError{UserID: caller.UserID, Action: "list all reservations"}
	}
	return c.store.ListReservations(ctx)
}

// ListAvailable returns the slots of examDate that still have capacity.
func (c *Controller) ListAvailable(ctx context.Context, examDate time.Time) ([]model.Slot, error) {
	if err := c.validator.ValidateBrowseDate(examDate); err != nil {
		return nil, err
	}
	return c.store.ListAvailableSlots(ctx, parse.FormatDate(parse.StartOfDay(examDate, c.cfg.Location), c.cfg.Location))
}

// ListOverlapping returns reservations intersecting window, optionally
// restricted to statuses. ADMIN only.
func (c *Controller) ListOverlapping(ctx context.Context, caller Caller, window model.TimeRange, statuses ...model.ReservationStatus) ([]model.Reservation, error) {
	if !caller.IsAdmin() {
		return nil, &AuthorizationError{UserID: caller.UserID, Action: "list reservations by time"}
	}
	for _, s := range statuses {
		if !s.Valid() {
			return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
		}
	}

	var found []model.Reservation
	err := c.inTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		found, err = tx.FindOverlappingReservations(ctx, window, statuses...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Today returns midnight of the current day in the exam timezone.
func (c *Controller) Today() time.Time {
	return c.validator.Today()
}

// Location returns the exam timezone.
func (c *Controller) Location() *time.Location {
	return c.cfg.Location
}

// manageable loads a reservation under an exclusive row lock and checks that
// caller may apply op to it.
func (c *Controller) manageable(ctx context.Context, tx store.Tx, caller Caller, id int64, op model.ReservationOp) (*model.Reservation, error) {
	r, err := tx.GetReservationByID(ctx, id, store.LockUpdate)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &NotFoundError{ReservationID: id}
	}
	if !caller.IsAdmin() && r.OwnerID != caller.UserID {
		return nil, &AuthorizationError{UserID: caller.UserID, Action: fmt.Sprintf("%s reservation %d", op, id)}
	}
	if !r.Status.CanTransition(op) {
		return nil, &StateError{ReservationID: id, Status: r.Status, Op: op}
	}
	return r, nil
}

// admissible resolves the slots span overlaps and checks each can absorb
// applicants.
func (c *Controller) admissible(ctx context.Context, tx store.Tx, span model.TimeRange, applicants int, lock store.LockMode) ([]model.Slot, error) {
	slots, err := tx.FindOverlappingSlots(ctx, span, lock)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrNoBookableSlot
	}
	for _, s := range slots {
		if !s.Fits(applicants) {
			return nil, &CapacityExceededError{SlotID: s.ID, Remaining: s.RemainingCapacity, Requested: applicants}
		}
	}
	return slots, nil
}

// span anchors a request's clock times to its exam date.
func (c *Controller) span(req CreateRequest) (string, model.TimeRange, error) {
	loc := c.cfg.Location
	day := parse.StartOfDay(req.ExamDate, loc)
	r, err := model.NewTimeRange(req.StartTime.On(day), req.EndTime.On(day))
	if err != nil {
		return "", model.TimeRange{}, &ValidationError{Field: "exam_end_time", Reason: err.Error()}
	}
	return parse.FormatDate(day, loc), r, nil
}

// inTx runs fn in a transaction, retrying store.ErrConflict up to
// MaxRetries times. Each attempt gets its own TxTimeout deadline.
func (c *Controller) inTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &AbortedError{Err: ctxErr}
		}
		if !errors.Is(err, store.ErrConflict) {
			return err
		}

		lastErr = err
		log.Printf("Transaction attempt %d/%d conflicted: %v", attempt, attempts, err)
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * retryBackoff):
		case <-ctx.Done():
			return &AbortedError{Err: ctx.Err()}
		}
	}
	return &ConflictError{Attempts: attempts, Err: lastErr}
}

func (c *Controller) attempt(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if c.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TxTimeout)
		defer cancel()
	}
	return c.store.WithTransaction(ctx, func(tx store.Tx) error {
		return fn(ctx, tx)
	})
}

func (c *Controller) ledgerChanged() {
	if c.onLedgerChange != nil {
		c.onLedgerChange()
	}
}

func (c *Controller) notify(r *model.Reservation, kind model.EventKind) {
	if c.notifier == nil || r == nil {
		return
	}
	c.notifier.Dispatch(model.ReservationEvent{
		ReservationID: r.ID,
		OwnerID:       r.OwnerID,
		Kind:          kind,
		ExamDate:      r.ExamDate,
		StartAt:       r.TimeRange.StartAt,
	})
}

func (c *Controller) record(ctx context.Context, op model.ReservationOp, err error) {
	outcome := Outcome(err)
	if err != nil {
		log.Printf("%s rolled back (%s): %v", op, outcome, err)
	}
	if c.recorder == nil {
		return
	}
	c.recorder.Record(ctx, string(op), outcome)
}

// Outcome buckets an operation result for statistics.
func Outcome(err error) string {
	var (
		validation *ValidationError
		authz      *AuthorizationError
		notFound   *NotFoundError
		capacity   *CapacityExceededError
		state      *StateError
		conflict   *ConflictError
		aborted    *AbortedError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &validation), errors.Is(err, ErrNoBookableSlot):
		return "invalid"
	case errors.As(err, &authz):
		return "forbidden"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &capacity):
		return "capacity"
	case errors.As(err, &state):
		return "state"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &aborted):
		return "aborted"
	}
	return "error"
}
