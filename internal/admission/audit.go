package admission

import (
	"context"
	"time"
)

// Discrepancy is a slot whose stored remaining capacity disagrees with
// max_capacity minus the applicants of its confirmed reservations.
type Discrepancy struct {
	SlotID    int64  `json:"slot_id"`
	Date      string `json:"date"`
	Max       int    `json:"max_capacity"`
	Remaining int    `json:"remaining_capacity"`
	Expected  int    `json:"expected_remaining"`
}

// AuditReport is the result of a full ledger check.
type AuditReport struct {
	CheckedAt     time.Time     `json:"checked_at"`
	CheckedSlots  int           `json:"checked_slots"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// Consistent reports whether no slot drifted.
func (r *AuditReport) Consistent() bool {
	return len(r.Discrepancies) == 0
}

// Audit recomputes every slot's expected remaining capacity from the
// reservation-slot links. ADMIN only.
func (c *Controller) Audit(ctx context.Context, caller Caller) (*AuditReport, error) {
	if !caller.IsAdmin() {
		return nil, &AuthorizationError{UserID: caller.UserID, Action: "audit the ledger"}
	}

	usage, err := c.store.LedgerUsage(ctx)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{
		CheckedAt:     c.cfg.Now().UTC(),
		CheckedSlots:  len(usage),
		Discrepancies: []Discrepancy{},
	}
	for _, u := range usage {
		expected := u.MaxCapacity - u.Confirmed
		if expected != u.RemainingCapacity {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				SlotID:    u.SlotID,
				Date:      u.Date,
				Max:       u.MaxCapacity,
				Remaining: u.RemainingCapacity,
				Expected:  expected,
			})
		}
	}
	return report, nil
}
