package admission

import (
	"fmt"
	"time"

	"exam-reservation-backend/internal/parse"
)

// Validator checks reservation input against calendar and size rules.
// It has no side effects.
type Validator struct {
	loc           *time.Location
	leadTimeDays  int
	maxApplicants int
	now           func() time.Time
}

// NewValidator builds a Validator that evaluates "today" in loc.
func NewValidator(loc *time.Location, leadTimeDays, maxApplicants int, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{loc: loc, leadTimeDays: leadTimeDays, maxApplicants: maxApplicants, now: now}
}

// Today returns midnight of the current day in the exam timezone.
func (v *Validator) Today() time.Time {
	return parse.StartOfDay(v.now(), v.loc)
}

// Validate fails fast on the first violated rule.
func (v *Validator) Validate(examDate time.Time, startTime, endTime parse.Clock, applicants int) error {
	today := v.Today()
	day := parse.StartOfDay(examDate, v.loc)

	if day.Before(today) {
		return &ValidationError{Field: "exam_date", Reason: "exam date is in the past"}
	}
	if err := v.checkLeadTime(day); err != nil {
		return err
	}
	if !startTime.Before(endTime) {
		return &ValidationError{Field: "exam_end_time", Reason: "end time must be after start time"}
	}
	if applicants < 1 || applicants > v.maxApplicants {
		return &ValidationError{
			Field:  "applicants",
			Reason: fmt.Sprintf("must be between 1 and %d", v.maxApplicants),
		}
	}
	return nil
}

// ValidateBrowseDate applies the lead-time rule alone, for slot listings.
func (v *Validator) ValidateBrowseDate(examDate time.Time) error {
	return v.checkLeadTime(parse.StartOfDay(examDate, v.loc))
}

func (v *Validator) checkLeadTime(day time.Time) error {
	earliest := v.Today().AddDate(0, 0, v.leadTimeDays)
	if day.Before(earliest) {
		return &ValidationError{
			Field:  "exam_date",
			Reason: fmt.Sprintf("reservations must be made at least %d days in advance", v.leadTimeDays),
		}
	}
	return nil
}
