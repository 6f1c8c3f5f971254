package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"exam-reservation-backend/internal/admission"
	"exam-reservation-backend/internal/model"
	"exam-reservation-backend/internal/mw"
)

// ListReservations handles GET /api/v1/admin/reservations.
//
// With from and to (RFC3339) it lists reservations overlapping [from, to);
// status may be repeated to narrow the result either way.
func (h *Handler) ListReservations(c *gin.Context) {
	caller, _ := mw.CallerFrom(c)

	statuses := make([]model.ReservationStatus, 0, len(c.QueryArray("status")))
	for _, s := range c.QueryArray("status") {
		statuses = append(statuses, model.ReservationStatus(s))
	}

	from, to := c.Query("from"), c.Query("to")
	if from == "" && to == "" {
		rs, err := h.reservations.ListAll(c.Request.Context(), caller)
		if err != nil {
			writeError(c, err)
			return
		}
		filtered, err := filterStatus(rs, statuses)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, h.reservationResponses(filtered))
		return
	}

	window, err := parseWindow(from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	rs, err := h.reservations.ListOverlapping(c.Request.Context(), caller, window, statuses...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.reservationResponses(rs))
}

func parseWindow(from, to string) (model.TimeRange, error) {
	if from == "" || to == "" {
		return model.TimeRange{}, &admission.ValidationError{Field: "window", Reason: "from and to must be given together"}
	}
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return model.TimeRange{}, &admission.ValidationError{Field: "from", Reason: "expected RFC3339 timestamp"}
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return model.TimeRange{}, &admission.ValidationError{Field: "to", Reason: "expected RFC3339 timestamp"}
	}
	window, err := model.NewTimeRange(start, end)
	if err != nil {
		return model.TimeRange{}, &admission.ValidationError{Field: "to", Reason: err.Error()}
	}
	return window, nil
}

func filterStatus(rs []model.Reservation, statuses []model.ReservationStatus) ([]model.Reservation, error) {
	if len(statuses) == 0 {
		return rs, nil
	}
	want := make(map[model.ReservationStatus]bool, len(statuses))
	for _, s := range statuses {
		if !s.Valid() {
			return nil, &admission.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
		}
		want[s] = true
	}
	out := rs[:0]
	for _, r := range rs {
		if want[r.Status] {
			out = append(out, r)
		}
	}
	return out, nil
}

// ConfirmReservation handles PATCH /api/v1/admin/reservations/:id/confirm.
func (h *Handler) ConfirmReservation(c *gin.Context) {
	caller, _ := mw.CallerFrom(c)
	id, err := reservationID(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.reservations.Confirm(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.reservationResponse(r))
}

// AuditLedger handles GET /api/v1/admin/ledger/audit.
func (h *Handler) AuditLedger(c *gin.Context) {
	caller, _ := mw.CallerFrom(c)

	report, err := h.reservations.Audit(c.Request.Context(), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checked_at":    report.CheckedAt,
		"checked_slots": report.CheckedSlots,
		"consistent":    report.Consistent(),
		"discrepancies": report.Discrepancies,
	})
}

// GetStats handles GET /api/v1/admin/stats.
func (h *Handler) GetStats(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusOK, gin.H{"totals": gin.H{}})
		return
	}
	totals, err := h.stats.Totals(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totals": totals})
}
