package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"exam-reservation-backend/internal/model"
	"exam-reservation-backend/internal/parse"
)

// SlotResponse is the wire shape of a ledger slot.
type SlotResponse struct {
	ID                int64     `json:"id"`
	Date              string    `json:"date"`
	StartTime         string    `json:"start_time"`
	EndTime           string    `json:"end_time"`
	StartAt           time.Time `json:"start_at"`
	EndAt             time.Time `json:"end_at"`
	MaxCapacity       int       `json:"max_capacity"`
	RemainingCapacity int       `json:"remaining_capacity"`
}

func (h *Handler) slotResponse(s model.Slot) SlotResponse {
	return SlotResponse{
		ID:                s.ID,
		Date:              s.Date,
		StartTime:         parse.ClockOf(s.TimeRange.StartAt, h.loc).String(),
		EndTime:           parse.ClockOf(s.TimeRange.EndAt, h.loc).String(),
		StartAt:           s.TimeRange.StartAt,
		EndAt:             s.TimeRange.EndAt,
		MaxCapacity:       s.MaxCapacity,
		RemainingCapacity: s.RemainingCapacity,
	}
}

// ListAvailableSlots handles GET /api/v1/slots/available?exam_date=YYYY-MM-DD.
func (h *Handler) ListAvailableSlots(c *gin.Context) {
	raw := c.Query("exam_date")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exam_date is required"})
		return
	}
	date, err := h.parseDate("exam_date", raw)
	if err != nil {
		writeError(c, err)
		return
	}

	slots, err := h.reservations.ListAvailable(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, h.slotResponse(s))
	}
	c.JSON(http.StatusOK, out)
}
