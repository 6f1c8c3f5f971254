package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"exam-reservation-backend/internal/admission"
	"exam-reservation-backend/internal/model"
	"exam-reservation-backend/internal/mw"
	"exam-reservation-backend/internal/parse"
)

type reservationRequest struct {
	ExamDate      string `json:"exam_date" binding:"required"`
	ExamStartTime string `json:"exam_start_time" binding:"required"`
	ExamEndTime   string `json:"exam_end_time" binding:"required"`
	Applicants    int    `json:"applicants"`
}

type reservationPatchRequest struct {
	ExamDate      *string `json:"exam_date"`
	ExamStartTime *string `json:"exam_start_time"`
	ExamEndTime   *string `json:"exam_end_time"`
	Applicants    *int    `json:"applicants"`
}

// ReservationResponse is the wire shape of a reservation. Clock fields are
// in the exam timezone.
type ReservationResponse struct {
	ID              int64                   `json:"id"`
	UserID          int64                   `json:"user_id"`
	ExamDate        string                  `json:"exam_date"`
	ExamStartTime   string                  `json:"exam_start_time"`
	ExamEndTime     string                  `json:"exam_end_time"`
	StartAt         time.Time               `json:"start_at"`
	EndAt           time.Time               `json:"end_at"`
	Applicants      int                     `json:"applicants"`
	Status          model.ReservationStatus `json:"status"`
	AssignedSlotIDs []int64                 `json:"assigned_slot_ids,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func (h *Handler) reservationResponse(r *model.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:              r.ID,
		UserID:          r.OwnerID,
		ExamDate:        r.ExamDate,
		ExamStartTime:   parse.ClockOf(r.TimeRange.StartAt, h.loc).String(),
		ExamEndTime:     parse.ClockOf(r.TimeRange.EndAt, h.loc).String(),
		StartAt:         r.TimeRange.StartAt,
		EndAt:           r.TimeRange.EndAt,
		Applicants:      r.ApplicantCount,
		Status:          r.Status,
		AssignedSlotIDs: r.AssignedSlotIDs,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (h *Handler) reservationResponses(rs []model.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(rs))
	for i := range rs {
		out = append(out, h.reservationResponse(&rs[i]))
	}
	return out
}

func (h *Handler) parseDate(field, raw string) (time.Time, error) {
	d, err := parse.ParseDate(raw, h.loc)
	if err != nil {
		return time.Time{}, &admission.ValidationError{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return d, nil
}

func parseClock(field, raw string) (parse.Clock, error) {
	clk, err := parse.ParseClock(raw)
	if err != nil {
		return parse.Clock{}, &admission.ValidationError{Field: field, Reason: "expected HH:MM"}
	}
	return clk, nil
}

func (h *Handler) createRequest(req reservationRequest) (admission.CreateRequest, error) {
	date, err := h.parseDate("exam_date", req.ExamDate)
	if err != nil {
		return admission.CreateRequest{}, err
	}
	start, err := parseClock("exam_start_time", req.ExamStartTime)
	if err != nil {
		return admission.CreateRequest{}, err
	}
	end, err := parseClock("exam_end_time", req.ExamEndTime)
	if err != nil {
		return admission.CreateRequest{}, err
	}
	return admission.CreateRequest{ExamDate: date, StartTime: start, EndTime: end, Applicants: req.Applicants}, nil
}

func (h *Handler) patch(req reservationPatchRequest) (admission.ReservationPatch, error) {
	var p admission.ReservationPatch
	if req.ExamDate != nil {
		date, err := h.parseDate("exam_date", *req.ExamDate)
		if err != nil {
			return p, err
		}
		p.ExamDate = &date
	}
	if req.ExamStartTime != nil {
		start, err := parseClock("exam_start_time", *req.ExamStartTime)
		if err != nil {
			return p, err
		}
		p.StartTime = &start
	}
	if req.ExamEndTime != nil {
		end, err := parseClock("exam_end_time", *req.ExamEndTime)
		if err != nil {
			return p, err
		}
		p.EndTime = &end
	}
	p.Applicants = req.Applicants
	return p, nil
}

func reservationID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid reservation id %q", c.Param("id"))
	}
	return id, nil
}

// CreateReservation handles POST /api/v1/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	caller, _ := mw.CallerFrom(c)

	var body reservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := h.createRequest(body)
	if err != nil {
		writeError(c, err)
		return
	}

	r, err := h.reservations.Create(c.Request.Context(), caller, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.reservationResponse(r))
}

// ListMyReservations handles GET /api/v1/reservations.
func (h *Handler) ListMyReservations(c *gin.Context) {
	caller, _ := mw.CallerFrom(c)

	rs, err := h.reservations.ListOwn(c.Request.Context(), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.reservationResponses(rs))
}

// UpdateReservation handles PATCH /api/v1/reservations/:id.
func (h *Handler) UpdateReservation(c *gin.Context) {
	caller, _ := mw.CallerFrom(c)
	id, err := reservationID(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	var body reservationPatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.patch(body)
	if err != nil {
		writeError(c, err)
		return
	}

	r, err := h.reservations.Update(c.Request.Context(), caller, id, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.reservationResponse(r))
}

// DeleteReservation handles DELETE /api/v1/reservations/:id and its admin twin.
// The deleted reservation is echoed back.
func (h *Handler) DeleteReservation(c *gin.Context) {
	caller, _ := mw.CallerFrom(c)
	id, err := reservationID(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.reservations.Delete(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.reservationResponse(r))
}
