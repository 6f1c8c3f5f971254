package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"exam-reservation-backend/internal/admission"
	"exam-reservation-backend/internal/auth"
	"exam-reservation-backend/internal/stats"
	"exam-reservation-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	reservations *admission.Controller
	auth         *auth.Service
	store        store.Store
	stats        stats.Recorder
	webpush      *webpush.Options
	loc          *time.Location
}

// NewHandler creates a new API handler. Clock fields in responses are
// rendered in the controller's exam timezone.
func NewHandler(ctrl *admission.Controller, authSvc *auth.Service, s store.Store, rec stats.Recorder, webpushOptions *webpush.Options) *Handler {
	h := &Handler{
		reservations: ctrl,
		auth:         authSvc,
		store:        s,
		stats:        rec,
		webpush:      webpushOptions,
		loc:          time.UTC,
	}
	if ctrl != nil {
		h.loc = ctrl.Location()
	}
	return h
}
