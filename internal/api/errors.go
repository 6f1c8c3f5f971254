package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"exam-reservation-backend/internal/admission"
	"exam-reservation-backend/internal/auth"
)

// statusFor maps domain and auth errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		validation *admission.ValidationError
		authz      *admission.AuthorizationError
		notFound   *admission.NotFoundError
		capacity   *admission.CapacityExceededError
		state      *admission.StateError
		conflict   *admission.ConflictError
		aborted    *admission.AbortedError
	)
	switch {
	case errors.As(err, &validation), errors.Is(err, admission.ErrNoBookableSlot),
		errors.As(err, &capacity), errors.As(err, &state):
		return http.StatusBadRequest
	case errors.As(err, &authz):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &aborted):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidSignup):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError aborts the request with the status for err. Internal failures
// are logged and reported without detail.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
