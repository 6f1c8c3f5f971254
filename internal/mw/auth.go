package mw

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"exam-reservation-backend/internal/admission"
	"exam-reservation-backend/internal/auth"
)

const callerKey = "caller"

// TokenVerifier checks bearer access tokens.
type TokenVerifier interface {
	Authenticate(accessToken string) (*auth.Claims, error)
}

// Authenticate requires a valid bearer access token and stores the caller
// in the gin context.
func Authenticate(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := verifier.Authenticate(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(callerKey, admission.Caller{UserID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

// RequireAdmin rejects callers without the ADMIN role. It must run after Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if !caller.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// CallerFrom returns the caller stored by Authenticate.
func CallerFrom(c *gin.Context) (admission.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return admission.Caller{}, false
	}
	caller, ok := v.(admission.Caller)
	return caller, ok
}
