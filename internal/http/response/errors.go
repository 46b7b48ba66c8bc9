package response

import (
	"errors"
	"net/http"

	"github.com/sandeepkv93/security-monitoring-service/internal/service"
)

// ServiceError maps a service error onto the envelope. Unknown errors become a 500 without detail.
func ServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "request validation failed", verr.Errors)
	case errors.Is(err, service.ErrInvalidCredentials):
		Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password", nil)
	case errors.Is(err, service.ErrInvalidToken):
		Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
	case errors.Is(err, service.ErrReauthRequired):
		Error(w, r, http.StatusUnauthorized, "REAUTH_REQUIRED", "re-authentication required", nil)
	case errors.Is(err, service.ErrIPBlocked):
		Error(w, r, http.StatusForbidden, "IP_BLOCKED", "requests from this address are blocked", nil)
	case errors.Is(err, service.ErrAccountLocked):
		Locked(w, r, nil)
	case errors.Is(err, service.ErrEmergencyLockdown):
		Error(w, r, http.StatusServiceUnavailable, "EMERGENCY_LOCKDOWN", "service is in emergency lockdown", nil)
	case errors.Is(err, service.ErrPasswordReused):
		Error(w, r, http.StatusConflict, "PASSWORD_REUSED", "password was used recently", nil)
	case errors.Is(err, service.ErrNotFound):
		Error(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.Is(err, service.ErrStorage), errors.Is(err, service.ErrDetectorFailed):
		Error(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "security state is temporarily unavailable", nil)
	default:
		Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
