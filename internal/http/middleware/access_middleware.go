package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/response"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/service"
)

type AccessChecker interface {
	Check(ctx context.Context, sub service.AccessSubject) error
}

type OperationMonitor interface {
	TrackOperation(ctx context.Context, userID uint) *domain.AnomalyEvent
	HandleAnomaly(ctx context.Context, event domain.AnomalyEvent) (*domain.SecurityResponse, error)
}

// RequireAccess applies lockdown, IP block and account flag checks to the authenticated caller.
// Without an identity in context only the IP and lockdown checks apply.
func RequireAccess(gate AccessChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := service.AccessSubject{IP: observability.ClientIP(r)}
			if id, ok := IdentityFromContext(r.Context()); ok {
				sub.UserID = id.UserID
				sub.Role = id.Role
			}
			if err := gate.Check(r.Context(), sub); err != nil {
				observability.Audit(r, "access.denied", "user_id", sub.UserID, "reason", err.Error())
				response.ServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity", nil)
			return
		}
		if !id.IsAdmin() {
			observability.Audit(r, "admin.denied", "user_id", id.UserID, "role", id.Role)
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "administrator role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TrackOperations counts every authenticated request toward the caller's operation rate.
// The request that crosses the threshold is persisted and handed to the responder before
// it continues; a mitigation failure is logged and does not fail the request.
func TrackOperations(monitor OperationMonitor, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if event := monitor.TrackOperation(r.Context(), id.UserID); event != nil {
				if _, err := monitor.HandleAnomaly(r.Context(), *event); err != nil {
					logger.WarnContext(r.Context(), "operation anomaly response failed",
						"module", "http",
						"operation", "track_operations",
						"outcome", "error",
						"user_id", id.UserID,
						"error", err,
					)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
