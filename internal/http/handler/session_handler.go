package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/security-monitoring-service/internal/http/response"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionRegistry
}

func NewSessionHandler(sessions *service.SessionRegistry) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	views, err := h.sessions.ListSessions(r.Context(), id.UserID, id.SessionRef)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

// Revoke deletes one of the caller's own sessions. Another user's reference reads as not found.
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	ref := strings.TrimSpace(chi.URLParam(r, "ref"))
	n, err := h.sessions.RevokeForUser(r.Context(), id.UserID, ref)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	if n == 0 {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
		return
	}
	observability.Audit(r, "session.revoked", "user_id", id.UserID, "current", ref == id.SessionRef)
	response.JSON(w, r, http.StatusOK, map[string]any{"revoked": n})
}

func (h *SessionHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	n, err := h.sessions.RevokeAllExcept(r.Context(), id.UserID, id.SessionRef)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.revoked_others", "user_id", id.UserID, "count", n)
	response.JSON(w, r, http.StatusOK, map[string]any{"revoked": n})
}
