package handler

import (
	"errors"
	"net/http"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/response"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/service"
)

type AuthHandler struct {
	auth          *service.AuthService
	secureCookies bool
}

func NewAuthHandler(auth *service.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{auth: auth, secureCookies: secureCookies}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.auth.Authenticate(r.Context(), service.LoginRequest{
		Username:  req.Username,
		Password:  req.Password,
		IP:        observability.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, service.ErrAccountLocked) && res != nil {
			observability.Audit(r, "auth.login.locked", "username", req.Username)
			response.Locked(w, r, res.UnlockAt)
			return
		}
		observability.Audit(r, "auth.login.failed", "username", req.Username, "reason", err.Error())
		response.ServiceError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    res.Tokens.AccessToken,
		Path:     "/",
		Expires:  res.Tokens.AccessExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	observability.Audit(r, "auth.login.success", "user_id", res.User.ID)
	response.JSON(w, r, http.StatusOK, res)
}

// Register creates a regular user. Administrators are created from the CLI.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.auth.RegisterUser(r.Context(), req.Username, req.Email, req.Password, domain.RoleUser)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.register", "user_id", user.ID)
	response.JSON(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword, observability.ClientIP(r)); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.password.changed", "user_id", id.UserID)
	response.JSON(w, r, http.StatusOK, map[string]bool{"changed": true})
}
