package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/middleware"
	"github.com/upb/llm-failover-router/services/auth"
	"github.com/upb/llm-failover-router/utils"
)

// Authenticator exchanges the admin password for a session
type Authenticator interface {
	Login(ctx context.Context, password string) (*auth.Session, error)
}

// LoginRequest is the admin login payload.
type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued session.
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AdminHandler handles admin session endpoints
type AdminHandler struct {
	auth         Authenticator
	cookieSecure bool
	logger       *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(authenticator Authenticator, cookieSecure bool, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		auth:         authenticator,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// HandleLogin handles POST /api/admin/login
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(w, r, &req, 4<<10); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	session, err := h.auth.Login(r.Context(), req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.Token, session.ExpiresAt))
	h.logger.Info("admin session issued",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.Time("expires_at", session.ExpiresAt))

	_ = utils.WriteJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

// HandleLogout handles POST /api/admin/logout
func (h *AdminHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	cookie := h.sessionCookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)

	_ = utils.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleSession handles GET /api/admin/session. It sits behind RequireAdmin.
func (h *AdminHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		_ = utils.WriteUnauthorized(w, "Unauthorized")
		return
	}

	resp := map[string]interface{}{
		"authenticated": true,
		"role":          claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp["expiresAt"] = claims.ExpiresAt.Time
	}
	_ = utils.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) sessionCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}
