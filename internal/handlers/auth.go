package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/roomify/apiserver/internal/authz"
	"github.com/roomify/apiserver/internal/services"
	"github.com/roomify/apiserver/types"
)

const tokenType = "Bearer"

// AuthHandler provides the login, refresh and identity endpoints.
type AuthHandler struct {
	auth   *services.AuthService
	logger *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth *services.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

// AuthRouter registers auth routes on the given router. Login and refresh
// stay outside authentication; /me goes through authenticate.
func AuthRouter(r chi.Router, handler *AuthHandler, authenticate func(http.Handler) http.Handler, limiter *LoginLimiter) {
	r.With(limiter.Middleware).Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.With(authenticate).Get("/me", handler.Me)
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAccountLocked):
			writeError(w, r, http.StatusUnauthorized, msgAccountLocked)
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, msgBadCredentials)
		default:
			h.logger.Error("login failed", slog.Any("error", err))
			writeError(w, r, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	account := result.Account
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     result.Token,
		Type:      tokenType,
		SubjectID: account.ID,
		Username:  account.Name,
		Email:     account.Email,
		Roles:     []string{string(account.Role)},
	})
}

// Refresh exchanges a still-valid token for a new one.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, r, http.StatusUnauthorized, msgMissingToken)
		return
	}

	signed, err := h.auth.Refresh(r.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenExpired):
			writeError(w, r, http.StatusUnauthorized, msgTokenExpired)
		case errors.Is(err, services.ErrTokenMalformed):
			writeError(w, r, http.StatusUnauthorized, msgInvalidToken)
		case errors.Is(err, services.ErrInvalidSubject):
			writeError(w, r, http.StatusUnauthorized, msgInvalidSubject)
		case errors.Is(err, services.ErrInvalidRole):
			writeError(w, r, http.StatusUnauthorized, msgInvalidRole)
		case errors.Is(err, services.ErrAccountInactive):
			writeError(w, r, http.StatusUnauthorized, msgInactive)
		default:
			h.logger.Error("token refresh failed", slog.Any("error", err))
			writeError(w, r, http.StatusInternalServerError, "failed to refresh token")
		}
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{Token: signed, Type: tokenType})
}

// Me returns the identity of the current request.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFrom(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, msgMissingToken)
		return
	}

	authorities := []string{}
	if identity.Role != "" {
		authorities = append(authorities, identity.Role.Authority())
	}
	writeJSON(w, http.StatusOK, IdentityResponse{
		Subject:     identity.Subject,
		Role:        identity.Role,
		Department:  identity.Department,
		Authorities: authorities,
	})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string   `json:"token"`
	Type      string   `json:"type"`
	SubjectID int64    `json:"subjectId"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
}

type RefreshRequest struct {
	Token string `json:"token"`
}

type RefreshResponse struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}

type IdentityResponse struct {
	Subject     string     `json:"subject"`
	Role        types.Role `json:"role"`
	Department  string     `json:"department,omitempty"`
	Authorities []string   `json:"authorities"`
}
