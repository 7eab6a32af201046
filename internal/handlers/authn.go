package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roomify/apiserver/internal/authz"
	"github.com/roomify/apiserver/internal/metrics"
	"github.com/roomify/apiserver/internal/services"
	"github.com/roomify/apiserver/internal/token"
	"github.com/roomify/apiserver/types"
)

// Rejection messages returned with 401 responses.
const (
	msgMissingToken   = "Missing token"
	msgInvalidToken   = "Invalid token"
	msgTokenExpired   = "Token expired"
	msgInvalidSubject = "Invalid token subject"
	msgInvalidRole    = "Invalid token role"
	msgBadCredentials = "Wrong email or password"
	msgAccountLocked  = "Account locked"
	msgInactive       = "Account inactive"
)

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	Verify(tokenString string) (token.Verified, error)
}

// Authenticator turns a bearer token into a request identity. Routes that
// must stay reachable without a token are simply not mounted behind it.
type Authenticator struct {
	verifier TokenVerifier
	active   services.ActiveChecker
	logger   *slog.Logger
}

type AuthenticatorOption func(*Authenticator)

// WithActiveAccounts rejects tokens whose account has been deactivated.
func WithActiveAccounts(checker services.ActiveChecker) AuthenticatorOption {
	return func(a *Authenticator) {
		a.active = checker
	}
}

func WithAuthenticatorLogger(logger *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAuthenticator(verifier TokenVerifier, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{verifier: verifier, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Middleware enforces authentication. Every rejection writes the full 401
// body and returns without calling next.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			a.reject(w, r, "missing_token", msgMissingToken)
			return
		}

		verified, err := a.verifier.Verify(raw)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				a.reject(w, r, "expired", msgTokenExpired)
				return
			}
			a.reject(w, r, "malformed", msgInvalidToken)
			return
		}
		if verified.Subject == "" {
			a.reject(w, r, "invalid_subject", msgInvalidSubject)
			return
		}

		// An unknown or blank role yields an identity without permissions.
		role, _ := types.ParseRole(verified.Role)
		identity := types.Identity{
			Subject:    verified.Subject,
			Role:       role,
			Department: types.NormalizeDepartment(verified.Department),
		}

		if a.active != nil {
			active, err := a.active.IsActive(r.Context(), identity.Subject)
			if err != nil {
				a.logger.Error("account status check failed", slog.String("subject", identity.Subject), slog.Any("error", err))
				writeError(w, r, http.StatusInternalServerError, "failed to verify account")
				return
			}
			if !active {
				a.reject(w, r, "inactive", msgInactive)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), identity)))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, reason, message string) {
	metrics.AuthRejections.WithLabelValues(reason).Inc()
	a.logger.Debug("request rejected", slog.String("reason", reason), slog.String("path", r.URL.Path))
	writeError(w, r, http.StatusUnauthorized, message)
}

// bearerToken extracts the token from the Authorization header. A header
// without the Bearer scheme or with nothing after it counts as missing.
func bearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", false
	}
	scheme, rest, _ := strings.Cut(auth, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tokenString := strings.TrimSpace(rest)
	if tokenString == "" {
		return "", false
	}
	return tokenString, true
}
