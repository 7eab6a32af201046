package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roomify/apiserver/internal/metrics"
	"github.com/roomify/apiserver/internal/store"
	"github.com/roomify/apiserver/internal/token"
	"github.com/roomify/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// TokenCodec issues and verifies session tokens.
type TokenCodec interface {
	Issue(subject string, role types.Role, opts ...token.IssueOption) (string, error)
	Verify(tokenString string) (token.Verified, error)
}

// ActiveChecker reports whether the account behind a subject may still use
// its tokens.
type ActiveChecker interface {
	IsActive(ctx context.Context, subject string) (bool, error)
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token   string
	Account types.Account
}

// AuthService is the authentication gate used by the login and refresh
// endpoints.
type AuthService struct {
	accounts     AccountRepository
	lockout      *LockoutService
	codec        TokenCodec
	audit        AuditRecorder
	logger       *slog.Logger
	active       ActiveChecker
	storeTimeout time.Duration
	compare      func(hash, password []byte) error
}

// AuthOption customizes an AuthService.
type AuthOption func(*AuthService)

// WithActiveCheck makes Refresh reject tokens of deactivated accounts.
func WithActiveCheck(checker ActiveChecker) AuthOption {
	return func(s *AuthService) {
		s.active = checker
	}
}

func WithAuthLogger(logger *slog.Logger) AuthOption {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithStoreTimeout(timeout time.Duration) AuthOption {
	return func(s *AuthService) {
		s.storeTimeout = timeout
	}
}

func NewAuthService(accounts AccountRepository, lockout *LockoutService, codec TokenCodec, audit AuditRecorder, opts ...AuthOption) *AuthService {
	s := &AuthService{
		accounts:     accounts,
		lockout:      lockout,
		codec:        codec,
		audit:        audit,
		logger:       slog.Default(),
		storeTimeout: defaultStoreTimeout,
		compare:      bcrypt.CompareHashAndPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// dummyHash is compared against when the account does not exist or is
// inactive so that those emails cost the same as wrong passwords.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("roomify-timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
})

// Login checks the credentials of email. It returns ErrInvalidCredentials
// for unknown, inactive or mismatching accounts and ErrAccountLocked while a
// lock is active. Store failures are returned wrapped and fail closed.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	meta := map[string]string{"ip": clientIP}
	if email == "" || password == "" {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return LoginResult{}, ErrInvalidCredentials
	}

	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.LoginAttempts.WithLabelValues("error").Inc()
			return LoginResult{}, fmt.Errorf("load account: %w", err)
		}
		_ = s.compare(dummyHash(), []byte(password))
		return LoginResult{}, s.loginFailed(ctx, email, "unknown_account", meta, ErrInvalidCredentials)
	}

	if !account.Active {
		_ = s.compare(dummyHash(), []byte(password))
		return LoginResult{}, s.loginFailed(ctx, account.Email, "inactive", meta, ErrInvalidCredentials)
	}

	// A locked account is rejected before the password is looked at and
	// without extending the lock.
	if s.lockout.IsLocked(account) {
		return LoginResult{}, s.loginFailed(ctx, account.Email, "locked", meta, ErrAccountLocked)
	}

	if err := s.compare([]byte(account.PasswordHash), []byte(password)); err != nil {
		if _, err := s.lockout.RecordFailure(ctx, account); err != nil {
			metrics.LoginAttempts.WithLabelValues("error").Inc()
			return LoginResult{}, err
		}
		return LoginResult{}, s.loginFailed(ctx, account.Email, "bad_password", meta, ErrInvalidCredentials)
	}

	account, err = s.lockout.RecordSuccess(ctx, account)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return LoginResult{}, err
	}

	signed, err := s.codec.Issue(account.Email, account.Role, token.WithDepartment(account.Department))
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.audit.Record(ctx, account.Email, types.ActionLoginSuccess, account.Email, meta)
	s.logger.Info("login succeeded", slog.String("email", account.Email), slog.String("ip", clientIP))
	return LoginResult{Token: signed, Account: account}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, reason string, meta map[string]string, err error) error {
	outcome := "invalid_credentials"
	if errors.Is(err, ErrAccountLocked) {
		outcome = "locked"
	}
	metrics.LoginAttempts.WithLabelValues(outcome).Inc()

	details := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		details[k] = v
	}
	details["reason"] = reason
	s.audit.Record(ctx, email, types.ActionLoginFailure, email, details)
	s.logger.Warn("login failed", slog.String("email", email), slog.String("reason", reason), slog.String("ip", meta["ip"]))
	return err
}

// Refresh exchanges a valid token for a new one with the same subject and
// role and a fresh lifetime. Unless an ActiveChecker is configured the
// account's active and lock state are not consulted.
func (s *AuthService) Refresh(ctx context.Context, tokenString string) (string, error) {
	verified, err := s.codec.Verify(strings.TrimSpace(tokenString))
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenMalformed
	}
	if verified.Subject == "" {
		return "", ErrInvalidSubject
	}
	if verified.Role == "" {
		return "", ErrInvalidRole
	}
	// Unknown roles are carried over as issued; they grant nothing.
	role := types.Role(verified.Role)
	if parsed, ok := types.ParseRole(verified.Role); ok {
		role = parsed
	}

	if s.active != nil {
		ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
		defer cancel()
		active, err := s.active.IsActive(ctx, verified.Subject)
		if err != nil {
			return "", fmt.Errorf("check account status: %w", err)
		}
		if !active {
			return "", ErrAccountInactive
		}
	}

	signed, err := s.codec.Issue(verified.Subject, role, token.WithDepartment(verified.Department))
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	s.audit.Record(ctx, verified.Subject, types.ActionTokenRefreshed, verified.Subject, nil)
	return signed, nil
}
