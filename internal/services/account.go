package services

import (
	"context"
	"errors"
	"time"

	"github.com/roomify/apiserver/types"
)

const defaultStoreTimeout = 5 * time.Second

var (
	// ErrInvalidCredentials covers unknown accounts, inactive accounts and
	// wrong passwords alike so callers cannot tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while an account's lock has not expired.
	ErrAccountLocked  = errors.New("account locked")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	// ErrInvalidSubject and ErrInvalidRole are malformed tokens whose
	// signature is fine but whose claims are blank.
	ErrInvalidSubject = errors.New("invalid token subject")
	ErrInvalidRole    = errors.New("invalid token role")
	// ErrAccountInactive is returned for tokens of deactivated accounts when
	// active-account enforcement is enabled.
	ErrAccountInactive = errors.New("account inactive")

	ErrInvalidInput     = errors.New("invalid input")
	ErrEmailExists      = errors.New("email already exists")
	ErrSelfDeactivation = errors.New("you cannot deactivate your own account")
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Update(ctx context.Context, account types.Account) (types.Account, error)
	SetActive(ctx context.Context, id int64, active bool) (types.Account, error)
	List(ctx context.Context, filter types.AccountFilter) ([]types.Account, error)
	IncrementFailedAttempts(ctx context.Context, id int64, threshold int, lockUntil time.Time, now time.Time) (types.Account, bool, error)
	ResetFailedAttempts(ctx context.Context, id int64, now time.Time) (types.Account, bool, error)
}

// AuditRecorder appends audit entries without ever failing the caller.
type AuditRecorder interface {
	Record(ctx context.Context, actor, action, target string, metadata map[string]string)
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
