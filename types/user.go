package types

import (
	"strings"
	"time"
)

// Role is the single authorization level carried by an account.
type Role string

const (
	RoleManager Role = "MANAGER"
	RoleStaff   Role = "STAFF"
	RoleGuest   Role = "GUEST"
)

// RolePrefix is the framework-style spelling some identity providers emit
// in front of a role name ("ROLE_MANAGER").
const RolePrefix = "ROLE_"

// ParseRole normalizes a role name, accepting both the bare and the
// prefixed spelling. It reports false for blank or unknown roles.
func ParseRole(raw string) (Role, bool) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, RolePrefix)
	switch Role(name) {
	case RoleManager, RoleStaff, RoleGuest:
		return Role(name), true
	default:
		return "", false
	}
}

// Authority returns the prefixed spelling used in login responses.
func (r Role) Authority() string {
	if r == "" {
		return ""
	}
	return RolePrefix + string(r)
}

// NormalizeDepartment trims and upper-cases a department name so that
// comparisons are insensitive to how clients spell it.
func NormalizeDepartment(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Account represents a staff login in the system.
// It carries credentials, role, department and the lockout counters.
type Account struct {
	// ID is the unique identifier of the account.
	ID int64 `json:"id" db:"id"`

	// Email is the unique login name and the token subject.
	Email string `json:"email" db:"email"`

	// Name is the staff member's display name.
	Name string `json:"name" db:"name"`

	// Role is the account's authorization level.
	Role Role `json:"role" db:"role"`

	// Department is empty for accounts outside any department.
	Department string `json:"department,omitempty" db:"department"`

	// Active is false once the account has been deactivated.
	Active bool `json:"active" db:"is_active"`

	// PasswordHash stores the bcrypt hash of the password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// FailedAttempts counts consecutive failed logins since the last reset.
	FailedAttempts int `json:"failed_attempts" db:"failed_attempts"`

	// LockUntil is set when the account is locked. A value in the past
	// means the lock has expired.
	LockUntil *time.Time `json:"lock_until,omitempty" db:"lock_until"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AtRest reports whether the lockout counters hold no state.
func (a Account) AtRest() bool {
	return a.FailedAttempts == 0 && a.LockUntil == nil
}

// LockedAt reports whether the account is locked at the given instant.
// The lock must end strictly after now.
func (a Account) LockedAt(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// AccountFilter narrows staff listings. Zero values match everything.
type AccountFilter struct {
	Search     string
	Role       Role
	Department string
	Active     *bool
}
