package types

import "time"

// Well-known audit actors.
const (
	ActorSystem    = "SYSTEM"
	ActorAnonymous = "ANONYMOUS"
)

// Audit action codes written by the auth core.
const (
	ActionLoginSuccess       = "LOGIN_SUCCESS"
	ActionLoginFailure       = "LOGIN_FAILURE"
	ActionLoginFailedAttempt = "LOGIN_FAILED_ATTEMPT"
	ActionAccountLocked      = "ACCOUNT_LOCKED"
	ActionLockoutReset       = "LOCKOUT_RESET"
	ActionManualUnlock       = "MANUAL_UNLOCK"
	ActionTokenRefreshed     = "TOKEN_REFRESHED"
	ActionUserCreated        = "USER_CREATED"
	ActionUserUpdated        = "USER_UPDATED"
	ActionAccountActivated   = "ACCOUNT_ACTIVATED"
	ActionAccountDeactivated = "ACCOUNT_DEACTIVATED"
)

// Authorization outcomes stored as the audit target of a decision.
const (
	OutcomeAuthorized = "AUTHORIZED"
	OutcomeDenied     = "DENIED"
)

// AuditEntry is an append-only record of a security-relevant event.
type AuditEntry struct {
	// ID is assigned by the store when the entry is persisted.
	ID int64 `json:"id,omitempty" db:"id"`

	// EventID correlates the entry across broker redeliveries.
	EventID string `json:"event_id" db:"event_id"`

	// Actor is the subject that caused the event, or ActorSystem.
	Actor string `json:"actor" db:"actor"`

	// Action is the event code, e.g. LOGIN_SUCCESS.
	Action string `json:"action" db:"action"`

	Target   string            `json:"target" db:"target"`
	Metadata map[string]string `json:"metadata,omitempty" db:"metadata"`

	// CreatedAt is taken from the server clock when the entry is recorded.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuthorizationDecision is the outcome of one access-control evaluation.
type AuthorizationDecision struct {
	Actor      string
	Operation  string
	Resource   string
	Authorized bool
	Reason     string
	Department string
}
