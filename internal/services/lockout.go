package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/roomify/apiserver/internal/metrics"
	"github.com/roomify/apiserver/types"
)

// LockoutPolicy configures when repeated failures lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy locks after five failures for thirty minutes.
var DefaultLockoutPolicy = LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}

// LockoutService owns the failed-attempt counter and lock expiry of every
// account. Nothing else writes those fields.
type LockoutService struct {
	repo   AccountRepository
	audit  AuditRecorder
	policy LockoutPolicy
	now    func() time.Time
}

func NewLockoutService(repo AccountRepository, audit AuditRecorder, policy LockoutPolicy) *LockoutService {
	if policy.Threshold < 1 {
		policy.Threshold = DefaultLockoutPolicy.Threshold
	}
	if policy.Duration <= 0 {
		policy.Duration = DefaultLockoutPolicy.Duration
	}
	return &LockoutService{
		repo:   repo,
		audit:  audit,
		policy: policy,
		now:    time.Now,
	}
}

// Policy returns the effective lockout policy.
func (s *LockoutService) Policy() LockoutPolicy {
	return s.policy
}

// IsLocked reports whether the account's lock ends strictly after now. An
// expired lock is not cleared here; only RecordSuccess or Unlock clear it.
func (s *LockoutService) IsLocked(account types.Account) bool {
	return account.LockedAt(s.now())
}

// RecordFailure atomically counts one failed attempt and locks the account
// when the threshold is reached.
func (s *LockoutService) RecordFailure(ctx context.Context, account types.Account) (types.Account, error) {
	now := s.now()
	updated, lockedNow, err := s.repo.IncrementFailedAttempts(ctx, account.ID, s.policy.Threshold, now.Add(s.policy.Duration), now)
	if err != nil {
		return types.Account{}, fmt.Errorf("record failed attempt: %w", err)
	}

	s.audit.Record(ctx, updated.Email, types.ActionLoginFailedAttempt, updated.Email, map[string]string{
		"attempts": strconv.Itoa(updated.FailedAttempts),
	})
	if lockedNow && updated.LockUntil != nil {
		metrics.AccountLockouts.Inc()
		s.audit.Record(ctx, updated.Email, types.ActionAccountLocked, updated.Email, map[string]string{
			"until":    updated.LockUntil.UTC().Format(time.RFC3339),
			"attempts": strconv.Itoa(updated.FailedAttempts),
		})
	}
	return updated, nil
}

// RecordSuccess clears the counter and the lock together. An account that
// is already at rest is returned unchanged with no write and no audit entry.
func (s *LockoutService) RecordSuccess(ctx context.Context, account types.Account) (types.Account, error) {
	if account.AtRest() {
		return account, nil
	}
	updated, changed, err := s.repo.ResetFailedAttempts(ctx, account.ID, s.now())
	if err != nil {
		return types.Account{}, fmt.Errorf("reset failed attempts: %w", err)
	}
	if changed {
		s.audit.Record(ctx, updated.Email, types.ActionLockoutReset, updated.Email, map[string]string{
			"status": "success",
		})
	}
	return updated, nil
}

// Unlock is the administrative reset performed by a manager. It is always
// audited with the manager as actor.
func (s *LockoutService) Unlock(ctx context.Context, actor string, account types.Account) (types.Account, error) {
	updated, changed, err := s.repo.ResetFailedAttempts(ctx, account.ID, s.now())
	if err != nil {
		return types.Account{}, fmt.Errorf("unlock account: %w", err)
	}
	s.audit.Record(ctx, actor, types.ActionManualUnlock, updated.Email, map[string]string{
		"changed": strconv.FormatBool(changed),
	})
	return updated, nil
}
