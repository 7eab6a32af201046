package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/roomify/apiserver/internal/store"
	"github.com/roomify/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength   = 8
	maxNameLength       = 100
	maxDepartmentLength = 50
)

// CreateStaffInput describes a new staff account.
type CreateStaffInput struct {
	Email      string
	Name       string
	Department string
	Password   string
}

// UpdateStaffInput carries the editable profile fields of an account.
type UpdateStaffInput struct {
	Name       string
	Department string
}

// StatusInvalidator is notified when an account's active flag changes.
type StatusInvalidator interface {
	Invalidate(subject string)
}

// StaffService encapsulates staff administration use-cases.
type StaffService struct {
	accounts AccountRepository
	lockout  *LockoutService
	audit    AuditRecorder
	status   StatusInvalidator
}

func NewStaffService(accounts AccountRepository, lockout *LockoutService, audit AuditRecorder, status StatusInvalidator) *StaffService {
	return &StaffService{
		accounts: accounts,
		lockout:  lockout,
		audit:    audit,
		status:   status,
	}
}

// Create onboards a STAFF account with a bcrypt-hashed password.
func (s *StaffService) Create(ctx context.Context, actor types.Identity, input CreateStaffInput) (types.Account, error) {
	account, err := s.newAccount(input.Email, input.Name, input.Department, input.Password, types.RoleStaff)
	if err != nil {
		return types.Account{}, err
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Account{}, ErrEmailExists
		}
		return types.Account{}, fmt.Errorf("create account: %w", err)
	}

	s.audit.Record(ctx, actor.Subject, types.ActionUserCreated, created.Email, map[string]string{
		"role": string(created.Role),
		"name": created.Name,
	})
	return created, nil
}

// EnsureManager creates the manager account for email, or resets an
// existing account to an active manager with the given password.
func (s *StaffService) EnsureManager(ctx context.Context, email, name, department, password string) (types.Account, error) {
	account, err := s.newAccount(email, name, department, password, types.RoleManager)
	if err != nil {
		return types.Account{}, err
	}

	existing, err := s.accounts.GetByEmail(ctx, account.Email)
	switch {
	case err == nil:
		existing.Name = account.Name
		existing.Department = account.Department
		existing.Role = types.RoleManager
		existing.Active = true
		existing.PasswordHash = account.PasswordHash
		updated, err := s.accounts.Update(ctx, existing)
		if err != nil {
			return types.Account{}, fmt.Errorf("update manager: %w", err)
		}
		s.invalidate(updated.Email)
		return updated, nil
	case errors.Is(err, store.ErrNotFound):
		created, err := s.accounts.Create(ctx, account)
		if err != nil {
			return types.Account{}, fmt.Errorf("create manager: %w", err)
		}
		s.audit.Record(ctx, types.ActorSystem, types.ActionUserCreated, created.Email, map[string]string{
			"role": string(created.Role),
			"name": created.Name,
		})
		return created, nil
	default:
		return types.Account{}, fmt.Errorf("load manager: %w", err)
	}
}

func (s *StaffService) newAccount(email, name, department, password string, role types.Role) (types.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || password == "" {
		return types.Account{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return types.Account{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return types.Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if name == "" {
		name = email
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.Account{}, fmt.Errorf("hash password: %w", err)
	}
	return types.Account{
		Email:        email,
		Name:         name,
		Role:         role,
		Department:   types.NormalizeDepartment(department),
		Active:       true,
		PasswordHash: string(hashed),
	}, nil
}

func (s *StaffService) Get(ctx context.Context, id int64) (types.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *StaffService) List(ctx context.Context, filter types.AccountFilter) ([]types.Account, error) {
	return s.accounts.List(ctx, filter)
}

// Roster lists the active members of a department.
func (s *StaffService) Roster(ctx context.Context, department string) ([]types.Account, error) {
	active := true
	return s.accounts.List(ctx, types.AccountFilter{
		Department: department,
		Active:     &active,
	})
}

// Update replaces the name and department of an account. Tokens already
// issued keep the department they were issued with until they expire.
func (s *StaffService) Update(ctx context.Context, actor types.Identity, id int64, input UpdateStaffInput) (types.Account, error) {
	name := strings.TrimSpace(input.Name)
	department := types.NormalizeDepartment(input.Department)
	switch {
	case name == "" || department == "":
		return types.Account{}, fmt.Errorf("%w: name and department are required", ErrInvalidInput)
	case utf8.RuneCountInString(name) > maxNameLength:
		return types.Account{}, fmt.Errorf("%w: name must be at most %d characters", ErrInvalidInput, maxNameLength)
	case utf8.RuneCountInString(department) > maxDepartmentLength:
		return types.Account{}, fmt.Errorf("%w: department must be at most %d characters", ErrInvalidInput, maxDepartmentLength)
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, err
	}
	previous := account.Department
	account.Name = name
	account.Department = department

	updated, err := s.accounts.Update(ctx, account)
	if err != nil {
		return types.Account{}, fmt.Errorf("update account: %w", err)
	}
	s.audit.Record(ctx, actor.Subject, types.ActionUserUpdated, updated.Email, map[string]string{
		"name":               updated.Name,
		"department":         updated.Department,
		"previousDepartment": previous,
	})
	return updated, nil
}

// SetActive activates or deactivates an account. A caller may not
// deactivate their own account.
func (s *StaffService) SetActive(ctx context.Context, actor types.Identity, id int64, active bool) (types.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, err
	}
	if !active && actor.Subject != "" && strings.EqualFold(account.Email, actor.Subject) {
		return types.Account{}, ErrSelfDeactivation
	}

	updated, err := s.accounts.SetActive(ctx, id, active)
	if err != nil {
		return types.Account{}, err
	}
	s.invalidate(updated.Email)

	action := types.ActionAccountDeactivated
	if active {
		action = types.ActionAccountActivated
	}
	s.audit.Record(ctx, actor.Subject, action, updated.Email, nil)
	return updated, nil
}

// Unlock clears the lockout state of an account on behalf of actor.
func (s *StaffService) Unlock(ctx context.Context, actor types.Identity, id int64) (types.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, err
	}
	return s.lockout.Unlock(ctx, actor.Subject, account)
}

func (s *StaffService) invalidate(email string) {
	if s.status != nil {
		s.status.Invalidate(email)
	}
}
