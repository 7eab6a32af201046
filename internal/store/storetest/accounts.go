// Package storetest provides in-memory repositories for tests of packages
// built on top of the store.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roomify/apiserver/internal/store"
	"github.com/roomify/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// Accounts is an in-memory account repository for tests. It mirrors the
// single-statement semantics of the SQL store under one mutex.
type Accounts struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]types.Account
	writes   int
}

func NewAccounts() *Accounts {
	return &Accounts{accounts: make(map[int64]types.Account)}
}

func (m *Accounts) GetByID(_ context.Context, id int64) (types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (m *Accounts) GetByEmail(_ context.Context, email string) (types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if strings.EqualFold(account.Email, strings.TrimSpace(email)) {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (m *Accounts) Create(_ context.Context, account types.Account) (types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Email, account.Email) {
			return types.Account{}, store.ErrConflict
		}
	}
	m.nextID++
	account.ID = m.nextID
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	m.accounts[account.ID] = account
	m.writes++
	return account, nil
}

func (m *Accounts) Update(_ context.Context, account types.Account) (types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.accounts[account.ID]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	account.FailedAttempts = existing.FailedAttempts
	account.LockUntil = existing.LockUntil
	m.accounts[account.ID] = account
	m.writes++
	return account, nil
}

func (m *Accounts) SetActive(_ context.Context, id int64, active bool) (types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	account.Active = active
	m.accounts[id] = account
	m.writes++
	return account, nil
}

func (m *Accounts) List(_ context.Context, filter types.AccountFilter) ([]types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Account
	for _, account := range m.accounts {
		if s := strings.ToLower(filter.Search); s != "" &&
			!strings.Contains(strings.ToLower(account.Email), s) &&
			!strings.Contains(strings.ToLower(account.Name), s) {
			continue
		}
		if filter.Role != "" && account.Role != filter.Role {
			continue
		}
		if d := types.NormalizeDepartment(filter.Department); d != "" && account.Department != d {
			continue
		}
		if filter.Active != nil && account.Active != *filter.Active {
			continue
		}
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Accounts) IncrementFailedAttempts(_ context.Context, id int64, threshold int, lockUntil time.Time, now time.Time) (types.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return types.Account{}, false, store.ErrNotFound
	}
	account.FailedAttempts++
	lockedNow := false
	if account.FailedAttempts >= threshold && !account.LockedAt(now) {
		until := lockUntil
		account.LockUntil = &until
		lockedNow = true
	}
	m.accounts[id] = account
	m.writes++
	return account, lockedNow, nil
}

func (m *Accounts) ResetFailedAttempts(_ context.Context, id int64, _ time.Time) (types.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return types.Account{}, false, store.ErrNotFound
	}
	if account.AtRest() {
		return account, false, nil
	}
	account.FailedAttempts = 0
	account.LockUntil = nil
	m.accounts[id] = account
	m.writes++
	return account, true, nil
}

// Writes counts mutating calls.
func (m *Accounts) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Seed creates an active account with a bcrypt hash of password.
func (m *Accounts) Seed(email, password string, role types.Role, department string) types.Account {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	account, err := m.Create(context.Background(), types.Account{
		Email:        email,
		Name:         email,
		Role:         role,
		Department:   types.NormalizeDepartment(department),
		Active:       true,
		PasswordHash: string(hash),
	})
	if err != nil {
		panic(err)
	}
	return account
}
