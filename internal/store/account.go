package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roomify/apiserver/types"
)

const accountColumns = `id, email, name, role, department, is_active, password_hash,
		failed_attempts, lock_until, created_at, updated_at`

// AccountRepository handles persistence for accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, extra ...any) (types.Account, error) {
	var (
		account    types.Account
		role       string
		department sql.NullString
		lockUntil  sql.NullTime
	)
	dest := []any{
		&account.ID,
		&account.Email,
		&account.Name,
		&role,
		&department,
		&account.Active,
		&account.PasswordHash,
		&account.FailedAttempts,
		&lockUntil,
		&account.CreatedAt,
		&account.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	account.Role = types.Role(role)
	account.Department = department.String
	if lockUntil.Valid {
		t := lockUntil.Time
		account.LockUntil = &t
	}
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanAccount(r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now().UTC()
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	account.FailedAttempts = 0
	account.LockUntil = nil
	account.CreatedAt = now
	account.UpdatedAt = now

	const query = `
		INSERT INTO users (email, name, role, department, is_active, password_hash, failed_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.Email,
		account.Name,
		string(account.Role),
		nullString(account.Department),
		account.Active,
		account.PasswordHash,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID); err != nil {
		return types.Account{}, mapWriteError(err)
	}
	return account, nil
}

// Update writes the profile fields of an account. The lockout counters are
// left untouched; only IncrementFailedAttempts and ResetFailedAttempts
// write them.
func (r *AccountRepository) Update(ctx context.Context, account types.Account) (types.Account, error) {
	query := `
		UPDATE users
		SET email = $1,
			name = $2,
			role = $3,
			department = $4,
			is_active = $5,
			password_hash = $6,
			updated_at = $7
		WHERE id = $8
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRowContext(
		ctx,
		query,
		strings.ToLower(strings.TrimSpace(account.Email)),
		account.Name,
		string(account.Role),
		nullString(account.Department),
		account.Active,
		account.PasswordHash,
		time.Now().UTC(),
		account.ID,
	))
}

func (r *AccountRepository) SetActive(ctx context.Context, id int64, active bool) (types.Account, error) {
	query := `
		UPDATE users
		SET is_active = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRowContext(ctx, query, active, time.Now().UTC(), id))
}

// IncrementFailedAttempts adds one failed attempt in a single statement so
// concurrent failures against the same row never lose an update. When the
// new count reaches threshold and the account is not already locked at now,
// the lock is set to lockUntil. The returned flag reports whether this call
// set the lock.
func (r *AccountRepository) IncrementFailedAttempts(
	ctx context.Context,
	id int64,
	threshold int,
	lockUntil time.Time,
	now time.Time,
) (types.Account, bool, error) {
	// Postgres keeps microseconds; the RETURNING comparison needs the exact value.
	lockUntil = lockUntil.UTC().Truncate(time.Microsecond)

	query := `
		UPDATE users
		SET failed_attempts = failed_attempts + 1,
			lock_until = CASE
				WHEN failed_attempts + 1 >= $2 AND (lock_until IS NULL OR lock_until <= $4) THEN $3
				ELSE lock_until
			END,
			updated_at = $4
		WHERE id = $1
		RETURNING ` + accountColumns + `, lock_until IS NOT DISTINCT FROM $3`
	var lockedNow bool
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id, threshold, lockUntil, now.UTC()), &lockedNow)
	if err != nil {
		return types.Account{}, false, err
	}
	return account, lockedNow, nil
}

// ResetFailedAttempts clears the counter and the lock together. It only
// writes when there is something to clear; the returned flag reports
// whether a row changed.
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id int64, now time.Time) (types.Account, bool, error) {
	query := `
		UPDATE users
		SET failed_attempts = 0,
			lock_until = NULL,
			updated_at = $2
		WHERE id = $1
			AND (failed_attempts > 0 OR lock_until IS NOT NULL)
		RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id, now.UTC()))
	if err == nil {
		return account, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return types.Account{}, false, err
	}
	account, err = r.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, false, err
	}
	return account, false, nil
}

// List returns the accounts matching filter ordered by id.
func (r *AccountRepository) List(ctx context.Context, filter types.AccountFilter) ([]types.Account, error) {
	var (
		conditions []string
		args       []any
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		conditions = append(conditions, fmt.Sprintf("(lower(email) LIKE $%d OR lower(name) LIKE $%d)", len(args), len(args)))
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if department := types.NormalizeDepartment(filter.Department); department != "" {
		args = append(args, department)
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}

	query := `SELECT ` + accountColumns + ` FROM users`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []types.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
