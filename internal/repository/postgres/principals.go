package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
	"github.com/aryanndesai/FreshFarmMarket/internal/repository"
)

const principalColumns = `id, email, full_name, phone, photo_ref, password_hash, password_algo,
failed_login_attempts, locked, locked_until, password_changed_at, require_password_change,
two_factor_enabled, created_at, last_login`

// failedAttemptSQL bumps the counter and applies the lock in one statement so
// concurrent failures cannot interleave between read and write.
const failedAttemptSQL = `
UPDATE identity.principals
SET failed_login_attempts = failed_login_attempts + 1,
    locked = (failed_login_attempts + 1 >= $2),
    locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END
WHERE id = $1
RETURNING failed_login_attempts, locked, locked_until`

// PrincipalRepository implements port.PrincipalRepository using PostgreSQL.
type PrincipalRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPrincipalRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewPrincipalRepository(exec pgExecutor) *PrincipalRepository {
	return &PrincipalRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new principal row.
func (r *PrincipalRepository) Create(ctx context.Context, principal domain.Principal) error {
	stmt, args, err := r.builder.Insert("identity.principals").
		Columns(
			"id",
			"email",
			"full_name",
			"phone",
			"photo_ref",
			"password_hash",
			"password_algo",
			"failed_login_attempts",
			"locked",
			"locked_until",
			"password_changed_at",
			"require_password_change",
			"two_factor_enabled",
			"created_at",
			"last_login",
		).
		Values(
			principal.ID,
			principal.Email,
			principal.FullName,
			optionalString(principal.Phone),
			optionalString(principal.PhotoRef),
			principal.PasswordHash,
			principal.PasswordAlgo,
			principal.FailedLoginAttempts,
			principal.Locked,
			optionalTime(principal.LockedUntil),
			principal.PasswordChangedAt,
			principal.RequirePasswordChange,
			principal.TwoFactorEnabled,
			principal.CreatedAt,
			optionalTime(principal.LastLogin),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert principal sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert principal: %w", mapWriteError(err))
	}

	return nil
}

// GetByID retrieves a principal by identifier.
func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	stmt := fmt.Sprintf("SELECT %s FROM identity.principals WHERE id = $1", principalColumns)
	return r.scanPrincipal(r.exec.QueryRow(ctx, stmt, id))
}

// GetByEmail retrieves a principal by case-insensitive email match.
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	stmt := fmt.Sprintf("SELECT %s FROM identity.principals WHERE lower(email) = lower($1)", principalColumns)
	return r.scanPrincipal(r.exec.QueryRow(ctx, stmt, email))
}

// RecordFailedAttempt atomically increments the failed-login counter and
// applies the lockout once the counter reaches threshold.
func (r *PrincipalRepository) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockedUntil time.Time) (port.FailedAttemptResult, error) {
	var (
		attempts int
		locked   bool
		until    *time.Time
	)

	row := r.exec.QueryRow(ctx, failedAttemptSQL, id, threshold, lockedUntil)
	if err := row.Scan(&attempts, &locked, &until); err != nil {
		if err == pgx.ErrNoRows {
			return port.FailedAttemptResult{}, repository.ErrNotFound
		}
		return port.FailedAttemptResult{}, fmt.Errorf("record failed attempt: %w", err)
	}

	return port.FailedAttemptResult{
		Attempts:    attempts,
		Locked:      locked,
		LockedUntil: until,
	}, nil
}

// ResetFailedAttempts zeroes the failed-login counter.
func (r *PrincipalRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	return r.update(ctx, id, squirrel.Eq{"failed_login_attempts": 0})
}

// Unlock clears the lock state and failed counter.
func (r *PrincipalRepository) Unlock(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{
		"locked":                false,
		"locked_until":          nil,
		"failed_login_attempts": 0,
	})
}

// UpdatePassword replaces the stored credential.
func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id string, passwordHash, passwordAlgo string, changedAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"password_hash":       passwordHash,
		"password_algo":       passwordAlgo,
		"password_changed_at": changedAt,
	})
}

// UpdatePasswordAndUnlock replaces the credential and clears any lockout in
// the same statement.
func (r *PrincipalRepository) UpdatePasswordAndUnlock(ctx context.Context, id string, passwordHash, passwordAlgo string, changedAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"password_hash":         passwordHash,
		"password_algo":         passwordAlgo,
		"password_changed_at":   changedAt,
		"locked":                false,
		"locked_until":          nil,
		"failed_login_attempts": 0,
	})
}

// SetRequirePasswordChange flips the forced-change flag.
func (r *PrincipalRepository) SetRequirePasswordChange(ctx context.Context, id string, required bool) error {
	return r.update(ctx, id, squirrel.Eq{"require_password_change": required})
}

// RecordLogin stamps the last successful login.
func (r *PrincipalRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, squirrel.Eq{"last_login": at})
}

// ListPasswordHistory returns the most recent archived hashes, newest first.
func (r *PrincipalRepository) ListPasswordHistory(ctx context.Context, principalID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	query := r.builder.
		Select("id", "principal_id", "password_hash", "set_at").
		From("identity.password_history").
		Where(squirrel.Eq{"principal_id": principalID}).
		OrderBy("set_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select password history: %w", err)
	}
	defer rows.Close()

	var entries []domain.PasswordHistoryEntry
	for rows.Next() {
		var entry domain.PasswordHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.PrincipalID, &entry.PasswordHash, &entry.SetAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return entries, nil
}

// AddPasswordHistory archives a retired hash.
func (r *PrincipalRepository) AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error {
	stmt, args, err := r.builder.Insert("identity.password_history").
		Columns("id", "principal_id", "password_hash", "set_at").
		Values(entry.ID, entry.PrincipalID, entry.PasswordHash, entry.SetAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}

	return nil
}

func (r *PrincipalRepository) update(ctx context.Context, id string, clauses map[string]any) error {
	stmt, args, err := r.builder.Update("identity.principals").
		SetMap(clauses).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update principal sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *PrincipalRepository) scanPrincipal(row pgx.Row) (*domain.Principal, error) {
	var (
		principal   domain.Principal
		phone       sql.NullString
		photoRef    sql.NullString
		lockedUntil *time.Time
		lastLogin   *time.Time
	)

	if err := row.Scan(
		&principal.ID,
		&principal.Email,
		&principal.FullName,
		&phone,
		&photoRef,
		&principal.PasswordHash,
		&principal.PasswordAlgo,
		&principal.FailedLoginAttempts,
		&principal.Locked,
		&lockedUntil,
		&principal.PasswordChangedAt,
		&principal.RequirePasswordChange,
		&principal.TwoFactorEnabled,
		&principal.CreatedAt,
		&lastLogin,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}

	if phone.Valid {
		value := phone.String
		principal.Phone = &value
	}
	if photoRef.Valid {
		value := photoRef.String
		principal.PhotoRef = &value
	}
	principal.LockedUntil = lockedUntil
	principal.LastLogin = lastLogin

	return &principal, nil
}

var _ port.PrincipalRepository = (*PrincipalRepository)(nil)
