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

// consumeResetSQL burns a reset grant in one conditional update: only an
// unused, unexpired grant matches, so a token redeems at most once.
const consumeResetSQL = `
UPDATE identity.password_reset_grants
SET used_at = $2
WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
RETURNING id, principal_id, token_hash, ip, user_agent, created_at, expires_at, used_at`

// ResetRepository implements port.ResetRepository using PostgreSQL.
type ResetRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewResetRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewResetRepository(exec pgExecutor) *ResetRepository {
	return &ResetRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new reset grant row.
func (r *ResetRepository) Create(ctx context.Context, grant domain.PasswordResetGrant) error {
	stmt, args, err := r.builder.Insert("identity.password_reset_grants").
		Columns("id", "principal_id", "token_hash", "ip", "user_agent", "created_at", "expires_at", "used_at").
		Values(
			grant.ID,
			grant.PrincipalID,
			grant.TokenHash,
			optionalString(grant.IP),
			optionalString(grant.UserAgent),
			grant.CreatedAt,
			grant.ExpiresAt,
			optionalTime(grant.UsedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert reset grant sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert reset grant: %w", err)
	}

	return nil
}

// GetByTokenHash fetches the grant for the token hash without consuming it.
func (r *ResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetGrant, error) {
	const stmt = `SELECT id, principal_id, token_hash, ip, user_agent, created_at, expires_at, used_at
FROM identity.password_reset_grants WHERE token_hash = $1`
	return r.scanGrant(r.exec.QueryRow(ctx, stmt, tokenHash))
}

// Consume atomically marks the grant with the supplied token hash as used.
// Returns ErrNotFound when the grant is unknown, used, or expired.
func (r *ResetRepository) Consume(ctx context.Context, tokenHash string, at time.Time) (*domain.PasswordResetGrant, error) {
	return r.scanGrant(r.exec.QueryRow(ctx, consumeResetSQL, tokenHash, at))
}

// InvalidateOutstanding marks every unused grant for the principal as used.
func (r *ResetRepository) InvalidateOutstanding(ctx context.Context, principalID string, at time.Time) (int64, error) {
	stmt, args, err := r.builder.Update("identity.password_reset_grants").
		Set("used_at", at).
		Where(squirrel.Eq{"principal_id": principalID}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate reset grants sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate reset grants: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *ResetRepository) scanGrant(row pgx.Row) (*domain.PasswordResetGrant, error) {
	var (
		grant     domain.PasswordResetGrant
		ip        sql.NullString
		userAgent sql.NullString
	)

	if err := row.Scan(
		&grant.ID,
		&grant.PrincipalID,
		&grant.TokenHash,
		&ip,
		&userAgent,
		&grant.CreatedAt,
		&grant.ExpiresAt,
		&grant.UsedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan reset grant: %w", err)
	}

	if ip.Valid {
		value := ip.String
		grant.IP = &value
	}
	if userAgent.Valid {
		value := userAgent.String
		grant.UserAgent = &value
	}

	return &grant, nil
}

var _ port.ResetRepository = (*ResetRepository)(nil)
