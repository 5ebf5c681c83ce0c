package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
	"github.com/aryanndesai/FreshFarmMarket/internal/repository"
)

// consumeChallengeSQL marks the most recent matching live challenge as used.
// The conditional update is the single point of consumption, so concurrent
// submissions of the same code race for one row and only one wins.
const consumeChallengeSQL = `
UPDATE identity.two_factor_challenges
SET used_at = $3
WHERE id = (
    SELECT id FROM identity.two_factor_challenges
    WHERE principal_id = $1 AND code = $2 AND used_at IS NULL AND expires_at > $3
    ORDER BY created_at DESC
    LIMIT 1
)
RETURNING id, principal_id, code, created_at, expires_at, used_at`

// ChallengeRepository implements port.ChallengeRepository using PostgreSQL.
type ChallengeRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewChallengeRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewChallengeRepository(exec pgExecutor) *ChallengeRepository {
	return &ChallengeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new challenge row.
func (r *ChallengeRepository) Create(ctx context.Context, challenge domain.TwoFactorChallenge) error {
	stmt, args, err := r.builder.Insert("identity.two_factor_challenges").
		Columns("id", "principal_id", "code", "created_at", "expires_at", "used_at").
		Values(
			challenge.ID,
			challenge.PrincipalID,
			challenge.Code,
			challenge.CreatedAt,
			challenge.ExpiresAt,
			optionalTime(challenge.UsedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert challenge sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}

	return nil
}

// Consume atomically marks the most recent matching unused, unexpired
// challenge as used. Returns ErrNotFound when no challenge qualifies.
func (r *ChallengeRepository) Consume(ctx context.Context, principalID, code string, at time.Time) (*domain.TwoFactorChallenge, error) {
	var challenge domain.TwoFactorChallenge

	row := r.exec.QueryRow(ctx, consumeChallengeSQL, principalID, code, at)
	if err := row.Scan(
		&challenge.ID,
		&challenge.PrincipalID,
		&challenge.Code,
		&challenge.CreatedAt,
		&challenge.ExpiresAt,
		&challenge.UsedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("consume challenge: %w", err)
	}

	return &challenge, nil
}

// InvalidateOutstanding marks every unused challenge for the principal as used.
func (r *ChallengeRepository) InvalidateOutstanding(ctx context.Context, principalID string, at time.Time) (int64, error) {
	stmt, args, err := r.builder.Update("identity.two_factor_challenges").
		Set("used_at", at).
		Where(squirrel.Eq{"principal_id": principalID}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate challenges sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate challenges: %w", err)
	}

	return tag.RowsAffected(), nil
}

var _ port.ChallengeRepository = (*ChallengeRepository)(nil)
