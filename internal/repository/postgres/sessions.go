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

const sessionColumns = `id, principal_id, token_hash, ip, user_agent, created_at,
last_activity_at, active, ended_at, end_reason`

// Concurrent logins for the same principal must serialize: under READ
// COMMITTED two overlapping supersede+insert statements cannot see each
// other's uncommitted rows, so the principal row is locked for the duration
// of the transaction instead.
const lockPrincipalSQL = `SELECT id FROM identity.principals WHERE id = $1 FOR UPDATE`

const supersedeSessionsSQL = `
UPDATE identity.sessions
SET active = FALSE, ended_at = $2, end_reason = $3
WHERE principal_id = $1 AND active`

const insertSessionSQL = `
INSERT INTO identity.sessions
    (id, principal_id, token_hash, ip, user_agent, created_at, last_activity_at, active, ended_at, end_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by a pool that can
// open transactions.
func NewSessionRepository(pool pgPool) *SessionRepository {
	return &SessionRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create persists the session and supersedes any other active sessions the
// principal holds, returning how many were ended. The principal row is
// locked so two concurrent logins can never both keep an active session.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session, endReason string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin session transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var principalID string
	if err := tx.QueryRow(ctx, lockPrincipalSQL, session.PrincipalID).Scan(&principalID); err != nil {
		if err == pgx.ErrNoRows {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("lock principal: %w", err)
	}

	tag, err := tx.Exec(ctx, supersedeSessionsSQL, session.PrincipalID, session.CreatedAt, endReason)
	if err != nil {
		return 0, fmt.Errorf("supersede sessions: %w", err)
	}

	if _, err := tx.Exec(ctx, insertSessionSQL,
		session.ID,
		session.PrincipalID,
		session.TokenHash,
		optionalString(session.IP),
		optionalString(session.UserAgent),
		session.CreatedAt,
		session.LastActivityAt,
		session.Active,
		optionalTime(session.EndedAt),
		optionalString(session.EndReason),
	); err != nil {
		return 0, fmt.Errorf("insert session: %w", mapWriteError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit session transaction: %w", err)
	}

	return tag.RowsAffected(), nil
}

// GetByTokenHash fetches a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	stmt := fmt.Sprintf("SELECT %s FROM identity.sessions WHERE token_hash = $1", sessionColumns)
	return r.scanSession(r.pool.QueryRow(ctx, stmt, tokenHash))
}

// Touch stamps last activity on the session.
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("identity.sessions").
		Set("last_activity_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// EndByTokenHash ends the active session matching the token hash.
func (r *SessionRepository) EndByTokenHash(ctx context.Context, tokenHash string, at time.Time, reason string) error {
	stmt, args, err := r.builder.Update("identity.sessions").
		Set("active", false).
		Set("ended_at", at).
		Set("end_reason", reason).
		Where(squirrel.Eq{"token_hash": tokenHash}).
		Where("active").
		ToSql()
	if err != nil {
		return fmt.Errorf("build end session sql: %w", err)
	}

	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// EndAllForPrincipal ends every active session the principal holds.
func (r *SessionRepository) EndAllForPrincipal(ctx context.Context, principalID string, at time.Time, reason string) (int64, error) {
	stmt, args, err := r.builder.Update("identity.sessions").
		Set("active", false).
		Set("ended_at", at).
		Set("end_reason", reason).
		Where(squirrel.Eq{"principal_id": principalID}).
		Where("active").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build end sessions sql: %w", err)
	}

	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("end sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ListActiveByPrincipal returns the principal's active sessions, newest first.
func (r *SessionRepository) ListActiveByPrincipal(ctx context.Context, principalID string) ([]domain.Session, error) {
	stmt := fmt.Sprintf(
		"SELECT %s FROM identity.sessions WHERE principal_id = $1 AND active ORDER BY created_at DESC",
		sessionColumns,
	)

	rows, err := r.pool.Query(ctx, stmt, principalID)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := r.scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) scanSession(row pgx.Row) (*domain.Session, error) {
	session, err := r.scanSessionRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) scanSessionRow(row pgx.Row) (*domain.Session, error) {
	var (
		session   domain.Session
		ip        sql.NullString
		userAgent sql.NullString
		endReason sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.PrincipalID,
		&session.TokenHash,
		&ip,
		&userAgent,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.Active,
		&session.EndedAt,
		&endReason,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if ip.Valid {
		value := ip.String
		session.IP = &value
	}
	if userAgent.Valid {
		value := userAgent.String
		session.UserAgent = &value
	}
	if endReason.Valid {
		value := endReason.String
		session.EndReason = &value
	}

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
