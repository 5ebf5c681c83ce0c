package port

import (
	"context"
	"time"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
)

// SessionRepository persists login sessions. The store enforces the
// single-active-session rule: creating a session and ending the principal's
// prior active sessions happen in one transaction.
type SessionRepository interface {
	// Create inserts the session and ends any other active sessions the
	// principal holds, returning how many were superseded.
	Create(ctx context.Context, session domain.Session, endReason string) (int64, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// EndByTokenHash ends the active session matching the token hash.
	// Returns ErrNotFound when no active session matches.
	EndByTokenHash(ctx context.Context, tokenHash string, at time.Time, reason string) error
	// EndAllForPrincipal ends every active session the principal holds and
	// returns how many were ended.
	EndAllForPrincipal(ctx context.Context, principalID string, at time.Time, reason string) (int64, error)
	ListActiveByPrincipal(ctx context.Context, principalID string) ([]domain.Session, error)
}
