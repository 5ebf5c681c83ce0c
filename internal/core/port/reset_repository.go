package port

import (
	"context"
	"time"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
)

// ResetRepository persists single-use password reset grants.
type ResetRepository interface {
	Create(ctx context.Context, grant domain.PasswordResetGrant) error
	// GetByTokenHash returns the grant for the token hash without consuming
	// it. Returns ErrNotFound when no grant matches.
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetGrant, error)
	// Consume atomically marks the grant with the supplied token hash as used
	// at the supplied moment, provided it is unused and unexpired. Returns
	// ErrNotFound otherwise, so a token can never be redeemed twice.
	Consume(ctx context.Context, tokenHash string, at time.Time) (*domain.PasswordResetGrant, error)
	// InvalidateOutstanding marks all unused grants for the principal as used.
	InvalidateOutstanding(ctx context.Context, principalID string, at time.Time) (int64, error)
}
