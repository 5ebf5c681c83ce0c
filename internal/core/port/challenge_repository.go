package port

import (
	"context"
	"time"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
)

// ChallengeRepository persists single-use two-factor login codes.
type ChallengeRepository interface {
	Create(ctx context.Context, challenge domain.TwoFactorChallenge) error
	// Consume atomically marks the most recent matching unused, unexpired
	// challenge as used at the supplied moment. Returns ErrNotFound when no
	// challenge qualifies, so a code can never be accepted twice.
	Consume(ctx context.Context, principalID, code string, at time.Time) (*domain.TwoFactorChallenge, error)
	// InvalidateOutstanding marks all unused challenges for the principal as
	// used, preventing earlier codes from remaining redeemable.
	InvalidateOutstanding(ctx context.Context, principalID string, at time.Time) (int64, error)
}
