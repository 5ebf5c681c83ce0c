package port

import (
	"context"
	"time"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
)

// FailedAttemptResult reports the state of the failed-login counter after an
// atomic increment, including whether the increment tripped the lockout.
type FailedAttemptResult struct {
	Attempts    int
	Locked      bool
	LockedUntil *time.Time
}

// PrincipalRepository exposes persistence behavior for principals and their
// password history. Counter and lock mutations must be atomic against the
// backing store so concurrent failed attempts never under-count.
type PrincipalRepository interface {
	Create(ctx context.Context, principal domain.Principal) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	// GetByEmail resolves a principal by case-insensitive email match.
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)

	// RecordFailedAttempt increments the failed-login counter in a single
	// atomic statement and applies the lockout when the counter reaches
	// threshold, setting locked_until to lockedUntil.
	RecordFailedAttempt(ctx context.Context, id string, threshold int, lockedUntil time.Time) (FailedAttemptResult, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	// Unlock clears the lock state and failed counter (auto-unlock path).
	Unlock(ctx context.Context, id string) error

	UpdatePassword(ctx context.Context, id string, passwordHash, passwordAlgo string, changedAt time.Time) error
	// UpdatePasswordAndUnlock additionally clears lockout state and the
	// failed counter; used by the password-reset recovery path.
	UpdatePasswordAndUnlock(ctx context.Context, id string, passwordHash, passwordAlgo string, changedAt time.Time) error
	SetRequirePasswordChange(ctx context.Context, id string, required bool) error
	RecordLogin(ctx context.Context, id string, at time.Time) error

	ListPasswordHistory(ctx context.Context, principalID string, limit int) ([]domain.PasswordHistoryEntry, error)
	AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error
}
