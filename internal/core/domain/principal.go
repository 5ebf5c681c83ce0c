package domain

import "time"

// Principal mirrors the persisted representation in the principals table.
type Principal struct {
	ID                    string
	Email                 string
	FullName              string
	Phone                 *string
	PhotoRef              *string
	PasswordHash          string
	PasswordAlgo          string
	FailedLoginAttempts   int
	Locked                bool
	LockedUntil           *time.Time
	PasswordChangedAt     time.Time
	RequirePasswordChange bool
	TwoFactorEnabled      bool
	CreatedAt             time.Time
	LastLogin             *time.Time
}

// LockExpired reports whether a lockout has elapsed at the supplied moment.
// A locked principal always carries a lock expiry.
func (p Principal) LockExpired(at time.Time) bool {
	if !p.Locked || p.LockedUntil == nil {
		return false
	}
	return !at.Before(*p.LockedUntil)
}

// PasswordAge returns the elapsed time since the password was last changed.
func (p Principal) PasswordAge(at time.Time) time.Duration {
	return at.Sub(p.PasswordChangedAt)
}

// PasswordHistoryEntry tracks historical password hashes for reuse prevention.
type PasswordHistoryEntry struct {
	ID           string
	PrincipalID  string
	PasswordHash string
	SetAt        time.Time
}

// TwoFactorChallenge represents a short-lived one-time login code.
type TwoFactorChallenge struct {
	ID          string
	PrincipalID string
	Code        string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

// IsValid reports whether the challenge is unused and unexpired at the supplied moment.
func (c TwoFactorChallenge) IsValid(at time.Time) bool {
	if c.UsedAt != nil {
		return false
	}
	return c.ExpiresAt.After(at)
}

// PasswordResetGrant represents a single-use password reset capability.
// The raw token is never stored; only its hash is persisted.
type PasswordResetGrant struct {
	ID          string
	PrincipalID string
	TokenHash   string
	IP          *string
	UserAgent   *string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

// IsValid reports whether the grant is unused and unexpired at the supplied moment.
func (g PasswordResetGrant) IsValid(at time.Time) bool {
	if g.UsedAt != nil {
		return false
	}
	return g.ExpiresAt.After(at)
}
