package domain

import "time"

// PrincipalRegisteredEvent represents the payload for identity.principal.registered messages.
type PrincipalRegisteredEvent struct {
	EventID      string
	PrincipalID  string
	Email        string
	FullName     string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// AccountLockedEvent represents the payload for identity.account.locked messages.
type AccountLockedEvent struct {
	EventID        string
	PrincipalID    string
	FailedAttempts int
	LockedAt       time.Time
	LockedUntil    time.Time
	Metadata       map[string]any
}

// PasswordChangedEvent represents the payload for identity.password.changed messages.
type PasswordChangedEvent struct {
	EventID       string
	PrincipalID   string
	ChangedAt     time.Time
	Source        string
	SessionsEnded int
	Metadata      map[string]any
}

// PasswordResetRequestedEvent represents the payload for identity.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	PrincipalID       string
	RequestID         string
	RequestedAt       time.Time
	MaskedDestination string
	ExpiresAt         time.Time
	IPAddress         *string
	Metadata          map[string]any
}

// SessionSupersededEvent represents the payload for identity.session.superseded messages.
type SessionSupersededEvent struct {
	EventID       string
	PrincipalID   string
	NewSessionID  string
	SessionsEnded int
	SupersededAt  time.Time
	IPAddress     *string
	Metadata      map[string]any
}
