package domain

import "time"

// Session represents one persisted login. The registry guarantees at most one
// active session per principal; the raw token is held by the client and only
// its hash is stored.
type Session struct {
	ID             string
	PrincipalID    string
	TokenHash      string
	IP             *string
	UserAgent      *string
	CreatedAt      time.Time
	LastActivityAt time.Time
	Active         bool
	EndedAt        *time.Time
	EndReason      *string
}

// Touch updates last-activity metadata when the session is used.
func (s *Session) Touch(at time.Time) {
	s.LastActivityAt = at
}

// End marks the session inactive with the supplied reason.
// Returns true when the session changed state.
func (s *Session) End(at time.Time, reason string) bool {
	if !s.Active {
		return false
	}
	s.Active = false
	s.EndedAt = &at
	s.EndReason = &reason
	return true
}
