package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/security"
	"github.com/aryanndesai/FreshFarmMarket/internal/repository"
)

const (
	sessionTokenBytes = 32

	// End reasons recorded on terminated sessions.
	EndReasonSuperseded      = "Logged in from another device"
	EndReasonLogout          = "Logged out"
	EndReasonPasswordChanged = "Password changed"
	EndReasonPasswordReset   = "Password reset"
	EndReasonTerminated      = "Terminated by principal"
)

var (
	// ErrSessionInvalid indicates the presented session token does not match an active session.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionBindingRequired indicates binding enforcement is on and no binding token was presented.
	ErrSessionBindingRequired = errors.New("session binding token required")
)

// SessionArtifacts carries everything a freshly started session hands back to
// the client. Token is the only copy of the raw session token; the registry
// stores its hash.
type SessionArtifacts struct {
	Session      domain.Session
	Token        string
	BindingToken string
	Superseded   int64
}

// SessionService owns the session registry: starting sessions, enforcing the
// single-active-session rule, validating presented tokens and ending sessions.
type SessionService struct {
	sessions port.SessionRepository
	audit    port.AuditSink
	events   port.EventPublisher
	binder   *security.SessionBinder
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService. The binder is optional; when
// nil, binding tokens are neither issued nor required.
func NewSessionService(sessions port.SessionRepository, audit port.AuditSink, events port.EventPublisher, binder *security.SessionBinder, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions: sessions,
		audit:    audit,
		events:   events,
		binder:   binder,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *SessionService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Start mints a session for the principal, ending any session they already
// hold. The supersession is atomic with the insert, so two concurrent logins
// can never both keep an active session.
func (s *SessionService) Start(ctx context.Context, principalID string, ip, userAgent *string) (*SessionArtifacts, error) {
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	token, err := security.GenerateSecureToken(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := s.now().UTC()
	session := domain.Session{
		ID:             uuid.NewString(),
		PrincipalID:    principalID,
		TokenHash:      security.HashToken(token),
		IP:             ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		Active:         true,
	}

	superseded, err := s.sessions.Create(ctx, session, EndReasonSuperseded)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &session.PrincipalID,
		Action:      domain.AuditSessionCreated,
		Details:     fmt.Sprintf("session %s created", session.ID),
		IP:          ip,
		Success:     true,
		At:          now,
	})

	if superseded > 0 {
		s.recordAudit(ctx, domain.AuditEntry{
			ID:          uuid.NewString(),
			PrincipalID: &session.PrincipalID,
			Action:      domain.AuditConcurrentLoginDetected,
			Details:     fmt.Sprintf("%d previous session(s) ended", superseded),
			IP:          ip,
			Success:     true,
			At:          now,
		})

		if s.events != nil {
			event := domain.SessionSupersededEvent{
				EventID:       uuid.NewString(),
				PrincipalID:   session.PrincipalID,
				NewSessionID:  session.ID,
				SessionsEnded: int(superseded),
				SupersededAt:  now,
				IPAddress:     ip,
			}
			if err := s.events.PublishSessionSuperseded(ctx, event); err != nil {
				s.logger.Warn("publish session superseded event", zap.Error(err))
			}
		}
	}

	artifacts := &SessionArtifacts{
		Session:    session,
		Token:      token,
		Superseded: superseded,
	}

	if s.binder != nil {
		binding, err := s.binder.Issue(principalID, session.TokenHash)
		if err != nil {
			return nil, fmt.Errorf("issue binding token: %w", err)
		}
		artifacts.BindingToken = binding
	}

	return artifacts, nil
}

// Validate resolves the presented token to an active session and records the
// activity. When a binder is configured the binding token must match the
// session it was minted with.
func (s *SessionService) Validate(ctx context.Context, token, bindingToken string) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionInvalid
	}

	hash := security.HashToken(token)
	session, err := s.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if !session.Active {
		return nil, ErrSessionInvalid
	}

	if s.binder != nil {
		if bindingToken == "" {
			return nil, ErrSessionBindingRequired
		}
		if err := s.binder.Check(bindingToken, session.PrincipalID, session.TokenHash); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
		}
	}

	now := s.now().UTC()
	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		s.logger.Warn("touch session", zap.String("session_id", session.ID), zap.Error(err))
	}
	session.Touch(now)

	return session, nil
}

// Terminate ends the session matching the presented token.
func (s *SessionService) Terminate(ctx context.Context, token, reason string, ip *string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrSessionInvalid
	}
	if reason == "" {
		reason = EndReasonLogout
	}

	hash := security.HashToken(token)
	session, err := s.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionInvalid
		}
		return fmt.Errorf("lookup session: %w", err)
	}

	now := s.now().UTC()
	if err := s.sessions.EndByTokenHash(ctx, hash, now, reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionInvalid
		}
		return fmt.Errorf("end session: %w", err)
	}

	action := domain.AuditLogout
	if reason != EndReasonLogout {
		action = domain.AuditSessionTerminated
	}
	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &session.PrincipalID,
		Action:      action,
		Details:     reason,
		IP:          ip,
		Success:     true,
		At:          now,
	})

	return nil
}

// TerminateAll ends every active session the principal holds and returns how
// many were ended.
func (s *SessionService) TerminateAll(ctx context.Context, principalID, reason string, ip *string) (int64, error) {
	if principalID == "" {
		return 0, fmt.Errorf("principal id is required")
	}
	if reason == "" {
		reason = EndReasonTerminated
	}

	now := s.now().UTC()
	ended, err := s.sessions.EndAllForPrincipal(ctx, principalID, now, reason)
	if err != nil {
		return 0, fmt.Errorf("end sessions: %w", err)
	}

	if ended > 0 {
		s.recordAudit(ctx, domain.AuditEntry{
			ID:          uuid.NewString(),
			PrincipalID: &principalID,
			Action:      domain.AuditAllSessionsTerminated,
			Details:     fmt.Sprintf("%d session(s) ended: %s", ended, reason),
			IP:          ip,
			Success:     true,
			At:          now,
		})
	}

	return ended, nil
}

// ListActive returns the principal's active sessions.
func (s *SessionService) ListActive(ctx context.Context, principalID string) ([]domain.Session, error) {
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	sessions, err := s.sessions.ListActiveByPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionService) recordAudit(ctx context.Context, entry domain.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}
