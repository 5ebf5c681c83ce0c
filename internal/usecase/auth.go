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
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/config"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/security"
	"github.com/aryanndesai/FreshFarmMarket/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthUnavailable indicates the service is missing a collaborator.
	ErrAuthUnavailable = errors.New("authentication service unavailable")
)

// AccountLockedError reports a rejected login on a locked account along with
// how long the lock still has to run.
type AccountLockedError struct {
	Remaining time.Duration
}

// Error implements error for AccountLockedError.
func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %s", e.Remaining.Round(time.Second))
}

// LoginOutcome enumerates the ways a correct-credential login can conclude.
type LoginOutcome string

const (
	// OutcomeAuthenticated means a session was established.
	OutcomeAuthenticated LoginOutcome = "authenticated"
	// OutcomeTwoFactorRequired means credentials passed and a code was sent;
	// no session exists until the code is verified.
	OutcomeTwoFactorRequired LoginOutcome = "two_factor_required"
	// OutcomePasswordChangeRequired means credentials passed but the password
	// must be replaced before a session is established.
	OutcomePasswordChangeRequired LoginOutcome = "password_change_required"
)

// LoginInput carries a credential presentation.
type LoginInput struct {
	Email     string
	Password  string
	IP        *string
	UserAgent *string
}

// LoginResult reports the outcome of a login attempt. Session artifacts are
// present only when Outcome is OutcomeAuthenticated.
type LoginResult struct {
	Outcome   LoginOutcome
	Principal domain.Principal
	Session   *SessionArtifacts
}

// AuthService coordinates the login decision: credential verification,
// failed-attempt counting, lockout, auto-unlock, password aging and
// two-factor gating.
type AuthService struct {
	settings   config.SecuritySettings
	principals port.PrincipalRepository
	sessions   *SessionService
	twoFactor  *TwoFactorService
	hasher     *security.PasswordHasher
	audit      port.AuditSink
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	securitySettings config.SecuritySettings,
	principals port.PrincipalRepository,
	sessions *SessionService,
	twoFactor *TwoFactorService,
	hasher *security.PasswordHasher,
	audit port.AuditSink,
	events port.EventPublisher,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		settings:   securitySettings,
		principals: principals,
		sessions:   sessions,
		twoFactor:  twoFactor,
		hasher:     hasher,
		audit:      audit,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *AuthService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
	if s.sessions != nil {
		s.sessions.WithClock(now)
	}
	if s.twoFactor != nil {
		s.twoFactor.WithClock(now)
	}
}

// Login evaluates the credential presentation and either establishes a
// session, demands a second factor, demands a password change, or rejects.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if s.principals == nil || s.sessions == nil || s.hasher == nil {
		return nil, ErrAuthUnavailable
	}

	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	now := s.now().UTC()

	if principal.Locked {
		if !principal.LockExpired(now) {
			remaining := time.Duration(0)
			if principal.LockedUntil != nil {
				remaining = principal.LockedUntil.Sub(now)
			}
			s.recordAudit(ctx, domain.AuditEntry{
				ID:          uuid.NewString(),
				PrincipalID: &principal.ID,
				Action:      domain.AuditLoginFailed,
				Details:     "attempt while locked",
				IP:          input.IP,
				Success:     false,
				At:          now,
			})
			return nil, &AccountLockedError{Remaining: remaining}
		}

		if err := s.principals.Unlock(ctx, principal.ID); err != nil {
			return nil, fmt.Errorf("unlock principal: %w", err)
		}
		principal.Locked = false
		principal.LockedUntil = nil
		principal.FailedLoginAttempts = 0

		s.recordAudit(ctx, domain.AuditEntry{
			ID:          uuid.NewString(),
			PrincipalID: &principal.ID,
			Action:      domain.AuditAccountAutoUnlocked,
			Details:     "lockout elapsed",
			IP:          input.IP,
			Success:     true,
			At:          now,
		})
	}

	ok, err := s.hasher.Verify(input.Password, principal.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.handleFailedAttempt(ctx, principal, input.IP, now)
	}

	if principal.FailedLoginAttempts > 0 {
		if err := s.principals.ResetFailedAttempts(ctx, principal.ID); err != nil {
			return nil, fmt.Errorf("reset failed attempts: %w", err)
		}
		principal.FailedLoginAttempts = 0
	}

	if principal.RequirePasswordChange || s.passwordExpired(*principal, now) {
		// Persist the flag on expiry so the forced-change path can tell a
		// demanded change apart from an ordinary one.
		if !principal.RequirePasswordChange {
			if err := s.principals.SetRequirePasswordChange(ctx, principal.ID, true); err != nil {
				return nil, fmt.Errorf("flag password change: %w", err)
			}
			principal.RequirePasswordChange = true
		}
		return &LoginResult{
			Outcome:   OutcomePasswordChangeRequired,
			Principal: sanitize(*principal),
		}, nil
	}

	if principal.TwoFactorEnabled {
		if s.twoFactor == nil {
			return nil, ErrAuthUnavailable
		}
		if err := s.twoFactor.Issue(ctx, *principal, input.IP); err != nil {
			return nil, fmt.Errorf("issue two-factor challenge: %w", err)
		}
		return &LoginResult{
			Outcome:   OutcomeTwoFactorRequired,
			Principal: sanitize(*principal),
		}, nil
	}

	return s.establishSession(ctx, *principal, input.IP, input.UserAgent)
}

// VerifyTwoFactor consumes a login code and completes the pending login with
// a fresh session.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, principalID, code string, ip, userAgent *string) (*LoginResult, error) {
	if s.principals == nil || s.sessions == nil || s.twoFactor == nil {
		return nil, ErrAuthUnavailable
	}

	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTwoFactorCodeInvalid
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	if principal.Locked && !principal.LockExpired(s.now().UTC()) {
		remaining := time.Duration(0)
		if principal.LockedUntil != nil {
			remaining = principal.LockedUntil.Sub(s.now().UTC())
		}
		return nil, &AccountLockedError{Remaining: remaining}
	}

	if err := s.twoFactor.Verify(ctx, principal.ID, code, ip); err != nil {
		return nil, err
	}

	return s.establishSession(ctx, *principal, ip, userAgent)
}

// ResendTwoFactorCode issues a fresh login code for a principal whose login
// is pending second-factor verification. Prior codes stay valid until their
// own expiry unless the service is configured to retire them.
func (s *AuthService) ResendTwoFactorCode(ctx context.Context, principalID string, ip *string) error {
	if s.principals == nil || s.twoFactor == nil {
		return ErrAuthUnavailable
	}

	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTwoFactorCodeInvalid
		}
		return fmt.Errorf("lookup principal: %w", err)
	}

	if !principal.TwoFactorEnabled {
		return ErrTwoFactorCodeInvalid
	}

	now := s.now().UTC()
	if principal.Locked && !principal.LockExpired(now) {
		remaining := time.Duration(0)
		if principal.LockedUntil != nil {
			remaining = principal.LockedUntil.Sub(now)
		}
		return &AccountLockedError{Remaining: remaining}
	}

	if err := s.twoFactor.Issue(ctx, *principal, ip); err != nil {
		return fmt.Errorf("issue two-factor challenge: %w", err)
	}

	return nil
}

// EstablishSession finalizes a login whose credential checks already passed,
// recording the login and minting the session. Used by the forced
// password-change flow once the new password is in place.
func (s *AuthService) EstablishSession(ctx context.Context, principalID string, ip, userAgent *string) (*LoginResult, error) {
	if s.principals == nil || s.sessions == nil {
		return nil, ErrAuthUnavailable
	}

	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	return s.establishSession(ctx, *principal, ip, userAgent)
}

// Logout ends the session matching the presented token.
func (s *AuthService) Logout(ctx context.Context, token string, ip *string) error {
	if s.sessions == nil {
		return ErrAuthUnavailable
	}
	return s.sessions.Terminate(ctx, token, EndReasonLogout, ip)
}

func (s *AuthService) establishSession(ctx context.Context, principal domain.Principal, ip, userAgent *string) (*LoginResult, error) {
	now := s.now().UTC()

	artifacts, err := s.sessions.Start(ctx, principal.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	if err := s.principals.RecordLogin(ctx, principal.ID, now); err != nil {
		s.logger.Warn("record login", zap.String("principal_id", principal.ID), zap.Error(err))
	}
	principal.LastLogin = &now

	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &principal.ID,
		Action:      domain.AuditLoginSuccessful,
		Details:     "credentials accepted",
		IP:          ip,
		Success:     true,
		At:          now,
	})

	return &LoginResult{
		Outcome:   OutcomeAuthenticated,
		Principal: sanitize(principal),
		Session:   artifacts,
	}, nil
}

func (s *AuthService) handleFailedAttempt(ctx context.Context, principal *domain.Principal, ip *string, now time.Time) error {
	lockedUntil := now.Add(s.settings.LockoutDuration)
	result, err := s.principals.RecordFailedAttempt(ctx, principal.ID, s.settings.LockoutThreshold, lockedUntil)
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}

	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &principal.ID,
		Action:      domain.AuditLoginFailed,
		Details:     fmt.Sprintf("attempt %d of %d", result.Attempts, s.settings.LockoutThreshold),
		IP:          ip,
		Success:     false,
		At:          now,
	})

	if !result.Locked {
		return ErrInvalidCredentials
	}

	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &principal.ID,
		Action:      domain.AuditAccountLocked,
		Details:     fmt.Sprintf("locked after %d failed attempts", result.Attempts),
		IP:          ip,
		Success:     true,
		At:          now,
	})

	if s.events != nil {
		until := lockedUntil
		if result.LockedUntil != nil {
			until = *result.LockedUntil
		}
		event := domain.AccountLockedEvent{
			EventID:        uuid.NewString(),
			PrincipalID:    principal.ID,
			FailedAttempts: result.Attempts,
			LockedAt:       now,
			LockedUntil:    until,
		}
		if err := s.events.PublishAccountLocked(ctx, event); err != nil {
			s.logger.Warn("publish account locked event", zap.Error(err))
		}
	}

	return &AccountLockedError{Remaining: s.settings.LockoutDuration}
}

func (s *AuthService) passwordExpired(principal domain.Principal, now time.Time) bool {
	if s.settings.MaxPasswordAge <= 0 {
		return false
	}
	return principal.PasswordAge(now) > s.settings.MaxPasswordAge
}

func (s *AuthService) recordAudit(ctx context.Context, entry domain.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}

func sanitize(principal domain.Principal) domain.Principal {
	principal.PasswordHash = ""
	return principal
}
