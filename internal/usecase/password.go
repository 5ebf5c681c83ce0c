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

const (
	passwordChangeSource = "change"
	passwordResetSource  = "reset"
)

var (
	// ErrPasswordTooYoung indicates the current password is below the minimum age.
	ErrPasswordTooYoung = errors.New("password changed too recently")
	// ErrPasswordReused indicates the candidate matches a recent password.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrPasswordServiceUnavailable indicates the service is missing a collaborator.
	ErrPasswordServiceUnavailable = errors.New("password service unavailable")
)

// PasswordChangeInput captures an authenticated password change request.
type PasswordChangeInput struct {
	PrincipalID     string
	CurrentPassword string
	NewPassword     string
	IP              *string
	UserAgent       *string
}

// ForcedChangeInput captures the credential-bearing change demanded when a
// password has expired or an administrator flagged it.
type ForcedChangeInput struct {
	Email           string
	CurrentPassword string
	NewPassword     string
	IP              *string
	UserAgent       *string
}

// PasswordChangeResult summarizes a completed password change.
type PasswordChangeResult struct {
	PrincipalID   string
	ChangedAt     time.Time
	SessionsEnded int64
}

// PasswordAgeInfo reports where a principal's password sits in its lifetime.
type PasswordAgeInfo struct {
	ChangedAt time.Time
	Age       time.Duration
	MaxAge    time.Duration
	Expired   bool
	Remaining time.Duration
}

// PasswordService enforces password lifecycle policy: minimum and maximum
// age, reuse history and strength, and the session fallout of a change.
type PasswordService struct {
	settings   config.SecuritySettings
	principals port.PrincipalRepository
	sessions   *SessionService
	hasher     *security.PasswordHasher
	validator  *security.PasswordValidator
	audit      port.AuditSink
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewPasswordService constructs a PasswordService.
func NewPasswordService(
	settings config.SecuritySettings,
	principals port.PrincipalRepository,
	sessions *SessionService,
	hasher *security.PasswordHasher,
	validator *security.PasswordValidator,
	audit port.AuditSink,
	events port.EventPublisher,
	logger *zap.Logger,
) *PasswordService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordService{
		settings:   settings,
		principals: principals,
		sessions:   sessions,
		hasher:     hasher,
		validator:  validator,
		audit:      audit,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *PasswordService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
	if s.sessions != nil {
		s.sessions.WithClock(now)
	}
}

// ChangePassword replaces the password for an authenticated principal.
// The minimum-age gate applies unless the account is flagged for a forced
// change. Every session the principal holds is ended afterwards.
func (s *PasswordService) ChangePassword(ctx context.Context, input PasswordChangeInput) (*PasswordChangeResult, error) {
	if s.principals == nil || s.hasher == nil {
		return nil, ErrPasswordServiceUnavailable
	}
	if input.PrincipalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	principal, err := s.principals.GetByID(ctx, input.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	return s.change(ctx, principal, input.CurrentPassword, input.NewPassword, !principal.RequirePasswordChange, input.IP)
}

// CompleteForcedChange handles the unauthenticated change demanded after the
// login outcome reported a required password change. Credentials are
// re-verified; the minimum-age gate is bypassed only when the account is
// actually flagged or the password has aged out, so the endpoint cannot be
// used to sidestep the throttle. A successful change clears the flag.
func (s *PasswordService) CompleteForcedChange(ctx context.Context, input ForcedChangeInput) (*PasswordChangeResult, error) {
	if s.principals == nil || s.hasher == nil {
		return nil, ErrPasswordServiceUnavailable
	}

	email := strings.TrimSpace(input.Email)
	if email == "" || input.CurrentPassword == "" {
		return nil, ErrInvalidCredentials
	}

	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
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

	expired := s.settings.MaxPasswordAge > 0 && principal.PasswordAge(s.now().UTC()) > s.settings.MaxPasswordAge
	enforceMinAge := !principal.RequirePasswordChange && !expired

	result, err := s.change(ctx, principal, input.CurrentPassword, input.NewPassword, enforceMinAge, input.IP)
	if err != nil {
		return nil, err
	}

	if principal.RequirePasswordChange {
		if err := s.principals.SetRequirePasswordChange(ctx, principal.ID, false); err != nil {
			return nil, fmt.Errorf("clear password change flag: %w", err)
		}
	}

	return result, nil
}

// AgeInfo reports the principal's password age against the configured maximum.
func (s *PasswordService) AgeInfo(ctx context.Context, principalID string) (*PasswordAgeInfo, error) {
	if s.principals == nil {
		return nil, ErrPasswordServiceUnavailable
	}

	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	now := s.now().UTC()
	age := principal.PasswordAge(now)
	info := &PasswordAgeInfo{
		ChangedAt: principal.PasswordChangedAt,
		Age:       age,
		MaxAge:    s.settings.MaxPasswordAge,
	}
	if s.settings.MaxPasswordAge > 0 {
		info.Expired = age > s.settings.MaxPasswordAge
		if !info.Expired {
			info.Remaining = s.settings.MaxPasswordAge - age
		}
	}
	return info, nil
}

func (s *PasswordService) change(ctx context.Context, principal *domain.Principal, currentPassword, newPassword string, enforceMinAge bool, ip *string) (*PasswordChangeResult, error) {
	now := s.now().UTC()

	ok, err := s.hasher.Verify(currentPassword, principal.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recordAudit(ctx, domain.AuditEntry{
			ID:          uuid.NewString(),
			PrincipalID: &principal.ID,
			Action:      domain.AuditPasswordChangeFailed,
			Details:     "current password rejected",
			IP:          ip,
			Success:     false,
			At:          now,
		})
		return nil, ErrInvalidCredentials
	}

	if enforceMinAge && s.settings.MinPasswordAge > 0 && principal.PasswordAge(now) < s.settings.MinPasswordAge {
		return nil, ErrPasswordTooYoung
	}

	if err := s.validateNewPassword(ctx, principal, currentPassword, newPassword); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if err := s.principals.AddPasswordHistory(ctx, domain.PasswordHistoryEntry{
		ID:           uuid.NewString(),
		PrincipalID:  principal.ID,
		PasswordHash: principal.PasswordHash,
		SetAt:        principal.PasswordChangedAt,
	}); err != nil {
		return nil, fmt.Errorf("append password history: %w", err)
	}

	if err := s.principals.UpdatePassword(ctx, principal.ID, hash, s.hasher.Algo(), now); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	return s.finishChange(ctx, principal.ID, now, passwordChangeSource, EndReasonPasswordChanged, ip)
}

// validateNewPassword applies the strength rules and the reuse check. Reuse
// is detected by re-deriving the candidate against each stored history hash,
// since salts make hash equality meaningless.
func (s *PasswordService) validateNewPassword(ctx context.Context, principal *domain.Principal, currentPassword, newPassword string) error {
	rules := []security.PasswordRule{
		security.MinLengthRule(s.settings.MinPasswordLength),
		security.RequireCharacterClassesRule(3),
		security.RequirePasswordStrengthRule(s.settings.MinPasswordScore, principal.Email, principal.FullName),
	}
	if currentPassword != "" {
		rules = append(rules, security.RequireDifferentFrom(currentPassword))
	}
	if err := security.NewPasswordValidator(rules...).Validate(newPassword); err != nil {
		return err
	}

	ok, err := s.hasher.Verify(newPassword, principal.PasswordHash)
	if err != nil {
		return fmt.Errorf("check current password reuse: %w", err)
	}
	if ok {
		return ErrPasswordReused
	}

	if s.settings.PasswordHistoryDepth <= 0 {
		return nil
	}

	history, err := s.principals.ListPasswordHistory(ctx, principal.ID, s.settings.PasswordHistoryDepth)
	if err != nil {
		return fmt.Errorf("load password history: %w", err)
	}
	for _, entry := range history {
		ok, err := s.hasher.Verify(newPassword, entry.PasswordHash)
		if err != nil {
			return fmt.Errorf("check password history: %w", err)
		}
		if ok {
			return ErrPasswordReused
		}
	}

	return nil
}

func (s *PasswordService) finishChange(ctx context.Context, principalID string, now time.Time, source, endReason string, ip *string) (*PasswordChangeResult, error) {
	var ended int64
	if s.sessions != nil {
		var err error
		ended, err = s.sessions.TerminateAll(ctx, principalID, endReason, ip)
		if err != nil {
			return nil, err
		}
	}

	action := domain.AuditPasswordChanged
	if source == passwordResetSource {
		action = domain.AuditPasswordReset
	}
	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &principalID,
		Action:      action,
		Details:     fmt.Sprintf("%d session(s) ended", ended),
		IP:          ip,
		Success:     true,
		At:          now,
	})

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:       uuid.NewString(),
			PrincipalID:   principalID,
			ChangedAt:     now,
			Source:        source,
			SessionsEnded: int(ended),
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event", zap.Error(err))
		}
	}

	return &PasswordChangeResult{
		PrincipalID:   principalID,
		ChangedAt:     now,
		SessionsEnded: ended,
	}, nil
}

func (s *PasswordService) recordAudit(ctx context.Context, entry domain.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}
