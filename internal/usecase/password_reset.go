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
	defaultResetTTL = time.Hour
	resetTokenBytes = 24
)

var (
	// ErrResetTokenInvalid indicates the supplied reset token is unknown,
	// already used, or expired.
	ErrResetTokenInvalid = errors.New("password reset token invalid or expired")
	// ErrResetUnavailable indicates the service is missing a collaborator.
	ErrResetUnavailable = errors.New("password reset service unavailable")
)

// PasswordResetService issues single-use reset tokens and completes resets.
// Requesting a reset discloses nothing about whether the address is known.
type PasswordResetService struct {
	settings        config.SecuritySettings
	resetBaseURL    string
	principals      port.PrincipalRepository
	resets          port.ResetRepository
	passwords       *PasswordService
	sessions        *SessionService
	email           port.EmailSender
	audit           port.AuditSink
	events          port.EventPublisher
	logger          *zap.Logger
	now             func() time.Time
	resetTTL        time.Duration
	invalidatePrior bool
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(
	settings config.SecuritySettings,
	emailSettings config.EmailSettings,
	principals port.PrincipalRepository,
	resets port.ResetRepository,
	passwords *PasswordService,
	sessions *SessionService,
	email port.EmailSender,
	audit port.AuditSink,
	events port.EventPublisher,
	logger *zap.Logger,
) *PasswordResetService {
	if logger == nil {
		logger = zap.NewNop()
	}

	resetTTL := settings.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}

	return &PasswordResetService{
		settings:        settings,
		resetBaseURL:    emailSettings.ResetBaseURL,
		principals:      principals,
		resets:          resets,
		passwords:       passwords,
		sessions:        sessions,
		email:           email,
		audit:           audit,
		events:          events,
		logger:          logger,
		now:             time.Now,
		resetTTL:        resetTTL,
		invalidatePrior: settings.InvalidatePriorChallenges,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *PasswordResetService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
	if s.passwords != nil {
		s.passwords.WithClock(now)
	}
}

// RequestReset issues a reset token for the address if an account exists.
// The return is identical either way; unknown addresses are only visible in
// the audit trail.
func (s *PasswordResetService) RequestReset(ctx context.Context, emailAddr string, ip, userAgent *string) error {
	if s.principals == nil || s.resets == nil || s.email == nil {
		return ErrResetUnavailable
	}

	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return nil
	}

	now := s.now().UTC()

	principal, err := s.principals.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recordAudit(ctx, domain.AuditEntry{
				ID:      uuid.NewString(),
				Action:  domain.AuditPasswordResetRequested,
				Details: fmt.Sprintf("unknown address %s", maskEmail(emailAddr)),
				IP:      ip,
				Success: false,
				At:      now,
			})
			return nil
		}
		return fmt.Errorf("lookup principal: %w", err)
	}

	if s.invalidatePrior {
		if _, err := s.resets.InvalidateOutstanding(ctx, principal.ID, now); err != nil {
			return fmt.Errorf("invalidate outstanding grants: %w", err)
		}
	}

	token, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	grant := domain.PasswordResetGrant{
		ID:          uuid.NewString(),
		PrincipalID: principal.ID,
		TokenHash:   security.HashToken(token),
		IP:          ip,
		UserAgent:   userAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, grant); err != nil {
		return fmt.Errorf("store reset grant: %w", err)
	}

	// Delivery is fire-and-forget: a mail outage must not leak whether the
	// address exists, and the grant stays redeemable either way.
	link := fmt.Sprintf("%s?token=%s", s.resetBaseURL, token)
	if err := s.email.Send(ctx, port.EmailPasswordResetLink, principal.Email, map[string]string{
		"full_name": principal.FullName,
		"link":      link,
	}); err != nil {
		s.logger.Warn("send reset link", zap.String("principal_id", principal.ID), zap.Error(err))
	}

	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &principal.ID,
		Action:      domain.AuditPasswordResetRequested,
		Details:     fmt.Sprintf("link sent to %s", maskEmail(principal.Email)),
		IP:          ip,
		Success:     true,
		At:          now,
	})

	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			EventID:           uuid.NewString(),
			PrincipalID:       principal.ID,
			RequestID:         grant.ID,
			RequestedAt:       now,
			MaskedDestination: maskEmail(principal.Email),
			ExpiresAt:         grant.ExpiresAt,
			IPAddress:         ip,
		}
		if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
			s.logger.Warn("publish password reset requested event", zap.Error(err))
		}
	}

	return nil
}

// ConsumeReset redeems a reset token and installs the new password. The
// candidate password is validated before the grant is burned, so a rejected
// password leaves the token redeemable; the conditional consume still
// guarantees at most one redemption under concurrent submissions. A
// successful reset clears any lockout and ends every session the principal
// holds.
func (s *PasswordResetService) ConsumeReset(ctx context.Context, token, newPassword string, ip, userAgent *string) (*PasswordChangeResult, error) {
	if s.principals == nil || s.resets == nil || s.passwords == nil {
		return nil, ErrResetUnavailable
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrResetTokenInvalid
	}

	now := s.now().UTC()
	tokenHash := security.HashToken(token)

	grant, err := s.resets.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("lookup reset grant: %w", err)
	}
	if !grant.IsValid(now) {
		return nil, ErrResetTokenInvalid
	}

	principal, err := s.principals.GetByID(ctx, grant.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	if err := s.passwords.validateNewPassword(ctx, principal, "", newPassword); err != nil {
		return nil, err
	}

	hash, err := s.passwords.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.resets.Consume(ctx, tokenHash, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("consume reset grant: %w", err)
	}

	if err := s.principals.AddPasswordHistory(ctx, domain.PasswordHistoryEntry{
		ID:           uuid.NewString(),
		PrincipalID:  principal.ID,
		PasswordHash: principal.PasswordHash,
		SetAt:        principal.PasswordChangedAt,
	}); err != nil {
		return nil, fmt.Errorf("append password history: %w", err)
	}

	// Recovery implies the owner is back in control: the reset also clears
	// any active lockout and failed-attempt count.
	if err := s.principals.UpdatePasswordAndUnlock(ctx, principal.ID, hash, s.passwords.hasher.Algo(), now); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	if s.invalidatePrior {
		if _, err := s.resets.InvalidateOutstanding(ctx, principal.ID, now); err != nil {
			s.logger.Warn("invalidate outstanding grants", zap.Error(err))
		}
	}

	return s.passwords.finishChange(ctx, principal.ID, now, passwordResetSource, EndReasonPasswordReset, ip)
}

func (s *PasswordResetService) recordAudit(ctx context.Context, entry domain.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}

// maskEmail obscures the local part of an address for logs and audit details.
func maskEmail(address string) string {
	at := strings.Index(address, "@")
	if at <= 0 {
		return "***"
	}
	local := address[:at]
	if len(local) <= 2 {
		return string(local[0]) + "***" + address[at:]
	}
	return string(local[0]) + "***" + string(local[len(local)-1]) + address[at:]
}
