package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/security"
	"github.com/aryanndesai/FreshFarmMarket/internal/repository"
)

const (
	defaultTwoFactorTTL        = 5 * time.Minute
	defaultTwoFactorCodeLength = 6
)

var (
	// ErrTwoFactorCodeInvalid indicates the submitted code does not match an
	// unused, unexpired challenge.
	ErrTwoFactorCodeInvalid = errors.New("two-factor code invalid or expired")
	// ErrTwoFactorUnavailable indicates the service is missing a collaborator.
	ErrTwoFactorUnavailable = errors.New("two-factor service unavailable")
)

// TwoFactorService issues and verifies single-use login codes.
type TwoFactorService struct {
	challenges      port.ChallengeRepository
	email           port.EmailSender
	audit           port.AuditSink
	logger          *zap.Logger
	now             func() time.Time
	codeTTL         time.Duration
	codeLength      int
	invalidatePrior bool
}

// NewTwoFactorService constructs a TwoFactorService.
func NewTwoFactorService(challenges port.ChallengeRepository, email port.EmailSender, audit port.AuditSink, logger *zap.Logger) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwoFactorService{
		challenges: challenges,
		email:      email,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
		codeTTL:    defaultTwoFactorTTL,
		codeLength: defaultTwoFactorCodeLength,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *TwoFactorService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCodeTTL adjusts the challenge lifetime.
func (s *TwoFactorService) WithCodeTTL(ttl time.Duration) {
	if ttl > 0 {
		s.codeTTL = ttl
	}
}

// WithCodeLength adjusts the number of digits per code.
func (s *TwoFactorService) WithCodeLength(length int) {
	if length > 0 {
		s.codeLength = length
	}
}

// WithInvalidatePrior makes each issued code retire any outstanding ones.
func (s *TwoFactorService) WithInvalidatePrior(enabled bool) {
	s.invalidatePrior = enabled
}

// Issue creates a fresh challenge for the principal and emails the code.
// Issuing never reveals the code to the caller.
func (s *TwoFactorService) Issue(ctx context.Context, principal domain.Principal, ip *string) error {
	if s.challenges == nil || s.email == nil {
		return ErrTwoFactorUnavailable
	}

	now := s.now().UTC()

	if s.invalidatePrior {
		if _, err := s.challenges.InvalidateOutstanding(ctx, principal.ID, now); err != nil {
			return fmt.Errorf("invalidate outstanding challenges: %w", err)
		}
	}

	code, err := security.GenerateNumericCode(s.codeLength)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	challenge := domain.TwoFactorChallenge{
		ID:          uuid.NewString(),
		PrincipalID: principal.ID,
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.codeTTL),
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	// Delivery is fire-and-forget; a failed send is logged, never surfaced
	// as an authentication error.
	if err := s.email.Send(ctx, port.EmailTwoFactorCode, principal.Email, map[string]string{
		"full_name": principal.FullName,
		"code":      code,
	}); err != nil {
		s.logger.Warn("send two-factor code", zap.String("principal_id", principal.ID), zap.Error(err))
	}

	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &principal.ID,
		Action:      domain.AuditTwoFactorCodeSent,
		Details:     fmt.Sprintf("code sent to %s", maskEmail(principal.Email)),
		IP:          ip,
		Success:     true,
		At:          now,
	})

	return nil
}

// Verify consumes the challenge matching the submitted code. Consumption is a
// single conditional update in the store, so a code can be redeemed at most
// once even under concurrent submissions.
func (s *TwoFactorService) Verify(ctx context.Context, principalID, code string, ip *string) error {
	if s.challenges == nil {
		return ErrTwoFactorUnavailable
	}
	if principalID == "" || code == "" {
		return ErrTwoFactorCodeInvalid
	}

	now := s.now().UTC()
	_, err := s.challenges.Consume(ctx, principalID, code, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recordAudit(ctx, domain.AuditEntry{
				ID:          uuid.NewString(),
				PrincipalID: &principalID,
				Action:      domain.AuditTwoFactorFailed,
				Details:     "code rejected",
				IP:          ip,
				Success:     false,
				At:          now,
			})
			return ErrTwoFactorCodeInvalid
		}
		return fmt.Errorf("consume challenge: %w", err)
	}

	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &principalID,
		Action:      domain.AuditTwoFactorVerified,
		Details:     "code accepted",
		IP:          ip,
		Success:     true,
		At:          now,
	})

	return nil
}

func (s *TwoFactorService) recordAudit(ctx context.Context, entry domain.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}
