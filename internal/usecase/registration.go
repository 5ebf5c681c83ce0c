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

var (
	// ErrEmailAlreadyRegistered indicates the email is taken.
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	// ErrRegistrationUnavailable indicates the service is missing a collaborator.
	ErrRegistrationUnavailable = errors.New("registration service unavailable")
)

// RegistrationInput captures a signup request.
type RegistrationInput struct {
	Email            string
	FullName         string
	Phone            *string
	PhotoRef         *string
	Password         string
	TwoFactorEnabled bool
	IP               *string
}

// RegistrationService creates principals.
type RegistrationService struct {
	principals port.PrincipalRepository
	hasher     *security.PasswordHasher
	validator  *security.PasswordValidator
	email      port.EmailSender
	audit      port.AuditSink
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(
	principals port.PrincipalRepository,
	hasher *security.PasswordHasher,
	validator *security.PasswordValidator,
	email port.EmailSender,
	audit port.AuditSink,
	events port.EventPublisher,
	logger *zap.Logger,
) *RegistrationService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		principals: principals,
		hasher:     hasher,
		validator:  validator,
		email:      email,
		audit:      audit,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *RegistrationService) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register validates the signup, stores the principal and sends the welcome
// mail. Duplicate emails are rejected via the store's uniqueness guarantee,
// so two concurrent signups for one address cannot both succeed.
func (s *RegistrationService) Register(ctx context.Context, input RegistrationInput) (*domain.Principal, error) {
	if s.principals == nil || s.hasher == nil {
		return nil, ErrRegistrationUnavailable
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("full name is required")
	}

	if err := s.validator.Validate(input.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	principal := domain.Principal{
		ID:                uuid.NewString(),
		Email:             email,
		FullName:          fullName,
		Phone:             input.Phone,
		PhotoRef:          input.PhotoRef,
		PasswordHash:      hash,
		PasswordAlgo:      s.hasher.Algo(),
		PasswordChangedAt: now,
		TwoFactorEnabled:  input.TwoFactorEnabled,
		CreatedAt:         now,
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, fmt.Errorf("create principal: %w", err)
	}

	s.recordAudit(ctx, domain.AuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &principal.ID,
		Action:      domain.AuditUserRegistered,
		Details:     fmt.Sprintf("account created for %s", maskEmail(principal.Email)),
		IP:          input.IP,
		Success:     true,
		At:          now,
	})

	if s.email != nil {
		if err := s.email.Send(ctx, port.EmailWelcome, principal.Email, map[string]string{
			"full_name": principal.FullName,
		}); err != nil {
			s.logger.Warn("send welcome mail", zap.Error(err))
		}
	}

	if s.events != nil {
		event := domain.PrincipalRegisteredEvent{
			EventID:      uuid.NewString(),
			PrincipalID:  principal.ID,
			Email:        principal.Email,
			FullName:     principal.FullName,
			RegisteredAt: now,
		}
		if err := s.events.PublishPrincipalRegistered(ctx, event); err != nil {
			s.logger.Warn("publish principal registered event", zap.Error(err))
		}
	}

	result := principal
	result.PasswordHash = ""
	return &result, nil
}

func (s *RegistrationService) recordAudit(ctx context.Context, entry domain.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}
