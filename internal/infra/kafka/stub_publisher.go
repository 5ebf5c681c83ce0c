package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, principalID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("principal_id", principalID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishPrincipalRegistered logs identity.principal.registered events.
func (p *StubPublisher) PublishPrincipalRegistered(_ context.Context, event domain.PrincipalRegisteredEvent) error {
	payload := map[string]any{
		"principal_id":  event.PrincipalID,
		"email":         event.Email,
		"full_name":     event.FullName,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("identity.principal.registered", event.PrincipalID, event.RegisteredAt, payload)
	return nil
}

// PublishAccountLocked logs identity.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"principal_id":    event.PrincipalID,
		"failed_attempts": event.FailedAttempts,
		"locked_at":       event.LockedAt,
		"locked_until":    event.LockedUntil,
		"metadata":        event.Metadata,
	}
	p.logEvent("identity.account.locked", event.PrincipalID, event.LockedAt, payload)
	return nil
}

// PublishPasswordChanged logs identity.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"principal_id":   event.PrincipalID,
		"changed_at":     event.ChangedAt,
		"source":         event.Source,
		"sessions_ended": event.SessionsEnded,
		"metadata":       event.Metadata,
	}
	p.logEvent("identity.password.changed", event.PrincipalID, event.ChangedAt, payload)
	return nil
}

// PublishPasswordResetRequested logs identity.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"principal_id":       event.PrincipalID,
		"request_id":         event.RequestID,
		"requested_at":       event.RequestedAt,
		"masked_destination": event.MaskedDestination,
		"expires_at":         event.ExpiresAt,
		"ip_address":         event.IPAddress,
		"metadata":           event.Metadata,
	}
	p.logEvent("identity.password.reset_requested", event.PrincipalID, event.RequestedAt, payload)
	return nil
}

// PublishSessionSuperseded logs identity.session.superseded events.
func (p *StubPublisher) PublishSessionSuperseded(_ context.Context, event domain.SessionSupersededEvent) error {
	payload := map[string]any{
		"principal_id":   event.PrincipalID,
		"new_session_id": event.NewSessionID,
		"sessions_ended": event.SessionsEnded,
		"superseded_at":  event.SupersededAt,
		"ip_address":     event.IPAddress,
		"metadata":       event.Metadata,
	}
	p.logEvent("identity.session.superseded", event.PrincipalID, event.SupersededAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
