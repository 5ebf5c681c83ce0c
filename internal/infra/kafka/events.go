package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	PrincipalID string           `json:"principal_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Version     string           `json:"version"`
	Payload     any              `json:"payload"`
	Metadata    envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, principalID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:     id,
		EventType:   eventType,
		PrincipalID: principalID,
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata:    metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishPrincipalRegistered publishes identity.principal.registered events.
func (p *EventPublisher) PublishPrincipalRegistered(ctx context.Context, event domain.PrincipalRegisteredEvent) error {
	payload := struct {
		PrincipalID  string         `json:"principal_id"`
		Email        string         `json:"email"`
		FullName     string         `json:"full_name"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		PrincipalID:  event.PrincipalID,
		Email:        event.Email,
		FullName:     event.FullName,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "identity.principal.registered", event.PrincipalID, event.RegisteredAt, payload)
}

// PublishAccountLocked publishes identity.account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		PrincipalID    string         `json:"principal_id"`
		FailedAttempts int            `json:"failed_attempts"`
		LockedAt       time.Time      `json:"locked_at"`
		LockedUntil    time.Time      `json:"locked_until"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		PrincipalID:    event.PrincipalID,
		FailedAttempts: event.FailedAttempts,
		LockedAt:       event.LockedAt.UTC(),
		LockedUntil:    event.LockedUntil.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, "identity.account.locked", event.PrincipalID, event.LockedAt, payload)
}

// PublishPasswordChanged publishes identity.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		PrincipalID   string         `json:"principal_id"`
		ChangedAt     time.Time      `json:"changed_at"`
		Source        string         `json:"source"`
		SessionsEnded int            `json:"sessions_ended"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		PrincipalID:   event.PrincipalID,
		ChangedAt:     event.ChangedAt.UTC(),
		Source:        event.Source,
		SessionsEnded: event.SessionsEnded,
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "identity.password.changed", event.PrincipalID, event.ChangedAt, payload)
}

// PublishPasswordResetRequested publishes identity.password.reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		PrincipalID       string         `json:"principal_id"`
		RequestID         string         `json:"request_id"`
		RequestedAt       time.Time      `json:"requested_at"`
		MaskedDestination string         `json:"masked_destination,omitempty"`
		ExpiresAt         time.Time      `json:"expires_at"`
		IPAddress         *string        `json:"ip_address,omitempty"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		PrincipalID:       event.PrincipalID,
		RequestID:         event.RequestID,
		RequestedAt:       event.RequestedAt.UTC(),
		MaskedDestination: event.MaskedDestination,
		ExpiresAt:         event.ExpiresAt.UTC(),
		IPAddress:         event.IPAddress,
		Metadata:          event.Metadata,
	}

	timestamp := event.RequestedAt
	if timestamp.IsZero() {
		timestamp = event.ExpiresAt
	}

	return p.publish(ctx, event.EventID, "identity.password.reset_requested", event.PrincipalID, timestamp, payload)
}

// PublishSessionSuperseded publishes identity.session.superseded events.
func (p *EventPublisher) PublishSessionSuperseded(ctx context.Context, event domain.SessionSupersededEvent) error {
	payload := struct {
		PrincipalID   string         `json:"principal_id"`
		NewSessionID  string         `json:"new_session_id"`
		SessionsEnded int            `json:"sessions_ended"`
		SupersededAt  time.Time      `json:"superseded_at"`
		IPAddress     *string        `json:"ip_address,omitempty"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		PrincipalID:   event.PrincipalID,
		NewSessionID:  event.NewSessionID,
		SessionsEnded: event.SessionsEnded,
		SupersededAt:  event.SupersededAt.UTC(),
		IPAddress:     event.IPAddress,
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "identity.session.superseded", event.PrincipalID, event.SupersededAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
