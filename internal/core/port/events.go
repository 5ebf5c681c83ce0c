package port

import (
	"context"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
)

// EventPublisher emits identity lifecycle events to the message broker.
// Publishing is asynchronous and must not block authentication flows.
type EventPublisher interface {
	PublishPrincipalRegistered(ctx context.Context, event domain.PrincipalRegisteredEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishSessionSuperseded(ctx context.Context, event domain.SessionSupersededEvent) error
}
