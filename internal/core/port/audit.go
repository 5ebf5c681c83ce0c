package port

import (
	"context"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
)

// AuditSink records authentication outcomes to durable storage. Recording is
// best-effort from the caller's perspective; failures are logged, not
// propagated into the authentication decision.
type AuditSink interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}
