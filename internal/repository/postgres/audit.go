package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
)

// AuditRepository appends audit entries to PostgreSQL.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Record appends one audit entry. The table is append-only; nothing updates
// or deletes rows.
func (r *AuditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	stmt, args, err := r.builder.Insert("identity.audit_log").
		Columns("id", "principal_id", "action", "details", "ip", "success", "at").
		Values(
			entry.ID,
			optionalString(entry.PrincipalID),
			entry.Action,
			entry.Details,
			optionalString(entry.IP),
			entry.Success,
			entry.At,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit entry sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

var _ port.AuditSink = (*AuditRepository)(nil)
