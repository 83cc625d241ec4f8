// Package usecase implements the audit trail business logic: best-effort
// recording, filtered queries, and rolling-window statistics.
package usecase

import (
	"context"
	"time"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// AuditRepository defines audit record persistence operations.
type AuditRepository interface {
	Create(ctx context.Context, record *auditDomain.AuditRecord) error
	List(ctx context.Context, tenantID string, filter auditDomain.Filter, offset, limit int) ([]*auditDomain.AuditRecord, error)
	Count(ctx context.Context, tenantID string, filter auditDomain.Filter) (int64, error)
	Aggregate(ctx context.Context, tenantID string, since time.Time) (*auditDomain.Aggregate, error)
}

// KeyCounter counts key records by filter; Stats uses it to report key
// status breakdowns alongside the audit rollup.
type KeyCounter interface {
	Count(ctx context.Context, tenantID string, filter keysDomain.ListFilter) (int64, error)
}

// AuditUseCase exposes the audit trail operations.
type AuditUseCase interface {
	// Record appends one entry. Best-effort: persistence failures are
	// logged and swallowed so the audited operation never rolls back.
	Record(ctx context.Context, record *auditDomain.AuditRecord) error
	Query(ctx context.Context, tenantID string, filter auditDomain.Filter, offset, limit int) ([]*auditDomain.AuditRecord, int64, error)
	Stats(ctx context.Context, tenantID string, window time.Duration) (*auditDomain.Stats, error)
}
