package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

type auditUseCase struct {
	auditRepo  AuditRepository
	keyCounter KeyCounter
	logger     *slog.Logger
}

// NewAuditUseCase creates the audit trail use case.
func NewAuditUseCase(auditRepo AuditRepository, keyCounter KeyCounter, logger *slog.Logger) AuditUseCase {
	return &auditUseCase{
		auditRepo:  auditRepo,
		keyCounter: keyCounter,
		logger:     logger,
	}
}

// Record stamps and persists one audit entry. Always returns nil: a failed
// audit write is logged as a warning and swallowed, because losing one trail
// entry must never fail or roll back the operation being audited.
func (a *auditUseCase) Record(ctx context.Context, record *auditDomain.AuditRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.Must(uuid.NewV7())
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if err := a.auditRepo.Create(ctx, record); err != nil {
		a.logger.WarnContext(ctx, "failed to persist audit record",
			slog.String("tenant_id", record.TenantID),
			slog.String("operation", string(record.Operation)),
			slog.String("result", string(record.Result)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Query retrieves a page of audit records and the total count for the filter.
func (a *auditUseCase) Query(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.AuditRecord, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	records, err := a.auditRepo.List(ctx, tenantID, filter, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	count, err := a.auditRepo.Count(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	return records, count, nil
}

// Stats reports audited activity over the trailing window together with the
// tenant's current key status breakdown.
func (a *auditUseCase) Stats(
	ctx context.Context,
	tenantID string,
	window time.Duration,
) (*auditDomain.Stats, error) {
	since := time.Now().UTC().Add(-window)

	aggregate, err := a.auditRepo.Aggregate(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}

	stats := &auditDomain.Stats{
		Window:              window,
		OperationCounts:     aggregate.OperationCounts,
		AvgDurationMs:       aggregate.AvgDurationMs,
		TotalBytesEncrypted: aggregate.TotalBytesEncrypted,
		KeysByStatus:        make(map[string]int64),
	}

	for _, status := range []keysDomain.KeyStatus{
		keysDomain.KeyStatusActive,
		keysDomain.KeyStatusRotated,
		keysDomain.KeyStatusExpired,
		keysDomain.KeyStatusRevoked,
	} {
		count, err := a.keyCounter.Count(ctx, tenantID, keysDomain.ByStatus(status))
		if err != nil {
			return nil, err
		}
		stats.KeysByStatus[string(status)] = count
	}

	activeStatus := keysDomain.KeyStatusActive
	sessionType := keysDomain.KeyTypeSession
	activeSessions, err := a.keyCounter.Count(ctx, tenantID, keysDomain.ListFilter{
		Status:  &activeStatus,
		KeyType: &sessionType,
	})
	if err != nil {
		return nil, err
	}
	stats.ActiveSessionKeys = activeSessions

	return stats, nil
}
