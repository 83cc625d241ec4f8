package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
)

// auditRecordView is the printable form of an audit record.
type auditRecordView struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       string         `json:"tenant_id"`
	Operation      string         `json:"operation"`
	Result         string         `json:"result"`
	KeyID          *uuid.UUID     `json:"key_id,omitempty"`
	KeyVersion     *uint          `json:"key_version,omitempty"`
	ResourceID     *string        `json:"resource_id,omitempty"`
	ConversationID *string        `json:"conversation_id,omitempty"`
	PerformedBy    string         `json:"performed_by,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	DataSizeBytes  int64          `json:"data_size_bytes,omitempty"`
	DurationMs     int64          `json:"duration_ms,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func newAuditRecordView(record *auditDomain.AuditRecord) auditRecordView {
	return auditRecordView{
		ID:             record.ID,
		TenantID:       record.TenantID,
		Operation:      string(record.Operation),
		Result:         string(record.Result),
		KeyID:          record.KeyID,
		KeyVersion:     record.KeyVersion,
		ResourceID:     record.ResourceID,
		ConversationID: record.ConversationID,
		PerformedBy:    record.PerformedBy,
		ErrorMessage:   record.ErrorMessage,
		DataSizeBytes:  record.DataSizeBytes,
		DurationMs:     record.DurationMs,
		Metadata:       record.Metadata,
		CreatedAt:      record.CreatedAt,
	}
}

// RunAuditQuery queries a tenant's audit trail with optional operation and
// result filters and prints a page of records with the total count.
func RunAuditQuery(
	ctx context.Context,
	tenantID, operationStr, resultStr string,
	offset, limit int,
) error {
	var filter auditDomain.Filter
	if operationStr != "" {
		operation := auditDomain.Operation(operationStr)
		filter.Operation = &operation
	}
	if resultStr != "" {
		result := auditDomain.Result(resultStr)
		filter.Result = &result
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	audit, err := container.AuditUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize audit use case: %w", err)
	}

	records, total, err := audit.Query(ctx, tenantID, filter, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to query audit trail: %w", err)
	}

	views := make([]auditRecordView, 0, len(records))
	for _, record := range records {
		views = append(views, newAuditRecordView(record))
	}

	printJSON(map[string]any{
		"records": views,
		"total":   total,
	})
	return nil
}

// RunAuditStats prints audited activity over the configured rolling window
// together with the tenant's key status breakdown.
func RunAuditStats(ctx context.Context, tenantID string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	audit, err := container.AuditUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize audit use case: %w", err)
	}

	stats, err := audit.Stats(ctx, tenantID, cfg.AuditStatsWindow)
	if err != nil {
		return fmt.Errorf("failed to compute audit stats: %w", err)
	}

	operations := make([]map[string]any, 0, len(stats.OperationCounts))
	for _, bucket := range stats.OperationCounts {
		operations = append(operations, map[string]any{
			"operation": bucket.Operation,
			"result":    bucket.Result,
			"count":     bucket.Count,
		})
	}

	printJSON(map[string]any{
		"window":                stats.Window.String(),
		"operations":            operations,
		"avg_duration_ms":       stats.AvgDurationMs,
		"total_bytes_encrypted": stats.TotalBytesEncrypted,
		"keys_by_status":        stats.KeysByStatus,
		"active_session_keys":   stats.ActiveSessionKeys,
	})
	return nil
}
