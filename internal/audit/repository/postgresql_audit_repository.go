// Package repository implements audit record persistence for PostgreSQL and
// MySQL databases.
//
// Audit records are append-only: repositories expose Create, List, Count,
// and Aggregate but no update or delete. Both implementations are
// transaction-aware via database.GetTx(), although the audit usecase
// deliberately writes outside the caller's transaction so a rolled-back
// operation still leaves its failure entry behind.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	"github.com/convosec/keycore/internal/database"
	apperrors "github.com/convosec/keycore/internal/errors"
)

const auditRecordColumns = `id, tenant_id, operation, result, key_id, key_version,
	resource_id, conversation_id, performed_by, error_message,
	data_size_bytes, duration_ms, metadata, created_at`

// PostgreSQLAuditRepository implements audit record persistence for PostgreSQL.
//
// Schema requirements:
//   - id: UUID PRIMARY KEY
//   - tenant_id, operation, result, performed_by, error_message: TEXT
//   - key_id: UUID (nullable), key_version: INTEGER (nullable)
//   - resource_id, conversation_id: TEXT (nullable)
//   - data_size_bytes, duration_ms: BIGINT
//   - metadata: JSONB (nullable)
//   - created_at: TIMESTAMPTZ
type PostgreSQLAuditRepository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewPostgreSQLAuditRepository creates a new PostgreSQL audit repository instance.
// Every store call is bounded by queryTimeout; zero disables the bound.
func NewPostgreSQLAuditRepository(db *sql.DB, queryTimeout time.Duration) *PostgreSQLAuditRepository {
	return &PostgreSQLAuditRepository{db: db, queryTimeout: queryTimeout}
}

// Create inserts a new audit record. Handles nil metadata as NULL.
func (p *PostgreSQLAuditRepository) Create(ctx context.Context, record *auditDomain.AuditRecord) error {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	metadataJSON, err := marshalAuditMetadata(record.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_records (` + auditRecordColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = querier.ExecContext(
		ctx,
		query,
		record.ID,
		record.TenantID,
		string(record.Operation),
		string(record.Result),
		record.KeyID,
		record.KeyVersion,
		record.ResourceID,
		record.ConversationID,
		record.PerformedBy,
		record.ErrorMessage,
		record.DataSizeBytes,
		record.DurationMs,
		metadataJSON,
		record.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit record")
	}
	return nil
}

// List retrieves audit records for a tenant matching the filter, newest
// first, with offset/limit pagination.
func (p *PostgreSQLAuditRepository) List(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.AuditRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	conditions, args := buildAuditFilterConditions(tenantID, filter)
	query := `SELECT ` + auditRecordColumns + ` FROM audit_records
			  WHERE ` + strings.Join(conditions, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit records")
	}
	defer func() {
		_ = rows.Close()
	}()

	// Initialize empty slice to avoid returning nil for empty results
	records := make([]*auditDomain.AuditRecord, 0)
	for rows.Next() {
		record, err := scanAuditRecord(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit records")
	}

	return records, nil
}

// Count returns the number of audit records for a tenant matching the filter.
func (p *PostgreSQLAuditRepository) Count(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
) (int64, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	conditions, args := buildAuditFilterConditions(tenantID, filter)
	query := `SELECT COUNT(*) FROM audit_records WHERE ` + strings.Join(conditions, " AND ")

	var count int64
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count audit records")
	}
	return count, nil
}

// Aggregate rolls up audit records for a tenant since the given instant:
// counts per (operation, result), average duration, and total bytes
// successfully encrypted.
func (p *PostgreSQLAuditRepository) Aggregate(
	ctx context.Context,
	tenantID string,
	since time.Time,
) (*auditDomain.Aggregate, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	countsQuery := `SELECT operation, result, COUNT(*) FROM audit_records
					WHERE tenant_id = $1 AND created_at >= $2
					GROUP BY operation, result
					ORDER BY operation, result`

	rows, err := querier.QueryContext(ctx, countsQuery, tenantID, since)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to aggregate audit operation counts")
	}
	defer func() {
		_ = rows.Close()
	}()

	aggregate := &auditDomain.Aggregate{
		OperationCounts: make([]auditDomain.OperationCount, 0),
	}
	for rows.Next() {
		var count auditDomain.OperationCount
		if err := rows.Scan(&count.Operation, &count.Result, &count.Count); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit operation count")
		}
		aggregate.OperationCounts = append(aggregate.OperationCounts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit operation counts")
	}

	durationQuery := `SELECT COALESCE(AVG(duration_ms), 0) FROM audit_records
					  WHERE tenant_id = $1 AND created_at >= $2`
	if err := querier.QueryRowContext(ctx, durationQuery, tenantID, since).Scan(&aggregate.AvgDurationMs); err != nil {
		return nil, apperrors.Wrap(err, "failed to aggregate audit durations")
	}

	bytesQuery := `SELECT COALESCE(SUM(data_size_bytes), 0) FROM audit_records
				   WHERE tenant_id = $1 AND created_at >= $2
				     AND operation = 'ENCRYPT' AND result = 'success'`
	if err := querier.QueryRowContext(ctx, bytesQuery, tenantID, since).Scan(&aggregate.TotalBytesEncrypted); err != nil {
		return nil, apperrors.Wrap(err, "failed to aggregate encrypted bytes")
	}

	return aggregate, nil
}

// scanAuditRecord scans one audit_records row. PostgreSQL returns native
// UUIDs, so only the metadata JSON needs explicit decoding.
func scanAuditRecord(row interface{ Scan(dest ...any) error }) (*auditDomain.AuditRecord, error) {
	var record auditDomain.AuditRecord
	var metadataJSON []byte

	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.Operation,
		&record.Result,
		&record.KeyID,
		&record.KeyVersion,
		&record.ResourceID,
		&record.ConversationID,
		&record.PerformedBy,
		&record.ErrorMessage,
		&record.DataSizeBytes,
		&record.DurationMs,
		&metadataJSON,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit record metadata")
		}
	}

	return &record, nil
}

// buildAuditFilterConditions turns a Filter into PostgreSQL WHERE conditions
// with positional arguments.
func buildAuditFilterConditions(tenantID string, filter auditDomain.Filter) ([]string, []any) {
	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}

	add := func(condition string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filter.Operation != nil {
		add("operation = $%d", string(*filter.Operation))
	}
	if filter.Result != nil {
		add("result = $%d", string(*filter.Result))
	}
	if filter.KeyID != nil {
		add("key_id = $%d", *filter.KeyID)
	}
	if filter.ResourceID != nil {
		add("resource_id = $%d", *filter.ResourceID)
	}
	if filter.ConversationID != nil {
		add("conversation_id = $%d", *filter.ConversationID)
	}
	if filter.PerformedBy != nil {
		add("performed_by = $%d", *filter.PerformedBy)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}

	return conditions, args
}

// marshalAuditMetadata encodes free-form metadata as JSON, mapping nil to NULL.
func marshalAuditMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal audit record metadata")
	}
	return metadataJSON, nil
}
