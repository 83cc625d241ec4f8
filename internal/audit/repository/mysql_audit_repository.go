package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	"github.com/convosec/keycore/internal/database"
	apperrors "github.com/convosec/keycore/internal/errors"
)

// MySQLAuditRepository implements audit record persistence for MySQL.
// UUIDs are stored as BINARY(16) and marshaled with
// uuid.MarshalBinary()/UnmarshalBinary(); key_id may be NULL.
type MySQLAuditRepository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewMySQLAuditRepository creates a new MySQL audit repository instance.
// Every store call is bounded by queryTimeout; zero disables the bound.
func NewMySQLAuditRepository(db *sql.DB, queryTimeout time.Duration) *MySQLAuditRepository {
	return &MySQLAuditRepository{db: db, queryTimeout: queryTimeout}
}

// Create inserts a new audit record.
func (m *MySQLAuditRepository) Create(ctx context.Context, record *auditDomain.AuditRecord) error {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	id, err := record.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit record id")
	}

	var keyID []byte
	if record.KeyID != nil {
		keyID, err = record.KeyID.MarshalBinary()
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal audit record key id")
		}
	}

	metadataJSON, err := marshalAuditMetadata(record.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_records (` + auditRecordColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		record.TenantID,
		string(record.Operation),
		string(record.Result),
		keyID,
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

// List retrieves audit records for a tenant matching the filter, newest first.
func (m *MySQLAuditRepository) List(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.AuditRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	conditions, args, err := buildMySQLAuditFilterConditions(tenantID, filter)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + auditRecordColumns + ` FROM audit_records
			  WHERE ` + strings.Join(conditions, " AND ") + `
			  ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit records")
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]*auditDomain.AuditRecord, 0)
	for rows.Next() {
		record, err := scanMySQLAuditRecord(rows)
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
func (m *MySQLAuditRepository) Count(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
) (int64, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	conditions, args, err := buildMySQLAuditFilterConditions(tenantID, filter)
	if err != nil {
		return 0, err
	}
	query := `SELECT COUNT(*) FROM audit_records WHERE ` + strings.Join(conditions, " AND ")

	var count int64
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count audit records")
	}
	return count, nil
}

// Aggregate rolls up audit records for a tenant since the given instant.
func (m *MySQLAuditRepository) Aggregate(
	ctx context.Context,
	tenantID string,
	since time.Time,
) (*auditDomain.Aggregate, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	countsQuery := `SELECT operation, result, COUNT(*) FROM audit_records
					WHERE tenant_id = ? AND created_at >= ?
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
					  WHERE tenant_id = ? AND created_at >= ?`
	if err := querier.QueryRowContext(ctx, durationQuery, tenantID, since).Scan(&aggregate.AvgDurationMs); err != nil {
		return nil, apperrors.Wrap(err, "failed to aggregate audit durations")
	}

	bytesQuery := `SELECT COALESCE(SUM(data_size_bytes), 0) FROM audit_records
				   WHERE tenant_id = ? AND created_at >= ?
				     AND operation = 'ENCRYPT' AND result = 'success'`
	if err := querier.QueryRowContext(ctx, bytesQuery, tenantID, since).Scan(&aggregate.TotalBytesEncrypted); err != nil {
		return nil, apperrors.Wrap(err, "failed to aggregate encrypted bytes")
	}

	return aggregate, nil
}

// scanMySQLAuditRecord scans one audit_records row, unmarshaling BINARY(16)
// ids and the metadata JSON.
func scanMySQLAuditRecord(row interface{ Scan(dest ...any) error }) (*auditDomain.AuditRecord, error) {
	var record auditDomain.AuditRecord
	var id []byte
	var keyID []byte
	var metadataJSON []byte

	err := row.Scan(
		&id,
		&record.TenantID,
		&record.Operation,
		&record.Result,
		&keyID,
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

	if err := record.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal audit record id")
	}

	if keyID != nil {
		var parsed uuid.UUID
		if err := parsed.UnmarshalBinary(keyID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit record key id")
		}
		record.KeyID = &parsed
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit record metadata")
		}
	}

	return &record, nil
}

// buildMySQLAuditFilterConditions turns a Filter into MySQL WHERE conditions
// with ? placeholders.
func buildMySQLAuditFilterConditions(tenantID string, filter auditDomain.Filter) ([]string, []any, error) {
	conditions := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if filter.Operation != nil {
		conditions = append(conditions, "operation = ?")
		args = append(args, string(*filter.Operation))
	}
	if filter.Result != nil {
		conditions = append(conditions, "result = ?")
		args = append(args, string(*filter.Result))
	}
	if filter.KeyID != nil {
		keyID, err := filter.KeyID.MarshalBinary()
		if err != nil {
			return nil, nil, apperrors.Wrap(err, "failed to marshal audit filter key id")
		}
		conditions = append(conditions, "key_id = ?")
		args = append(args, keyID)
	}
	if filter.ResourceID != nil {
		conditions = append(conditions, "resource_id = ?")
		args = append(args, *filter.ResourceID)
	}
	if filter.ConversationID != nil {
		conditions = append(conditions, "conversation_id = ?")
		args = append(args, *filter.ConversationID)
	}
	if filter.PerformedBy != nil {
		conditions = append(conditions, "performed_by = ?")
		args = append(args, *filter.PerformedBy)
	}
	if filter.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, *filter.To)
	}

	return conditions, args, nil
}
