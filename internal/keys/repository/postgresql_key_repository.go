// Package repository implements key record persistence for PostgreSQL and
// MySQL databases.
//
// Each repository stores KeyRecord rows with the sealed key material
// (encrypted_key, iv, auth_tag) as binary columns; raw key material never
// reaches this layer. All methods are transaction-aware via database.GetTx(),
// so lifecycle operations (rotation, revocation) can run their read and
// guarded write steps atomically inside a TxManager.WithTx block.
//
// # Database Support
//
//   - PostgreSQL: native UUID type, BYTEA for sealed material, TIMESTAMPTZ
//   - MySQL: BINARY(16) UUIDs, BLOB for sealed material, DATETIME
//
// # Concurrency Control
//
// Status changes use guarded UPDATEs (WHERE id = ? AND status = ?). When the
// guard matches zero rows a concurrent writer won the race and the caller
// receives a conflict error, never a silently doubled transition. At most one
// ACTIVE row per logical key line is additionally enforced by a partial
// unique index (PostgreSQL) / generated-column unique key (MySQL).
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/convosec/keycore/internal/database"
	apperrors "github.com/convosec/keycore/internal/errors"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// keyRecordColumns is the canonical column list shared by every SELECT so
// scans stay in one shape.
const keyRecordColumns = `id, tenant_id, name, key_type, conversation_id, status, algorithm,
	key_length_bits, encrypted_key, iv, auth_tag, version, fingerprint,
	valid_from, valid_until, rotated_at, revoked_at, revocation_reason,
	created_by, auto_rotate, rotation_interval_days, usage_count, metadata,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanKeyRecord scans one key_records row into a domain KeyRecord.
// PostgreSQL returns native UUIDs and timestamps, so only the metadata JSON
// needs explicit decoding.
func scanKeyRecord(row rowScanner) (*keysDomain.KeyRecord, error) {
	var key keysDomain.KeyRecord
	var metadataJSON []byte

	err := row.Scan(
		&key.ID,
		&key.TenantID,
		&key.Name,
		&key.KeyType,
		&key.ConversationID,
		&key.Status,
		&key.Algorithm,
		&key.KeyLengthBits,
		&key.EncryptedKey,
		&key.IV,
		&key.AuthTag,
		&key.Version,
		&key.Fingerprint,
		&key.ValidFrom,
		&key.ValidUntil,
		&key.RotatedAt,
		&key.RevokedAt,
		&key.RevocationReason,
		&key.CreatedBy,
		&key.AutoRotate,
		&key.RotationIntervalDays,
		&key.UsageCount,
		&metadataJSON,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &key.Metadata); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal key record metadata")
		}
	}

	return &key, nil
}

// PostgreSQLKeyRepository implements key record persistence for PostgreSQL.
//
// Schema requirements:
//   - id: UUID PRIMARY KEY
//   - tenant_id, name, key_type, status, algorithm: TEXT
//   - conversation_id: TEXT (nullable, session keys only)
//   - encrypted_key, iv, auth_tag: BYTEA (sealed material)
//   - version: INTEGER (starts at 1 per logical line)
//   - valid_from, valid_until, rotated_at, revoked_at: TIMESTAMPTZ
//   - auto_rotate: BOOLEAN, rotation_interval_days: INTEGER
//   - usage_count: BIGINT, metadata: JSONB (nullable)
//   - partial unique index on (tenant_id, name, key_type,
//     COALESCE(conversation_id, '')) WHERE status = 'active'
type PostgreSQLKeyRepository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewPostgreSQLKeyRepository creates a new PostgreSQL key repository instance.
// Every store call is bounded by queryTimeout; zero disables the bound.
func NewPostgreSQLKeyRepository(db *sql.DB, queryTimeout time.Duration) *PostgreSQLKeyRepository {
	return &PostgreSQLKeyRepository{db: db, queryTimeout: queryTimeout}
}

// Create inserts a new key record. The sealed material columns are stored
// exactly as produced by the envelope; a partial unique index rejects a
// second ACTIVE row for the same logical line with a constraint violation.
func (p *PostgreSQLKeyRepository) Create(ctx context.Context, key *keysDomain.KeyRecord) error {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	metadataJSON, err := marshalMetadata(key.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO key_records (` + keyRecordColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			          $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`

	_, err = querier.ExecContext(
		ctx,
		query,
		key.ID,
		key.TenantID,
		key.Name,
		string(key.KeyType),
		key.ConversationID,
		string(key.Status),
		string(key.Algorithm),
		key.KeyLengthBits,
		key.EncryptedKey,
		key.IV,
		key.AuthTag,
		key.Version,
		key.Fingerprint,
		key.ValidFrom,
		key.ValidUntil,
		key.RotatedAt,
		key.RevokedAt,
		key.RevocationReason,
		key.CreatedBy,
		key.AutoRotate,
		key.RotationIntervalDays,
		key.UsageCount,
		metadataJSON,
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create key record")
	}
	return nil
}

// GetByID retrieves a key record by id within a tenant.
// Returns keysDomain.ErrKeyNotFound if no row matches.
func (p *PostgreSQLKeyRepository) GetByID(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
) (*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE id = $1 AND tenant_id = $2`

	key, err := scanKeyRecord(querier.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get key record by id")
	}
	return key, nil
}

// GetByIDAndVersion retrieves the record at a specific version of the logical
// key line that the given id belongs to. Rotation inserts a new row per
// version, so the id only pins down the line; the version picks the row.
// Returns keysDomain.ErrKeyNotFound if the line or version does not exist.
func (p *PostgreSQLKeyRepository) GetByIDAndVersion(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	version uint,
) (*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE tenant_id = $1 AND version = $3
			    AND (name, key_type, COALESCE(conversation_id, '')) =
			        (SELECT name, key_type, COALESCE(conversation_id, '')
			         FROM key_records WHERE id = $2 AND tenant_id = $1)`

	key, err := scanKeyRecord(querier.QueryRowContext(ctx, query, tenantID, id, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get key record by id and version")
	}
	return key, nil
}

// GetActive retrieves the single ACTIVE record for a logical key line.
// conversationID must be nil for non-session key types.
// Returns keysDomain.ErrNoActiveKey if no ACTIVE record exists.
func (p *PostgreSQLKeyRepository) GetActive(
	ctx context.Context,
	tenantID string,
	keyType keysDomain.KeyType,
	conversationID *string,
) (*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE tenant_id = $1 AND key_type = $2 AND status = 'active'
			    AND conversation_id IS NOT DISTINCT FROM $3
			  ORDER BY version DESC
			  LIMIT 1`

	key, err := scanKeyRecord(querier.QueryRowContext(ctx, query, tenantID, string(keyType), conversationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrNoActiveKey
		}
		return nil, apperrors.Wrap(err, "failed to get active key record")
	}
	return key, nil
}

// List retrieves key records for a tenant matching the filter, newest first,
// with offset/limit pagination.
func (p *PostgreSQLKeyRepository) List(
	ctx context.Context,
	tenantID string,
	filter keysDomain.ListFilter,
	offset, limit int,
) ([]*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	conditions, args := buildFilterConditions(tenantID, filter)
	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE ` + strings.Join(conditions, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list key records")
	}
	defer func() {
		_ = rows.Close()
	}()

	// Initialize empty slice to avoid returning nil for empty results
	keys := make([]*keysDomain.KeyRecord, 0)
	for rows.Next() {
		key, err := scanKeyRecord(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan key record")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate key records")
	}

	return keys, nil
}

// Count returns the number of key records for a tenant matching the filter.
func (p *PostgreSQLKeyRepository) Count(
	ctx context.Context,
	tenantID string,
	filter keysDomain.ListFilter,
) (int64, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	conditions, args := buildFilterConditions(tenantID, filter)
	query := `SELECT COUNT(*) FROM key_records WHERE ` + strings.Join(conditions, " AND ")

	var count int64
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count key records")
	}
	return count, nil
}

// UpdateStatus persists a status transition with an optimistic guard on the
// previous status. The record must already carry the new status and stamps
// (set by KeyRecord.Transition). If the guard matches zero rows a concurrent
// writer changed the status first and an ErrConflict-classed error is
// returned; the caller decides whether that means a rotation conflict or an
// already-revoked key.
func (p *PostgreSQLKeyRepository) UpdateStatus(
	ctx context.Context,
	key *keysDomain.KeyRecord,
	from keysDomain.KeyStatus,
) error {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE key_records
			  SET status = $1, valid_until = $2, rotated_at = $3, revoked_at = $4,
			      revocation_reason = $5, updated_at = $6
			  WHERE id = $7 AND status = $8`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(key.Status),
		key.ValidUntil,
		key.RotatedAt,
		key.RevokedAt,
		key.RevocationReason,
		key.UpdatedAt,
		key.ID,
		string(from),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update key record status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrConflict, "key status changed concurrently")
	}
	return nil
}

// BulkExpire transitions every ACTIVE record whose valid_until has passed to
// EXPIRED in a single statement. Idempotent; returns the number of rows
// transitioned.
func (p *PostgreSQLKeyRepository) BulkExpire(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE key_records
			  SET status = 'expired', rotated_at = $1, updated_at = $1
			  WHERE status = 'active' AND valid_until IS NOT NULL AND valid_until < $1`

	result, err := querier.ExecContext(ctx, query, now)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to bulk expire key records")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read affected rows")
	}
	return affected, nil
}

// IncrementUsage bumps a key record's usage counter. Callers treat failures
// as best-effort; the counter is informational.
func (p *PostgreSQLKeyRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE key_records SET usage_count = usage_count + 1 WHERE id = $1`

	if _, err := querier.ExecContext(ctx, query, id); err != nil {
		return apperrors.Wrap(err, "failed to increment key usage count")
	}
	return nil
}

// ListAutoRotationDue retrieves ACTIVE records whose auto-rotation policy is
// due at the given instant, oldest first.
func (p *PostgreSQLKeyRepository) ListAutoRotationDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, p.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE status = 'active' AND auto_rotate AND rotation_interval_days > 0
			    AND created_at <= $1 - make_interval(days => rotation_interval_days)
			  ORDER BY created_at
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list auto-rotation due keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	keys := make([]*keysDomain.KeyRecord, 0)
	for rows.Next() {
		key, err := scanKeyRecord(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan key record")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate key records")
	}

	return keys, nil
}

// buildFilterConditions turns a ListFilter into PostgreSQL WHERE conditions
// with positional arguments.
func buildFilterConditions(tenantID string, filter keysDomain.ListFilter) ([]string, []any) {
	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}

	if filter.KeyType != nil {
		args = append(args, string(*filter.KeyType))
		conditions = append(conditions, fmt.Sprintf("key_type = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ConversationID != nil {
		args = append(args, *filter.ConversationID)
		conditions = append(conditions, fmt.Sprintf("conversation_id = $%d", len(args)))
	}

	return conditions, args
}

// marshalMetadata encodes free-form metadata as JSON, mapping nil to NULL.
func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal key record metadata")
	}
	return metadataJSON, nil
}
