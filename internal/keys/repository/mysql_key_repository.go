package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/convosec/keycore/internal/database"
	apperrors "github.com/convosec/keycore/internal/errors"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// MySQLKeyRepository implements key record persistence for MySQL.
//
// MySQL has no native UUID type, so ids are stored as BINARY(16) and
// marshaled with uuid.MarshalBinary()/UnmarshalBinary(). Sealed material
// lives in BLOB columns and metadata in a JSON column. At most one ACTIVE
// row per logical line is enforced with a generated column
// (active_line = line key when status = 'active', else NULL) under a unique
// key, since MySQL lacks partial indexes.
type MySQLKeyRepository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewMySQLKeyRepository creates a new MySQL key repository instance.
// Every store call is bounded by queryTimeout; zero disables the bound.
func NewMySQLKeyRepository(db *sql.DB, queryTimeout time.Duration) *MySQLKeyRepository {
	return &MySQLKeyRepository{db: db, queryTimeout: queryTimeout}
}

// scanMySQLKeyRecord scans one key_records row, unmarshaling the BINARY(16)
// id and the metadata JSON.
func scanMySQLKeyRecord(row rowScanner) (*keysDomain.KeyRecord, error) {
	var key keysDomain.KeyRecord
	var id []byte
	var metadataJSON []byte

	err := row.Scan(
		&id,
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

	if err := key.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal key record id")
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &key.Metadata); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal key record metadata")
		}
	}

	return &key, nil
}

// Create inserts a new key record.
func (m *MySQLKeyRepository) Create(ctx context.Context, key *keysDomain.KeyRecord) error {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	id, err := key.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key record id")
	}

	metadataJSON, err := marshalMetadata(key.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO key_records (` + keyRecordColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			          ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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
func (m *MySQLKeyRepository) GetByID(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
) (*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal key record id")
	}

	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE id = ? AND tenant_id = ?`

	key, err := scanMySQLKeyRecord(querier.QueryRowContext(ctx, query, rawID, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get key record by id")
	}
	return key, nil
}

// GetByIDAndVersion retrieves the record at a specific version of the logical
// key line that the given id belongs to.
func (m *MySQLKeyRepository) GetByIDAndVersion(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	version uint,
) (*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal key record id")
	}

	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE tenant_id = ? AND version = ?
			    AND (name, key_type, COALESCE(conversation_id, '')) =
			        (SELECT name, key_type, COALESCE(conversation_id, '')
			         FROM key_records WHERE id = ? AND tenant_id = ?)`

	key, err := scanMySQLKeyRecord(querier.QueryRowContext(ctx, query, tenantID, version, rawID, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get key record by id and version")
	}
	return key, nil
}

// GetActive retrieves the single ACTIVE record for a logical key line.
// Returns keysDomain.ErrNoActiveKey if no ACTIVE record exists.
func (m *MySQLKeyRepository) GetActive(
	ctx context.Context,
	tenantID string,
	keyType keysDomain.KeyType,
	conversationID *string,
) (*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE tenant_id = ? AND key_type = ? AND status = 'active'
			    AND conversation_id <=> ?
			  ORDER BY version DESC
			  LIMIT 1`

	key, err := scanMySQLKeyRecord(querier.QueryRowContext(ctx, query, tenantID, string(keyType), conversationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrNoActiveKey
		}
		return nil, apperrors.Wrap(err, "failed to get active key record")
	}
	return key, nil
}

// List retrieves key records for a tenant matching the filter, newest first.
func (m *MySQLKeyRepository) List(
	ctx context.Context,
	tenantID string,
	filter keysDomain.ListFilter,
	offset, limit int,
) ([]*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	conditions, args := buildMySQLFilterConditions(tenantID, filter)
	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE ` + strings.Join(conditions, " AND ") + `
			  ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list key records")
	}
	defer func() {
		_ = rows.Close()
	}()

	keys := make([]*keysDomain.KeyRecord, 0)
	for rows.Next() {
		key, err := scanMySQLKeyRecord(rows)
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
func (m *MySQLKeyRepository) Count(
	ctx context.Context,
	tenantID string,
	filter keysDomain.ListFilter,
) (int64, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	conditions, args := buildMySQLFilterConditions(tenantID, filter)
	query := `SELECT COUNT(*) FROM key_records WHERE ` + strings.Join(conditions, " AND ")

	var count int64
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count key records")
	}
	return count, nil
}

// UpdateStatus persists a status transition with an optimistic guard on the
// previous status. Zero affected rows means a concurrent writer won the race
// and an ErrConflict-classed error is returned.
func (m *MySQLKeyRepository) UpdateStatus(
	ctx context.Context,
	key *keysDomain.KeyRecord,
	from keysDomain.KeyStatus,
) error {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	rawID, err := key.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key record id")
	}

	query := `UPDATE key_records
			  SET status = ?, valid_until = ?, rotated_at = ?, revoked_at = ?,
			      revocation_reason = ?, updated_at = ?
			  WHERE id = ? AND status = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(key.Status),
		key.ValidUntil,
		key.RotatedAt,
		key.RevokedAt,
		key.RevocationReason,
		key.UpdatedAt,
		rawID,
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
// EXPIRED. Idempotent; returns the number of rows transitioned.
func (m *MySQLKeyRepository) BulkExpire(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE key_records
			  SET status = 'expired', rotated_at = ?, updated_at = ?
			  WHERE status = 'active' AND valid_until IS NOT NULL AND valid_until < ?`

	result, err := querier.ExecContext(ctx, query, now, now, now)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to bulk expire key records")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read affected rows")
	}
	return affected, nil
}

// IncrementUsage bumps a key record's usage counter.
func (m *MySQLKeyRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key record id")
	}

	query := `UPDATE key_records SET usage_count = usage_count + 1 WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, rawID); err != nil {
		return apperrors.Wrap(err, "failed to increment key usage count")
	}
	return nil
}

// ListAutoRotationDue retrieves ACTIVE records whose auto-rotation policy is
// due at the given instant, oldest first.
func (m *MySQLKeyRepository) ListAutoRotationDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*keysDomain.KeyRecord, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + keyRecordColumns + ` FROM key_records
			  WHERE status = 'active' AND auto_rotate AND rotation_interval_days > 0
			    AND created_at <= DATE_SUB(?, INTERVAL rotation_interval_days DAY)
			  ORDER BY created_at
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list auto-rotation due keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	keys := make([]*keysDomain.KeyRecord, 0)
	for rows.Next() {
		key, err := scanMySQLKeyRecord(rows)
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

// buildMySQLFilterConditions turns a ListFilter into MySQL WHERE conditions
// with ? placeholders.
func buildMySQLFilterConditions(tenantID string, filter keysDomain.ListFilter) ([]string, []any) {
	conditions := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if filter.KeyType != nil {
		conditions = append(conditions, "key_type = ?")
		args = append(args, string(*filter.KeyType))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ConversationID != nil {
		conditions = append(conditions, "conversation_id = ?")
		args = append(args, *filter.ConversationID)
	}

	return conditions, args
}
