package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	"github.com/convosec/keycore/internal/testutil"
)

const testQueryTimeout = 5 * time.Second

func newTestAuditRecord(tenantID string, operation auditDomain.Operation, result auditDomain.Result) *auditDomain.AuditRecord {
	return &auditDomain.AuditRecord{
		ID:          uuid.Must(uuid.NewV7()),
		TenantID:    tenantID,
		Operation:   operation,
		Result:      result,
		PerformedBy: "test-operator",
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgreSQLAuditRepository_Create(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLAuditRepository(db, testQueryTimeout)
	ctx := context.Background()

	keyID := uuid.Must(uuid.NewV7())
	keyVersion := uint(3)
	conversationID := "conv-42"

	record := newTestAuditRecord("tenant-1", auditDomain.OperationEncrypt, auditDomain.ResultSuccess)
	record.KeyID = &keyID
	record.KeyVersion = &keyVersion
	record.ConversationID = &conversationID
	record.DataSizeBytes = 1024
	record.DurationMs = 12
	record.Metadata = map[string]any{"algorithm": "aes-256-gcm"}

	err := repo.Create(ctx, record)
	require.NoError(t, err)

	records, err := repo.List(ctx, "tenant-1", auditDomain.Filter{}, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	readRecord := records[0]
	assert.Equal(t, record.ID, readRecord.ID)
	assert.Equal(t, auditDomain.OperationEncrypt, readRecord.Operation)
	assert.Equal(t, auditDomain.ResultSuccess, readRecord.Result)
	require.NotNil(t, readRecord.KeyID)
	assert.Equal(t, keyID, *readRecord.KeyID)
	require.NotNil(t, readRecord.KeyVersion)
	assert.Equal(t, keyVersion, *readRecord.KeyVersion)
	require.NotNil(t, readRecord.ConversationID)
	assert.Equal(t, conversationID, *readRecord.ConversationID)
	assert.Equal(t, int64(1024), readRecord.DataSizeBytes)
	assert.Equal(t, int64(12), readRecord.DurationMs)
	assert.Equal(t, map[string]any{"algorithm": "aes-256-gcm"}, readRecord.Metadata)
}

func TestPostgreSQLAuditRepository_ListFilters(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLAuditRepository(db, testQueryTimeout)
	ctx := context.Background()

	encryptOK := newTestAuditRecord("tenant-1", auditDomain.OperationEncrypt, auditDomain.ResultSuccess)
	require.NoError(t, repo.Create(ctx, encryptOK))

	decryptDenied := newTestAuditRecord("tenant-1", auditDomain.OperationDecrypt, auditDomain.ResultDenied)
	decryptDenied.ErrorMessage = "key revoked"
	require.NoError(t, repo.Create(ctx, decryptDenied))

	otherTenant := newTestAuditRecord("tenant-2", auditDomain.OperationEncrypt, auditDomain.ResultSuccess)
	require.NoError(t, repo.Create(ctx, otherTenant))

	t.Run("filter by operation", func(t *testing.T) {
		operation := auditDomain.OperationDecrypt
		records, err := repo.List(ctx, "tenant-1", auditDomain.Filter{Operation: &operation}, 0, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, decryptDenied.ID, records[0].ID)
	})

	t.Run("filter by result", func(t *testing.T) {
		result := auditDomain.ResultDenied
		count, err := repo.Count(ctx, "tenant-1", auditDomain.Filter{Result: &result})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("filter by time range", func(t *testing.T) {
		future := time.Now().UTC().Add(time.Hour)
		records, err := repo.List(ctx, "tenant-1", auditDomain.Filter{From: &future}, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("tenant isolation", func(t *testing.T) {
		count, err := repo.Count(ctx, "tenant-2", auditDomain.Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestPostgreSQLAuditRepository_Aggregate(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLAuditRepository(db, testQueryTimeout)
	ctx := context.Background()

	encrypt1 := newTestAuditRecord("tenant-1", auditDomain.OperationEncrypt, auditDomain.ResultSuccess)
	encrypt1.DataSizeBytes = 100
	encrypt1.DurationMs = 10
	require.NoError(t, repo.Create(ctx, encrypt1))

	encrypt2 := newTestAuditRecord("tenant-1", auditDomain.OperationEncrypt, auditDomain.ResultSuccess)
	encrypt2.DataSizeBytes = 300
	encrypt2.DurationMs = 30
	require.NoError(t, repo.Create(ctx, encrypt2))

	// Failed encrypt must not count towards encrypted bytes
	encryptFailed := newTestAuditRecord("tenant-1", auditDomain.OperationEncrypt, auditDomain.ResultFailure)
	encryptFailed.DataSizeBytes = 999
	encryptFailed.DurationMs = 20
	require.NoError(t, repo.Create(ctx, encryptFailed))

	since := time.Now().UTC().Add(-time.Hour)
	aggregate, err := repo.Aggregate(ctx, "tenant-1", since)
	require.NoError(t, err)

	assert.Equal(t, int64(400), aggregate.TotalBytesEncrypted)
	assert.InDelta(t, 20.0, aggregate.AvgDurationMs, 0.01)
	require.Len(t, aggregate.OperationCounts, 2)
	assert.Equal(t, auditDomain.ResultFailure, aggregate.OperationCounts[0].Result)
	assert.Equal(t, int64(1), aggregate.OperationCounts[0].Count)
	assert.Equal(t, auditDomain.ResultSuccess, aggregate.OperationCounts[1].Result)
	assert.Equal(t, int64(2), aggregate.OperationCounts[1].Count)
}

func TestMySQLAuditRepository_CreateAndAggregate(t *testing.T) {
	db := testutil.SetupMySQLDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupMySQLDB(t, db)

	repo := NewMySQLAuditRepository(db, testQueryTimeout)
	ctx := context.Background()

	keyID := uuid.Must(uuid.NewV7())
	record := newTestAuditRecord("tenant-1", auditDomain.OperationEncrypt, auditDomain.ResultSuccess)
	record.KeyID = &keyID
	record.DataSizeBytes = 256
	record.DurationMs = 5
	require.NoError(t, repo.Create(ctx, record))

	records, err := repo.List(ctx, "tenant-1", auditDomain.Filter{KeyID: &keyID}, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	require.NotNil(t, records[0].KeyID)
	assert.Equal(t, keyID, *records[0].KeyID)

	since := time.Now().UTC().Add(-time.Hour)
	aggregate, err := repo.Aggregate(ctx, "tenant-1", since)
	require.NoError(t, err)
	assert.Equal(t, int64(256), aggregate.TotalBytesEncrypted)
}
