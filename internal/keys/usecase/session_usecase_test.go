package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	apperrors "github.com/convosec/keycore/internal/errors"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

func TestSessionUseCase_InitSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CreatesSessionKey", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		info, err := session.InitSession(ctx, testTenantID, "conv-42")
		require.NoError(t, err)

		assert.Equal(t, "conv-42", info.ConversationID)
		assert.Equal(t, keysDomain.KeyStatusActive, info.Status)
		assert.Equal(t, uint(1), info.Version)
		assert.NotEmpty(t, info.Fingerprint)
		assert.NotNil(t, info.ValidUntil)
	})

	t.Run("Success_Idempotent", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		first, err := session.InitSession(ctx, testTenantID, "conv-42")
		require.NoError(t, err)
		second, err := session.InitSession(ctx, testTenantID, "conv-42")
		require.NoError(t, err)

		assert.Equal(t, first.KeyID, second.KeyID)
		assert.Equal(t, first.Fingerprint, second.Fingerprint)
	})

	t.Run("Success_DistinctPerConversation", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		first, err := session.InitSession(ctx, testTenantID, "conv-1")
		require.NoError(t, err)
		second, err := session.InitSession(ctx, testTenantID, "conv-2")
		require.NoError(t, err)

		assert.NotEqual(t, first.KeyID, second.KeyID)
	})

	t.Run("Error_EmptyConversation", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		_, err := session.InitSession(ctx, testTenantID, "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestSessionUseCase_Exchange(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		created, err := session.InitSession(ctx, testTenantID, "conv-42")
		require.NoError(t, err)

		info, err := session.Exchange(ctx, testTenantID, "conv-42")
		require.NoError(t, err)
		assert.Equal(t, created.KeyID, info.KeyID)
		assert.Equal(t, created.Fingerprint, info.Fingerprint)

		records := env.audit.byOperation(auditDomain.OperationSessionKeyExchange)
		require.Len(t, records, 1)
		assert.Equal(t, auditDomain.ResultSuccess, records[0].Result)
		assert.Equal(t, created.Fingerprint, records[0].Metadata["fingerprint"])
	})

	t.Run("Error_NotInitialized", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		_, err := session.Exchange(ctx, testTenantID, "conv-42")
		assert.ErrorIs(t, err, keysDomain.ErrSessionNotInitialized)

		records := env.audit.byOperation(auditDomain.OperationSessionKeyExchange)
		require.Len(t, records, 1)
		assert.Equal(t, auditDomain.ResultFailure, records[0].Result)
	})

	t.Run("Error_RevokedSessionKey", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		created, err := session.InitSession(ctx, testTenantID, "conv-42")
		require.NoError(t, err)
		_, err = env.lifecycle.RevokeKey(ctx, testTenantID, created.KeyID, "device lost", "tester")
		require.NoError(t, err)

		_, err = session.Exchange(ctx, testTenantID, "conv-42")
		assert.ErrorIs(t, err, keysDomain.ErrSessionNotInitialized)
	})

	t.Run("Error_EmptyConversation", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		_, err := session.Exchange(ctx, testTenantID, "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestSessionUseCase_GetSessionInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		created, err := session.InitSession(ctx, testTenantID, "conv-42")
		require.NoError(t, err)

		info, err := session.GetSessionInfo(ctx, testTenantID, "conv-42")
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, created.KeyID, info.KeyID)
	})

	t.Run("Success_NilWhenAbsent", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.newSession()

		info, err := session.GetSessionInfo(ctx, testTenantID, "conv-42")
		require.NoError(t, err)
		assert.Nil(t, info)

		// Read-only lookups leave no audit trail
		assert.Empty(t, env.audit.byOperation(auditDomain.OperationSessionKeyExchange))
	})
}
