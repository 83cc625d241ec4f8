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

func TestEncryptionUseCase_Encrypt(t *testing.T) {
	ctx := context.Background()
	plaintext := []byte("the contents of a private message")

	t.Run("Success_DefaultDataKey", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)

		output, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		require.NoError(t, err)

		assert.NotEmpty(t, output.Ciphertext)
		assert.NotEmpty(t, output.IV)
		assert.NotEmpty(t, output.AuthTag)
		assert.NotEqual(t, plaintext, output.Ciphertext)
		assert.Equal(t, keysDomain.AESGCM, output.Algorithm)
		assert.Equal(t, uint(1), output.KeyVersion)

		// The default data key was created on demand and its usage counted
		key, err := env.lifecycle.GetKey(ctx, testTenantID, output.KeyID)
		require.NoError(t, err)
		assert.Equal(t, defaultDataKeyName, key.Name)
		assert.Equal(t, int64(1), key.UsageCount)

		records := env.audit.byOperation(auditDomain.OperationEncrypt)
		require.Len(t, records, 1)
		assert.Equal(t, auditDomain.ResultSuccess, records[0].Result)
		assert.Equal(t, int64(len(plaintext)), records[0].DataSizeBytes)
	})

	t.Run("Success_FreshIVPerCall", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)

		first, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		require.NoError(t, err)
		second, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		require.NoError(t, err)

		assert.NotEqual(t, first.IV, second.IV)
		assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
	})

	t.Run("Success_ConversationKey", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)
		conversationID := "conv-42"

		output, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{ConversationID: &conversationID})
		require.NoError(t, err)

		key, err := env.lifecycle.GetKey(ctx, testTenantID, output.KeyID)
		require.NoError(t, err)
		assert.Equal(t, keysDomain.KeyTypeSession, key.KeyType)
		require.NotNil(t, key.ConversationID)
		assert.Equal(t, conversationID, *key.ConversationID)
	})

	t.Run("Success_ExplicitKey", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)
		key := createDataKey(t, env)

		output, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{KeyID: &key.ID})
		require.NoError(t, err)
		assert.Equal(t, key.ID, output.KeyID)
	})

	t.Run("Error_ExplicitKeyNotActive", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)
		key := createDataKey(t, env)

		_, err := env.lifecycle.RevokeKey(ctx, testTenantID, key.ID, "compromised", "tester")
		require.NoError(t, err)

		_, err = encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{KeyID: &key.ID})
		assert.ErrorIs(t, err, keysDomain.ErrNoActiveKey)
	})

	t.Run("Error_BothKeyAndConversation", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)
		key := createDataKey(t, env)
		conversationID := "conv-42"

		_, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{
			KeyID:          &key.ID,
			ConversationID: &conversationID,
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_Disabled", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, false)
		assert.False(t, encryption.IsEnabled())

		_, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		assert.ErrorIs(t, err, keysDomain.ErrEncryptionDisabled)
	})
}

func TestEncryptionUseCase_Decrypt(t *testing.T) {
	ctx := context.Background()
	plaintext := []byte("the contents of a private message")

	t.Run("Success_RoundTrip", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)

		output, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		require.NoError(t, err)

		decrypted, err := encryption.Decrypt(ctx, testTenantID, DecryptInput{
			KeyID:      output.KeyID,
			Ciphertext: output.Ciphertext,
			IV:         output.IV,
			AuthTag:    output.AuthTag,
		})
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("Success_OldVersionAfterRotation", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)

		output, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		require.NoError(t, err)

		rotated, err := env.lifecycle.RotateKey(ctx, testTenantID, output.KeyID, RotateKeyOptions{PerformedBy: "tester"})
		require.NoError(t, err)

		// Version-addressed decrypt still reaches the retired material, even
		// through the new record's id
		version := output.KeyVersion
		decrypted, err := encryption.Decrypt(ctx, testTenantID, DecryptInput{
			KeyID:      rotated.ID,
			KeyVersion: &version,
			Ciphertext: output.Ciphertext,
			IV:         output.IV,
			AuthTag:    output.AuthTag,
		})
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("Error_TamperedCiphertext", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)

		output, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		require.NoError(t, err)
		output.Ciphertext[0] ^= 0x01

		decrypted, err := encryption.Decrypt(ctx, testTenantID, DecryptInput{
			KeyID:      output.KeyID,
			Ciphertext: output.Ciphertext,
			IV:         output.IV,
			AuthTag:    output.AuthTag,
		})
		assert.ErrorIs(t, err, keysDomain.ErrIntegrityCheckFailed)
		assert.Nil(t, decrypted)
	})

	t.Run("Error_TamperedAuthTag", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)

		output, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		require.NoError(t, err)
		output.AuthTag[0] ^= 0x01

		decrypted, err := encryption.Decrypt(ctx, testTenantID, DecryptInput{
			KeyID:      output.KeyID,
			Ciphertext: output.Ciphertext,
			IV:         output.IV,
			AuthTag:    output.AuthTag,
		})
		assert.ErrorIs(t, err, keysDomain.ErrIntegrityCheckFailed)
		assert.Nil(t, decrypted)

		records := env.audit.byOperation(auditDomain.OperationDecrypt)
		require.Len(t, records, 1)
		assert.Equal(t, auditDomain.ResultFailure, records[0].Result)
	})

	t.Run("Error_RevokedKeyDenied", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)

		output, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		require.NoError(t, err)

		_, err = env.lifecycle.RevokeKey(ctx, testTenantID, output.KeyID, "compromised", "tester")
		require.NoError(t, err)

		decrypted, err := encryption.Decrypt(ctx, testTenantID, DecryptInput{
			KeyID:      output.KeyID,
			Ciphertext: output.Ciphertext,
			IV:         output.IV,
			AuthTag:    output.AuthTag,
		})
		assert.ErrorIs(t, err, keysDomain.ErrKeyRevoked)
		assert.Nil(t, decrypted)

		records := env.audit.byOperation(auditDomain.OperationDecrypt)
		require.Len(t, records, 1)
		assert.Equal(t, auditDomain.ResultDenied, records[0].Result)
	})

	t.Run("Error_OtherTenant", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, true)

		output, err := encryption.Encrypt(ctx, testTenantID, plaintext, EncryptTarget{})
		require.NoError(t, err)

		_, err = encryption.Decrypt(ctx, "tenant-2", DecryptInput{
			KeyID:      output.KeyID,
			Ciphertext: output.Ciphertext,
			IV:         output.IV,
			AuthTag:    output.AuthTag,
		})
		assert.ErrorIs(t, err, keysDomain.ErrKeyNotFound)
	})

	t.Run("Error_Disabled", func(t *testing.T) {
		env := newTestEnv(t)
		encryption := env.newEncryption(t, false)

		_, err := encryption.Decrypt(ctx, testTenantID, DecryptInput{})
		assert.ErrorIs(t, err, keysDomain.ErrEncryptionDisabled)
	})
}
