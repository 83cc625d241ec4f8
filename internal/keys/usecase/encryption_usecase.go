package usecase

import (
	"context"
	"log/slog"
	"time"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	apperrors "github.com/convosec/keycore/internal/errors"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
	keysService "github.com/convosec/keycore/internal/keys/service"
)

type encryptionUseCase struct {
	keyRepo     KeyRepository
	lifecycle   LifecycleUseCase
	envelope    keysService.Envelope
	aeadManager keysService.AEADManager
	audit       AuditRecorder
	logger      *slog.Logger
	enabled     bool
}

// NewEncryptionUseCase creates the encryption operation use case. With
// enabled false every Encrypt and Decrypt returns ErrEncryptionDisabled.
func NewEncryptionUseCase(
	keyRepo KeyRepository,
	lifecycle LifecycleUseCase,
	envelope keysService.Envelope,
	aeadManager keysService.AEADManager,
	audit AuditRecorder,
	logger *slog.Logger,
	enabled bool,
) EncryptionUseCase {
	return &encryptionUseCase{
		keyRepo:     keyRepo,
		lifecycle:   lifecycle,
		envelope:    envelope,
		aeadManager: aeadManager,
		audit:       audit,
		logger:      logger,
		enabled:     enabled,
	}
}

// IsEnabled reports whether encryption operations are enabled.
func (e *encryptionUseCase) IsEnabled() bool {
	return e.enabled
}

// Encrypt encrypts plaintext under the resolved key with a fresh IV. The
// caller can never supply an IV. The target selects an explicit key, a
// conversation's session key, or (with an empty target) the tenant's default
// DATA key; DATA and SESSION keys are created on demand.
func (e *encryptionUseCase) Encrypt(
	ctx context.Context,
	tenantID string,
	plaintext []byte,
	target EncryptTarget,
) (*EncryptOutput, error) {
	if !e.enabled {
		return nil, keysDomain.ErrEncryptionDisabled
	}
	start := time.Now()

	key, err := e.resolveEncryptionKey(ctx, tenantID, target)
	if err != nil {
		e.auditOperation(ctx, tenantID, auditDomain.OperationEncrypt, auditDomain.ResultFailure, nil, target.ConversationID, 0, start, err)
		return nil, err
	}

	ciphertext, iv, authTag, err := e.runCipher(key, func(aead keysService.AEAD) ([]byte, []byte, []byte, error) {
		return aead.Encrypt(plaintext, nil)
	})
	if err != nil {
		e.auditOperation(ctx, tenantID, auditDomain.OperationEncrypt, auditDomain.ResultFailure, key, target.ConversationID, 0, start, err)
		return nil, err
	}

	// Usage counting is informational, a failed bump never fails the encrypt
	if err := e.keyRepo.IncrementUsage(ctx, key.ID); err != nil {
		e.logger.WarnContext(ctx, "failed to increment key usage count",
			slog.String("key_id", key.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	e.auditOperation(ctx, tenantID, auditDomain.OperationEncrypt, auditDomain.ResultSuccess, key, target.ConversationID, int64(len(plaintext)), start, nil)

	return &EncryptOutput{
		Ciphertext: ciphertext,
		IV:         iv,
		AuthTag:    authTag,
		KeyID:      key.ID,
		KeyVersion: key.Version,
		Algorithm:  key.Algorithm,
	}, nil
}

// Decrypt authenticates and decrypts a three-part ciphertext. Revoked keys
// are denied before any cryptography happens; a tampered ciphertext or tag
// returns ErrIntegrityCheckFailed and no plaintext.
func (e *encryptionUseCase) Decrypt(
	ctx context.Context,
	tenantID string,
	input DecryptInput,
) ([]byte, error) {
	if !e.enabled {
		return nil, keysDomain.ErrEncryptionDisabled
	}
	start := time.Now()

	var key *keysDomain.KeyRecord
	var err error
	if input.KeyVersion != nil {
		key, err = e.keyRepo.GetByIDAndVersion(ctx, tenantID, input.KeyID, *input.KeyVersion)
	} else {
		key, err = e.keyRepo.GetByID(ctx, tenantID, input.KeyID)
	}
	if err != nil {
		e.auditOperation(ctx, tenantID, auditDomain.OperationDecrypt, auditDomain.ResultFailure, nil, nil, 0, start, err)
		return nil, err
	}

	if !key.Status.CanDecrypt() {
		err := keysDomain.ErrKeyRevoked
		e.auditOperation(ctx, tenantID, auditDomain.OperationDecrypt, auditDomain.ResultDenied, key, nil, 0, start, err)
		return nil, err
	}

	var plaintext []byte
	_, _, _, err = e.runCipher(key, func(aead keysService.AEAD) ([]byte, []byte, []byte, error) {
		var decryptErr error
		plaintext, decryptErr = aead.Decrypt(input.Ciphertext, input.IV, input.AuthTag, nil)
		return nil, nil, nil, decryptErr
	})
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrIntegrity) {
			err = keysDomain.ErrIntegrityCheckFailed
		}
		e.auditOperation(ctx, tenantID, auditDomain.OperationDecrypt, auditDomain.ResultFailure, key, nil, 0, start, err)
		return nil, err
	}

	e.auditOperation(ctx, tenantID, auditDomain.OperationDecrypt, auditDomain.ResultSuccess, key, nil, int64(len(plaintext)), start, nil)
	return plaintext, nil
}

// resolveEncryptionKey picks the key record for an encrypt target and
// verifies it may encrypt.
func (e *encryptionUseCase) resolveEncryptionKey(
	ctx context.Context,
	tenantID string,
	target EncryptTarget,
) (*keysDomain.KeyRecord, error) {
	if target.KeyID != nil && target.ConversationID != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "specify either a key id or a conversation id, not both")
	}

	switch {
	case target.KeyID != nil:
		key, err := e.keyRepo.GetByID(ctx, tenantID, *target.KeyID)
		if err != nil {
			return nil, err
		}
		if !key.Status.CanEncrypt() {
			return nil, apperrors.Wrap(keysDomain.ErrNoActiveKey, "key is not active")
		}
		return key, nil
	case target.ConversationID != nil:
		return e.lifecycle.ResolveActiveKey(ctx, tenantID, keysDomain.KeyTypeSession, target.ConversationID)
	default:
		return e.lifecycle.ResolveActiveKey(ctx, tenantID, keysDomain.KeyTypeData, nil)
	}
}

// runCipher opens the record's sealed material, builds the cipher, runs fn,
// and zeroes the material before returning.
func (e *encryptionUseCase) runCipher(
	key *keysDomain.KeyRecord,
	fn func(aead keysService.AEAD) ([]byte, []byte, []byte, error),
) ([]byte, []byte, []byte, error) {
	material, err := e.envelope.Open(key.Sealed())
	if err != nil {
		return nil, nil, nil, err
	}
	defer keysDomain.Zero(material)

	aead, err := e.aeadManager.CreateCipher(material, key.Algorithm)
	if err != nil {
		return nil, nil, nil, err
	}

	return fn(aead)
}

// auditOperation writes one audit entry for an encrypt/decrypt attempt.
func (e *encryptionUseCase) auditOperation(
	ctx context.Context,
	tenantID string,
	operation auditDomain.Operation,
	result auditDomain.Result,
	key *keysDomain.KeyRecord,
	conversationID *string,
	dataSize int64,
	start time.Time,
	cause error,
) {
	record := &auditDomain.AuditRecord{
		TenantID:       tenantID,
		Operation:      operation,
		Result:         result,
		ConversationID: conversationID,
		DataSizeBytes:  dataSize,
		DurationMs:     time.Since(start).Milliseconds(),
	}
	if key != nil {
		record.KeyID = &key.ID
		record.KeyVersion = &key.Version
		if record.ConversationID == nil {
			record.ConversationID = key.ConversationID
		}
	}
	if cause != nil {
		record.ErrorMessage = cause.Error()
	}
	_ = e.audit.Record(ctx, record)
}
