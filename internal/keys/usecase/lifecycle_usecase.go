package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	"github.com/convosec/keycore/internal/database"
	apperrors "github.com/convosec/keycore/internal/errors"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
	keysService "github.com/convosec/keycore/internal/keys/service"
	appValidation "github.com/convosec/keycore/internal/validation"
)

const (
	// defaultDataKeyName names the implicitly created tenant DATA key line.
	defaultDataKeyName = "default-data-key"
	// maxRotationReasonLength bounds the free-text rotation/revocation reason.
	maxRotationReasonLength = 1024
)

type lifecycleUseCase struct {
	txManager          database.TxManager
	keyRepo            KeyRepository
	keyGen             keysService.KeyGenerator
	envelope           keysService.Envelope
	audit              AuditRecorder
	logger             *slog.Logger
	defaultAlgorithm   keysDomain.Algorithm
	sessionKeyValidity time.Duration
}

// NewLifecycleUseCase creates the key lifecycle use case.
func NewLifecycleUseCase(
	txManager database.TxManager,
	keyRepo KeyRepository,
	keyGen keysService.KeyGenerator,
	envelope keysService.Envelope,
	audit AuditRecorder,
	logger *slog.Logger,
	defaultAlgorithm keysDomain.Algorithm,
	sessionKeyValidity time.Duration,
) LifecycleUseCase {
	return &lifecycleUseCase{
		txManager:          txManager,
		keyRepo:            keyRepo,
		keyGen:             keyGen,
		envelope:           envelope,
		audit:              audit,
		logger:             logger,
		defaultAlgorithm:   defaultAlgorithm,
		sessionKeyValidity: sessionKeyValidity,
	}
}

func (l *lifecycleUseCase) validateCreateKeyInput(tenantID string, input CreateKeyInput) error {
	if err := validation.Validate(tenantID,
		validation.Required.Error("tenant id is required"),
		appValidation.TenantID,
		validation.Length(1, 255).Error("tenant id must be between 1 and 255 characters"),
	); err != nil {
		return appValidation.WrapValidationError(err)
	}

	err := validation.ValidateStruct(&input,
		validation.Field(&input.Name,
			validation.Required.Error("name is required"),
			appValidation.KeyName,
			validation.Length(1, 255).Error("name must be between 1 and 255 characters"),
		),
		validation.Field(&input.ValidDays,
			validation.Min(0).Error("valid days cannot be negative"),
		),
		validation.Field(&input.RotationIntervalDays,
			validation.Min(0).Error("rotation interval cannot be negative"),
		),
	)
	if err != nil {
		return appValidation.WrapValidationError(err)
	}

	if _, err := keysDomain.ParseKeyType(string(input.KeyType)); err != nil {
		return err
	}
	if input.KeyType == keysDomain.KeyTypeSession && input.ConversationID == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "session keys require a conversation id")
	}
	if input.KeyType != keysDomain.KeyTypeSession && input.ConversationID != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "conversation id is only valid for session keys")
	}
	if input.AutoRotate && input.RotationIntervalDays == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "auto rotation requires a rotation interval")
	}
	return nil
}

// CreateKey generates fresh key material, seals it under the root key, and
// persists version 1 of a new logical key line in ACTIVE status.
func (l *lifecycleUseCase) CreateKey(
	ctx context.Context,
	tenantID string,
	input CreateKeyInput,
) (*keysDomain.KeyRecord, error) {
	if err := l.validateCreateKeyInput(tenantID, input); err != nil {
		return nil, err
	}

	if input.Algorithm == "" {
		input.Algorithm = l.defaultAlgorithm
	} else if _, err := keysDomain.ParseAlgorithm(string(input.Algorithm)); err != nil {
		return nil, err
	}
	if input.KeyLengthBits == 0 {
		input.KeyLengthBits = keysDomain.DefaultKeyLengthBits
	}

	key, err := l.buildKeyRecord(tenantID, input, 1)
	if err != nil {
		l.recordAudit(ctx, tenantID, auditDomain.OperationKeyGenerate, auditDomain.ResultFailure, nil, input.CreatedBy, err)
		return nil, err
	}

	if err := l.keyRepo.Create(ctx, key); err != nil {
		l.recordAudit(ctx, tenantID, auditDomain.OperationKeyGenerate, auditDomain.ResultFailure, nil, input.CreatedBy, err)
		return nil, err
	}

	record := l.newAuditRecord(tenantID, auditDomain.OperationKeyGenerate, auditDomain.ResultSuccess, key, input.CreatedBy)
	record.Metadata = map[string]any{"fingerprint": key.Fingerprint}
	_ = l.audit.Record(ctx, record)

	return key, nil
}

// buildKeyRecord generates material, seals it, and assembles a KeyRecord.
// The raw material is zeroed before returning.
func (l *lifecycleUseCase) buildKeyRecord(
	tenantID string,
	input CreateKeyInput,
	version uint,
) (*keysDomain.KeyRecord, error) {
	material, err := l.keyGen.Generate(input.KeyLengthBits)
	if err != nil {
		return nil, err
	}
	defer keysDomain.Zero(material)

	sealed, err := l.envelope.Seal(material)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key := &keysDomain.KeyRecord{
		ID:                   uuid.Must(uuid.NewV7()),
		TenantID:             tenantID,
		Name:                 input.Name,
		KeyType:              input.KeyType,
		ConversationID:       input.ConversationID,
		Status:               keysDomain.KeyStatusActive,
		Algorithm:            input.Algorithm,
		KeyLengthBits:        input.KeyLengthBits,
		EncryptedKey:         sealed.Ciphertext,
		IV:                   sealed.IV,
		AuthTag:              sealed.AuthTag,
		Version:              version,
		Fingerprint:          keysDomain.Fingerprint(material),
		ValidFrom:            now,
		CreatedBy:            input.CreatedBy,
		AutoRotate:           input.AutoRotate,
		RotationIntervalDays: input.RotationIntervalDays,
		Metadata:             input.Metadata,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if input.ValidDays > 0 {
		validUntil := now.Add(time.Duration(input.ValidDays) * 24 * time.Hour)
		key.ValidUntil = &validUntil
	}

	return key, nil
}

// RotateKey retires the current ACTIVE version of the key line and creates
// the next version with fresh material, atomically. A concurrent rotation or
// revocation surfaces as ErrRotationConflict; callers may retry and will then
// observe the winner's new version.
func (l *lifecycleUseCase) RotateKey(
	ctx context.Context,
	tenantID string,
	keyID uuid.UUID,
	opts RotateKeyOptions,
) (*keysDomain.KeyRecord, error) {
	var newKey *keysDomain.KeyRecord
	var oldKey *keysDomain.KeyRecord

	err := l.txManager.WithTx(ctx, func(txCtx context.Context) error {
		current, err := l.keyRepo.GetByID(txCtx, tenantID, keyID)
		if err != nil {
			return err
		}
		if current.Status != keysDomain.KeyStatusActive {
			return keysDomain.ErrRotationConflict
		}

		now := time.Now().UTC()
		retiredStatus := keysDomain.KeyStatusRotated
		if opts.ExpireOldImmediately {
			retiredStatus = keysDomain.KeyStatusExpired
			current.ValidUntil = &now
		}
		if err := current.Transition(retiredStatus, now); err != nil {
			return err
		}

		if err := l.keyRepo.UpdateStatus(txCtx, current, keysDomain.KeyStatusActive); err != nil {
			if apperrors.Is(err, apperrors.ErrConflict) {
				return keysDomain.ErrRotationConflict
			}
			return err
		}

		next, err := l.buildKeyRecord(tenantID, CreateKeyInput{
			Name:                 current.Name,
			KeyType:              current.KeyType,
			Algorithm:            current.Algorithm,
			KeyLengthBits:        current.KeyLengthBits,
			ConversationID:       current.ConversationID,
			AutoRotate:           current.AutoRotate,
			RotationIntervalDays: current.RotationIntervalDays,
			Metadata:             current.Metadata,
			CreatedBy:            opts.PerformedBy,
		}, current.Version+1)
		if err != nil {
			return err
		}

		if err := l.keyRepo.Create(txCtx, next); err != nil {
			return err
		}

		oldKey = current
		newKey = next
		return nil
	})
	if err != nil {
		l.recordAudit(ctx, tenantID, auditDomain.OperationKeyRotate, auditDomain.ResultFailure, nil, opts.PerformedBy, err)
		return nil, err
	}

	record := l.newAuditRecord(tenantID, auditDomain.OperationKeyRotate, auditDomain.ResultSuccess, newKey, opts.PerformedBy)
	record.Metadata = map[string]any{
		"reason":          opts.Reason,
		"old_version":     oldKey.Version,
		"new_version":     newKey.Version,
		"old_fingerprint": oldKey.Fingerprint,
		"new_fingerprint": newKey.Fingerprint,
	}
	_ = l.audit.Record(ctx, record)

	return newKey, nil
}

// RevokeKey moves a key to the terminal REVOKED status. Revoking an already
// revoked key returns ErrAlreadyRevoked; any other concurrent status change
// surfaces as ErrRotationConflict.
func (l *lifecycleUseCase) RevokeKey(
	ctx context.Context,
	tenantID string,
	keyID uuid.UUID,
	reason, performedBy string,
) (*keysDomain.KeyRecord, error) {
	if len(reason) > maxRotationReasonLength {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "revocation reason too long")
	}

	key, err := l.keyRepo.GetByID(ctx, tenantID, keyID)
	if err != nil {
		l.recordAudit(ctx, tenantID, auditDomain.OperationKeyRevoke, auditDomain.ResultFailure, nil, performedBy, err)
		return nil, err
	}
	if key.Status == keysDomain.KeyStatusRevoked {
		return nil, keysDomain.ErrAlreadyRevoked
	}

	from := key.Status
	now := time.Now().UTC()
	if err := key.Transition(keysDomain.KeyStatusRevoked, now); err != nil {
		return nil, err
	}
	key.RevocationReason = reason

	if err := l.keyRepo.UpdateStatus(ctx, key, from); err != nil {
		if apperrors.Is(err, apperrors.ErrConflict) {
			// Lost the race: report precisely whether the winner revoked it
			if current, getErr := l.keyRepo.GetByID(ctx, tenantID, keyID); getErr == nil &&
				current.Status == keysDomain.KeyStatusRevoked {
				return nil, keysDomain.ErrAlreadyRevoked
			}
			err = keysDomain.ErrRotationConflict
		}
		l.recordAudit(ctx, tenantID, auditDomain.OperationKeyRevoke, auditDomain.ResultFailure, key, performedBy, err)
		return nil, err
	}

	record := l.newAuditRecord(tenantID, auditDomain.OperationKeyRevoke, auditDomain.ResultSuccess, key, performedBy)
	record.Metadata = map[string]any{"reason": reason}
	_ = l.audit.Record(ctx, record)

	return key, nil
}

// GetKey retrieves one key record by id.
func (l *lifecycleUseCase) GetKey(
	ctx context.Context,
	tenantID string,
	keyID uuid.UUID,
) (*keysDomain.KeyRecord, error) {
	return l.keyRepo.GetByID(ctx, tenantID, keyID)
}

// ListKeys retrieves a page of key records and the total count for the filter.
func (l *lifecycleUseCase) ListKeys(
	ctx context.Context,
	tenantID string,
	filter keysDomain.ListFilter,
	offset, limit int,
) ([]*keysDomain.KeyRecord, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	keys, err := l.keyRepo.List(ctx, tenantID, filter, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	count, err := l.keyRepo.Count(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	return keys, count, nil
}

// ResolveActiveKey returns the single ACTIVE record for a logical key line,
// creating it on demand for key types that allow implicit creation (DATA and
// SESSION). A creation race against a concurrent resolver is settled by the
// uniqueness constraint: the loser re-reads the winner's key.
func (l *lifecycleUseCase) ResolveActiveKey(
	ctx context.Context,
	tenantID string,
	keyType keysDomain.KeyType,
	conversationID *string,
) (*keysDomain.KeyRecord, error) {
	key, err := l.keyRepo.GetActive(ctx, tenantID, keyType, conversationID)
	if err == nil {
		return key, nil
	}
	if !apperrors.Is(err, keysDomain.ErrNoActiveKey) || !keyType.AllowsImplicitCreation() {
		return nil, err
	}
	if keyType == keysDomain.KeyTypeSession && conversationID == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "session keys require a conversation id")
	}

	input := CreateKeyInput{
		Name:      defaultDataKeyName,
		KeyType:   keyType,
		Algorithm: l.defaultAlgorithm,
		CreatedBy: "system",
	}
	if keyType == keysDomain.KeyTypeSession {
		input.Name = fmt.Sprintf("session-%s", *conversationID)
		input.ConversationID = conversationID
		input.ValidDays = int(l.sessionKeyValidity.Hours() / 24)
		if input.ValidDays == 0 {
			input.ValidDays = 1
		}
	}

	key, err = l.CreateKey(ctx, tenantID, input)
	if err != nil {
		// A concurrent resolver may have created the key first
		if created, getErr := l.keyRepo.GetActive(ctx, tenantID, keyType, conversationID); getErr == nil {
			return created, nil
		}
		return nil, err
	}

	l.logger.InfoContext(ctx, "implicitly created key",
		slog.String("tenant_id", tenantID),
		slog.String("key_type", string(keyType)),
		slog.String("key_id", key.ID.String()),
	)
	return key, nil
}

// ExpireDueKeys bulk-transitions ACTIVE keys past their validity window to
// EXPIRED. Idempotent.
func (l *lifecycleUseCase) ExpireDueKeys(ctx context.Context, now time.Time) (int64, error) {
	return l.keyRepo.BulkExpire(ctx, now)
}

// ListAutoRotationDue lists ACTIVE keys whose rotation policy is due.
func (l *lifecycleUseCase) ListAutoRotationDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*keysDomain.KeyRecord, error) {
	return l.keyRepo.ListAutoRotationDue(ctx, now, limit)
}

// newAuditRecord assembles a success audit record referencing a key.
func (l *lifecycleUseCase) newAuditRecord(
	tenantID string,
	operation auditDomain.Operation,
	result auditDomain.Result,
	key *keysDomain.KeyRecord,
	performedBy string,
) *auditDomain.AuditRecord {
	record := &auditDomain.AuditRecord{
		TenantID:    tenantID,
		Operation:   operation,
		Result:      result,
		PerformedBy: performedBy,
	}
	if key != nil {
		record.KeyID = &key.ID
		record.KeyVersion = &key.Version
		record.ConversationID = key.ConversationID
	}
	return record
}

// recordAudit writes a failure-path audit record with a sanitized message.
func (l *lifecycleUseCase) recordAudit(
	ctx context.Context,
	tenantID string,
	operation auditDomain.Operation,
	result auditDomain.Result,
	key *keysDomain.KeyRecord,
	performedBy string,
	cause error,
) {
	record := l.newAuditRecord(tenantID, operation, result, key, performedBy)
	if cause != nil {
		record.ErrorMessage = cause.Error()
	}
	_ = l.audit.Record(ctx, record)
}
