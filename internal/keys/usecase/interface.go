// Package usecase implements the key lifecycle, encryption operation, and
// session key business logic.
//
// Use cases orchestrate the domain state machine, the envelope service, and
// the repositories. Every operation is audited through an AuditRecorder;
// audit writes are best-effort and never fail the primary operation.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/convosec/keycore/internal/audit/domain"
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// KeyRepository defines key record persistence operations.
type KeyRepository interface {
	Create(ctx context.Context, key *keysDomain.KeyRecord) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*keysDomain.KeyRecord, error)
	GetByIDAndVersion(ctx context.Context, tenantID string, id uuid.UUID, version uint) (*keysDomain.KeyRecord, error)
	GetActive(ctx context.Context, tenantID string, keyType keysDomain.KeyType, conversationID *string) (*keysDomain.KeyRecord, error)
	List(ctx context.Context, tenantID string, filter keysDomain.ListFilter, offset, limit int) ([]*keysDomain.KeyRecord, error)
	Count(ctx context.Context, tenantID string, filter keysDomain.ListFilter) (int64, error)
	UpdateStatus(ctx context.Context, key *keysDomain.KeyRecord, from keysDomain.KeyStatus) error
	BulkExpire(ctx context.Context, now time.Time) (int64, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
	ListAutoRotationDue(ctx context.Context, now time.Time, limit int) ([]*keysDomain.KeyRecord, error)
}

// AuditRecorder appends one entry to the audit trail. Implementations fill
// in the record id and timestamp and must swallow persistence failures.
type AuditRecorder interface {
	Record(ctx context.Context, record *auditDomain.AuditRecord) error
}

// CreateKeyInput carries the parameters for creating the first version of a
// logical key line.
type CreateKeyInput struct {
	Name                 string
	KeyType              keysDomain.KeyType
	Algorithm            keysDomain.Algorithm
	KeyLengthBits        int
	ConversationID       *string
	ValidDays            int
	AutoRotate           bool
	RotationIntervalDays int
	Metadata             map[string]any
	CreatedBy            string
}

// RotateKeyOptions tunes a rotation.
type RotateKeyOptions struct {
	// Reason is recorded in the audit trail (e.g. "Manual rotation",
	// "Auto rotation").
	Reason string
	// ExpireOldImmediately retires the old version as EXPIRED instead of
	// ROTATED and stamps its valid_until.
	ExpireOldImmediately bool
	// PerformedBy identifies the actor for the audit trail.
	PerformedBy string
}

// LifecycleUseCase manages key creation, rotation, revocation, and reads.
type LifecycleUseCase interface {
	CreateKey(ctx context.Context, tenantID string, input CreateKeyInput) (*keysDomain.KeyRecord, error)
	RotateKey(ctx context.Context, tenantID string, keyID uuid.UUID, opts RotateKeyOptions) (*keysDomain.KeyRecord, error)
	RevokeKey(ctx context.Context, tenantID string, keyID uuid.UUID, reason, performedBy string) (*keysDomain.KeyRecord, error)
	GetKey(ctx context.Context, tenantID string, keyID uuid.UUID) (*keysDomain.KeyRecord, error)
	ListKeys(ctx context.Context, tenantID string, filter keysDomain.ListFilter, offset, limit int) ([]*keysDomain.KeyRecord, int64, error)
	ResolveActiveKey(ctx context.Context, tenantID string, keyType keysDomain.KeyType, conversationID *string) (*keysDomain.KeyRecord, error)
	ExpireDueKeys(ctx context.Context, now time.Time) (int64, error)
	ListAutoRotationDue(ctx context.Context, now time.Time, limit int) ([]*keysDomain.KeyRecord, error)
}

// EncryptTarget selects the key for an encryption. Exactly one field should
// be set; with neither set the tenant's default DATA key is used.
type EncryptTarget struct {
	KeyID          *uuid.UUID
	ConversationID *string
}

// EncryptOutput is the result of an encryption operation. The caller must
// resubmit Ciphertext, IV, and AuthTag verbatim to decrypt.
type EncryptOutput struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
	KeyID      uuid.UUID
	KeyVersion uint
	Algorithm  keysDomain.Algorithm
}

// DecryptInput identifies the key and carries the three-part ciphertext.
// KeyVersion selects an older version of the key line when set.
type DecryptInput struct {
	KeyID      uuid.UUID
	KeyVersion *uint
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// EncryptionUseCase performs encrypt and decrypt operations with managed keys.
type EncryptionUseCase interface {
	Encrypt(ctx context.Context, tenantID string, plaintext []byte, target EncryptTarget) (*EncryptOutput, error)
	Decrypt(ctx context.Context, tenantID string, input DecryptInput) ([]byte, error)
	// IsEnabled reports whether encryption operations are enabled for this
	// deployment. When false every Encrypt and Decrypt returns
	// ErrEncryptionDisabled.
	IsEnabled() bool
}

// SessionInfo is the shareable metadata of a session key. It never contains
// key material.
type SessionInfo struct {
	KeyID          uuid.UUID
	ConversationID string
	Fingerprint    string
	Algorithm      keysDomain.Algorithm
	Version        uint
	Status         keysDomain.KeyStatus
	ValidFrom      time.Time
	ValidUntil     *time.Time
}

// SessionUseCase brokers per-conversation session keys.
type SessionUseCase interface {
	InitSession(ctx context.Context, tenantID, conversationID string) (*SessionInfo, error)
	Exchange(ctx context.Context, tenantID, conversationID string) (*SessionInfo, error)
	GetSessionInfo(ctx context.Context, tenantID, conversationID string) (*SessionInfo, error)
}
