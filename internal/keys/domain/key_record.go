// Package domain defines the core domain models for the key lifecycle and
// encryption core.
//
// It implements a two-tier envelope hierarchy: Root Key → KeyRecord → Data.
// Every KeyRecord's raw material is sealed under the root key before it is
// persisted; the plaintext exists only transiently in memory during seal/open
// and crypto operations. Key status follows a forward-only state machine so
// rotation, expiry, and revocation can run concurrently without ever needing
// to undo a transition.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KeyType classifies the purpose of a logical key line.
type KeyType string

const (
	// KeyTypeMaster is reserved for operator-managed root-adjacent keys.
	KeyTypeMaster KeyType = "master"
	// KeyTypeData is the tenant's default key for protecting stored data.
	KeyTypeData KeyType = "data"
	// KeyTypeSession is an ephemeral per-conversation end-to-end key.
	KeyTypeSession KeyType = "session"
	// KeyTypeBackup protects backup archives.
	KeyTypeBackup KeyType = "backup"
)

// ParseKeyType converts a string into a supported KeyType.
func ParseKeyType(s string) (KeyType, error) {
	switch KeyType(s) {
	case KeyTypeMaster, KeyTypeData, KeyTypeSession, KeyTypeBackup:
		return KeyType(s), nil
	default:
		return "", fmt.Errorf("%w: unknown key type %q", ErrUnsupportedKeyType, s)
	}
}

// AllowsImplicitCreation reports whether a missing ACTIVE key of this type may
// be created on demand by an encryption or session operation.
func (k KeyType) AllowsImplicitCreation() bool {
	return k == KeyTypeData || k == KeyTypeSession
}

// KeyStatus is the lifecycle state of a KeyRecord.
//
// Transitions are forward-only:
//
//	ACTIVE  → ROTATED | EXPIRED | REVOKED
//	ROTATED → REVOKED
//	EXPIRED → REVOKED
//	REVOKED is terminal
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRotated KeyStatus = "rotated"
	KeyStatusExpired KeyStatus = "expired"
	KeyStatusRevoked KeyStatus = "revoked"
)

// statusTransitions is the single declared transition table for key status.
// All status changes must go through KeyRecord.Transition so illegal
// transitions are rejected in one place.
var statusTransitions = map[KeyStatus][]KeyStatus{
	KeyStatusActive:  {KeyStatusRotated, KeyStatusExpired, KeyStatusRevoked},
	KeyStatusRotated: {KeyStatusRevoked},
	KeyStatusExpired: {KeyStatusRevoked},
	KeyStatusRevoked: {},
}

// CanTransitionTo reports whether the status may move to next.
func (s KeyStatus) CanTransitionTo(next KeyStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanEncrypt reports whether new encryptions may use a key in this status.
func (s KeyStatus) CanEncrypt() bool {
	return s == KeyStatusActive
}

// CanDecrypt reports whether decryption is permitted for a key in this status.
// Revoked keys are denied regardless of ciphertext correctness.
func (s KeyStatus) CanDecrypt() bool {
	switch s {
	case KeyStatusActive, KeyStatusRotated, KeyStatusExpired:
		return true
	default:
		return false
	}
}

// SealedKey is the output of sealing raw key material under the root key.
// The three parts are stored as separate columns and must be resubmitted
// verbatim to open the material again.
type SealedKey struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// KeyRecord is one version of a logical key line identified by
// (tenant, name, key type, optional conversation ID).
//
// The raw key material is never stored: EncryptedKey, IV, and AuthTag hold
// the sealed form produced by the envelope. Fingerprint is a short,
// non-reversible identifier derived from the raw material for operator-facing
// correlation.
type KeyRecord struct {
	ID               uuid.UUID // Unique identifier (UUIDv7)
	TenantID         string
	Name             string
	KeyType          KeyType
	ConversationID   *string // Set for session keys only
	Status           KeyStatus
	Algorithm        Algorithm
	KeyLengthBits    int
	EncryptedKey     []byte
	IV               []byte
	AuthTag          []byte
	Version          uint // Starts at 1, strictly increasing per logical line
	Fingerprint      string
	ValidFrom        time.Time
	ValidUntil       *time.Time
	RotatedAt        *time.Time
	RevokedAt        *time.Time
	RevocationReason string
	CreatedBy        string

	// Rotation policy as first-class columns; Metadata is free-form and is
	// never queried for policy decisions.
	AutoRotate           bool
	RotationIntervalDays int
	UsageCount           int64
	Metadata             map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sealed returns the stored sealed form of the key material.
func (k *KeyRecord) Sealed() SealedKey {
	return SealedKey{Ciphertext: k.EncryptedKey, IV: k.IV, AuthTag: k.AuthTag}
}

// Transition moves the record to the next status, stamping the relevant
// timestamps. Returns ErrInvalidTransition if the state machine forbids it.
func (k *KeyRecord) Transition(next KeyStatus, now time.Time) error {
	if !k.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, k.Status, next)
	}

	switch next {
	case KeyStatusRotated, KeyStatusExpired:
		k.RotatedAt = &now
	case KeyStatusRevoked:
		k.RevokedAt = &now
	}

	k.Status = next
	k.UpdatedAt = now
	return nil
}

// ExpiredAt reports whether the record's validity window has passed.
func (k *KeyRecord) ExpiredAt(now time.Time) bool {
	return k.ValidUntil != nil && k.ValidUntil.Before(now)
}

// AutoRotationDueAt reports whether the rotation policy calls for rotation.
// Only ACTIVE keys with AutoRotate set and a positive interval are candidates.
func (k *KeyRecord) AutoRotationDueAt(now time.Time) bool {
	if k.Status != KeyStatusActive || !k.AutoRotate || k.RotationIntervalDays <= 0 {
		return false
	}
	age := now.Sub(k.CreatedAt)
	return age >= time.Duration(k.RotationIntervalDays)*24*time.Hour
}
