package domain

import (
	"github.com/convosec/keycore/internal/errors"
)

// Key lifecycle and encryption error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors
// to provide context for cryptographic failures. Callers classify them with
// errors.Is against the base sentinels.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	//
	// Supported algorithms: AESGCM (aes-256-gcm), AESCBC (aes-256-cbc),
	// ChaCha20 (chacha20-poly1305).
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrUnsupportedKeyType indicates an unknown key type was requested.
	ErrUnsupportedKeyType = errors.Wrap(errors.ErrInvalidInput, "unsupported key type")

	// ErrInvalidKeySize indicates the cryptographic key size is invalid.
	// All supported algorithms use 256-bit keys, so only 256 is accepted.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrKeyNotFound indicates no key record matched the lookup.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "key not found")

	// ErrNoActiveKey indicates the logical key line has no ACTIVE version,
	// so it cannot be selected for new encryptions or rotated.
	ErrNoActiveKey = errors.Wrap(errors.ErrNotFound, "no active key")

	// ErrRotationConflict indicates a concurrent rotation or revocation won
	// the race on the same logical key line. Retryable after re-reading
	// current state.
	ErrRotationConflict = errors.Wrap(errors.ErrConflict, "key rotation conflict")

	// ErrAlreadyRevoked indicates a revocation was attempted on a key that is
	// already REVOKED.
	ErrAlreadyRevoked = errors.Wrap(errors.ErrConflict, "key already revoked")

	// ErrKeyRevoked indicates a decrypt was attempted against a REVOKED key.
	// Denied regardless of ciphertext, IV, or tag correctness.
	ErrKeyRevoked = errors.Wrap(errors.ErrInvalidInput, "key is revoked")

	// ErrInvalidTransition indicates a key status change the state machine forbids.
	ErrInvalidTransition = errors.Wrap(errors.ErrConflict, "invalid key status transition")

	// ErrIntegrityCheckFailed indicates an authentication tag mismatch during
	// decryption. No plaintext is ever returned alongside this error. The
	// specific cause (wrong key, tampered ciphertext, corrupted tag) is not
	// disclosed to prevent information leakage.
	ErrIntegrityCheckFailed = errors.Wrap(errors.ErrIntegrity, "decryption failed")

	// ErrSessionNotInitialized indicates a session key exchange was attempted
	// before any session key exists for the conversation.
	ErrSessionNotInitialized = errors.Wrap(errors.ErrNotFound, "session not initialized")

	// ErrEncryptionDisabled indicates the encryption core is disabled by configuration.
	ErrEncryptionDisabled = errors.Wrap(errors.ErrConfiguration, "encryption is disabled")

	// ErrRootSecretNotSet indicates ROOT_SECRET is not configured.
	ErrRootSecretNotSet = errors.Wrap(errors.ErrConfiguration, "root secret not set")

	// ErrRootSecretTooShort indicates the decoded root secret is shorter than 32 bytes.
	ErrRootSecretTooShort = errors.Wrap(errors.ErrConfiguration, "root secret must be at least 32 bytes")

	// ErrRootSecretPlaceholder indicates the root secret equals the known
	// development placeholder, which is forbidden in production.
	ErrRootSecretPlaceholder = errors.Wrap(errors.ErrConfiguration, "root secret is the development placeholder")

	// ErrInvalidRootSecretBase64 indicates the root secret is not valid base64.
	ErrInvalidRootSecretBase64 = errors.Wrap(errors.ErrConfiguration, "root secret is not valid base64")
)
