// Package service provides cryptographic services for the key lifecycle core.
// Implements authenticated ciphers (AES-256-GCM, AES-256-CBC+HMAC,
// ChaCha20-Poly1305) and the master key envelope that seals key material at rest.
package service

import (
	"context"

	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// AEAD defines the interface for authenticated encryption.
//
// Encrypt always generates a fresh random IV internally; callers can never
// supply one, which structurally prevents IV reuse under a key. The
// authentication tag is returned separately from the ciphertext so the three
// parts can be stored and transmitted as independent opaque byte strings.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext,
	// the generated IV, and the authentication tag.
	Encrypt(plaintext, aad []byte) (ciphertext, iv, authTag []byte, err error)

	// Decrypt decrypts ciphertext using the provided IV, tag, and AAD.
	// Tag verification failure returns an error and no plaintext bytes.
	Decrypt(ciphertext, iv, authTag, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg keysDomain.Algorithm) (AEAD, error)
}

// Envelope seals and opens raw key material under the root key. It is the
// trust anchor for all persisted key material.
type Envelope interface {
	// Seal encrypts raw key material with a fresh IV.
	Seal(material []byte) (keysDomain.SealedKey, error)

	// Open decrypts sealed key material. Returns ErrIntegrityCheckFailed and
	// zero bytes if the authentication tag does not verify.
	Open(sealed keysDomain.SealedKey) ([]byte, error)
}

// KeyGenerator produces cryptographically random key material.
type KeyGenerator interface {
	// Generate returns bits/8 bytes of CSPRNG output.
	// Returns ErrInvalidKeySize for unsupported sizes.
	Generate(bits int) ([]byte, error)
}

// KMSService opens keepers for unwrapping the root secret via an external KMS.
type KMSService interface {
	// OpenKeeper opens a keeper for the configured KMS provider.
	// Returns an error if the KMS provider URI is invalid or connection fails.
	OpenKeeper(ctx context.Context, keyURI string) (keysDomain.KMSKeeper, error)
}
