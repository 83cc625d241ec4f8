package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// AESGCMCipher implements the AEAD interface using AES-256-GCM
// (Advanced Encryption Standard with Galois/Counter Mode).
//
// Security properties:
//   - 256-bit key size
//   - 12-byte IV (96 bits, randomly generated per encryption)
//   - 16-byte authentication tag, returned separately from the ciphertext
//   - Authenticated encryption prevents tampering and forgery
//
// Thread safety:
//
//	The cipher instance is stateless and safe for concurrent use from multiple
//	goroutines. Each encryption operation generates a unique IV independently.
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates a new AES-256-GCM cipher instance.
//
// The key must be exactly 32 bytes (256 bits) for AES-256. Keys should be
// generated using crypto/rand for cryptographic security.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	if len(key) != 32 {
		return nil, errors.New("key must be exactly 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMCipher{aead: aead}, nil
}

// Encrypt encrypts plaintext using AES-256-GCM with optional additional authenticated data.
//
// A unique 12-byte IV is randomly generated for each encryption operation
// using crypto/rand; with GCM it is critical that IVs are never reused under
// the same key. The 16-byte authentication tag is split off the GCM output
// and returned separately so ciphertext, IV, and tag can be stored as
// independent columns.
func (a *AESGCMCipher) Encrypt(plaintext, aad []byte) (ciphertext, iv, authTag []byte, err error) {
	iv = make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := a.aead.Seal(nil, iv, plaintext, aad)
	tagStart := len(sealed) - a.aead.Overhead()
	return sealed[:tagStart], iv, sealed[tagStart:], nil
}

// Decrypt decrypts ciphertext using AES-256-GCM with the provided IV, tag, and AAD.
//
// The tag is verified before any plaintext is returned; on verification
// failure no bytes are returned, preventing processing of tampered data.
// The same AAD used during encryption must be provided.
func (a *AESGCMCipher) Decrypt(ciphertext, iv, authTag, aad []byte) ([]byte, error) {
	sealed := make([]byte, 0, len(ciphertext)+len(authTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := a.aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
