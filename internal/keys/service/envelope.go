package service

import (
	"crypto/sha256"

	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// EnvelopeService implements the Envelope interface: it protects all key
// material at rest under the process root key.
//
// Sealing uses an AEAD cipher keyed by the root secret with a fresh random IV
// per call, so the same material sealed twice never produces the same output.
// Root secrets longer than 32 bytes are compressed to the cipher key size
// with SHA-256; the derived cipher key lives only inside this service.
type EnvelopeService struct {
	cipherKey   []byte
	algorithm   keysDomain.Algorithm
	aeadManager AEADManager
}

// NewEnvelope creates an EnvelopeService sealing under the given root key
// with the given algorithm.
func NewEnvelope(
	rootKey *keysDomain.RootKey,
	aeadManager AEADManager,
	alg keysDomain.Algorithm,
) (*EnvelopeService, error) {
	sum := sha256.Sum256(rootKey.Key)
	cipherKey := make([]byte, len(sum))
	copy(cipherKey, sum[:])

	// Fail fast on unsupported algorithms instead of at first Seal
	if _, err := aeadManager.CreateCipher(cipherKey, alg); err != nil {
		keysDomain.Zero(cipherKey)
		return nil, err
	}

	return &EnvelopeService{
		cipherKey:   cipherKey,
		algorithm:   alg,
		aeadManager: aeadManager,
	}, nil
}

// Seal encrypts raw key material under the root key with a fresh IV.
func (e *EnvelopeService) Seal(material []byte) (keysDomain.SealedKey, error) {
	aead, err := e.aeadManager.CreateCipher(e.cipherKey, e.algorithm)
	if err != nil {
		return keysDomain.SealedKey{}, err
	}

	ciphertext, iv, authTag, err := aead.Encrypt(material, nil)
	if err != nil {
		return keysDomain.SealedKey{}, err
	}

	return keysDomain.SealedKey{Ciphertext: ciphertext, IV: iv, AuthTag: authTag}, nil
}

// Open decrypts sealed key material. Returns ErrIntegrityCheckFailed and no
// plaintext if the authentication tag does not verify; the underlying cause
// is not disclosed.
func (e *EnvelopeService) Open(sealed keysDomain.SealedKey) ([]byte, error) {
	aead, err := e.aeadManager.CreateCipher(e.cipherKey, e.algorithm)
	if err != nil {
		return nil, err
	}

	material, err := aead.Decrypt(sealed.Ciphertext, sealed.IV, sealed.AuthTag, nil)
	if err != nil {
		return nil, keysDomain.ErrIntegrityCheckFailed
	}
	return material, nil
}

// Close clears the derived cipher key from memory.
func (e *EnvelopeService) Close() {
	keysDomain.Zero(e.cipherKey)
	e.cipherKey = nil
}
