package service

import (
	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// AEADManagerService implements the AEADManager interface for creating AEAD cipher instances.
type AEADManagerService struct{}

// NewAEADManager creates a new AEADManagerService.
func NewAEADManager() *AEADManagerService {
	return &AEADManagerService{}
}

// CreateCipher creates an AEAD cipher instance for the specified algorithm.
// Returns ErrInvalidKeySize if key is not 32 bytes or ErrUnsupportedAlgorithm if algorithm is unknown.
func (am *AEADManagerService) CreateCipher(key []byte, alg keysDomain.Algorithm) (AEAD, error) {
	// All supported algorithms are 256-bit constructions
	if len(key) != 32 {
		return nil, keysDomain.ErrInvalidKeySize
	}

	switch alg {
	case keysDomain.AESGCM:
		return NewAESGCM(key)
	case keysDomain.AESCBC:
		return NewAESCBCHMAC(key)
	case keysDomain.ChaCha20:
		return NewChaCha20Poly1305(key)
	default:
		return nil, keysDomain.ErrUnsupportedAlgorithm
	}
}
