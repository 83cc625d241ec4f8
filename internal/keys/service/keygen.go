package service

import (
	"crypto/rand"
	"fmt"

	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

// KeyGeneratorService implements KeyGenerator using crypto/rand.
type KeyGeneratorService struct{}

// NewKeyGenerator creates a new KeyGeneratorService.
func NewKeyGenerator() *KeyGeneratorService {
	return &KeyGeneratorService{}
}

// Generate returns bits/8 bytes of cryptographically secure random key
// material. All supported algorithms are 256-bit constructions, so only
// 256-bit material is accepted.
func (g *KeyGeneratorService) Generate(bits int) ([]byte, error) {
	if bits != keysDomain.DefaultKeyLengthBits {
		return nil, fmt.Errorf("%w: %d bits", keysDomain.ErrInvalidKeySize, bits)
	}

	material := make([]byte, bits/8)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	return material, nil
}
