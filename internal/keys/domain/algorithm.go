package domain

import (
	"fmt"
)

// Algorithm represents the cryptographic algorithm used for encryption.
//
// All supported algorithms produce an authenticated {ciphertext, iv, authTag}
// triple, ensuring both confidentiality and tamper detection. AES-256-GCM and
// ChaCha20-Poly1305 are native AEAD constructions; AES-256-CBC is combined
// with an HMAC-SHA256 tag (encrypt-then-MAC) so it offers the same guarantees.
//
// Algorithm selection guidelines:
//   - Use AESGCM on modern CPUs with AES-NI hardware acceleration
//   - Use ChaCha20 on mobile devices or systems without AES-NI
//   - AESCBC exists for interoperability with data encrypted by older clients
type Algorithm string

const (
	// AESGCM represents the AES-256-GCM authenticated encryption algorithm.
	//
	// AES-GCM (Advanced Encryption Standard in Galois/Counter Mode) combines
	// AES encryption with GMAC authentication. It uses a 256-bit key, a
	// 12-byte IV, and a 16-byte authentication tag, and benefits from AES-NI
	// hardware acceleration on modern CPUs.
	AESGCM Algorithm = "aes-256-gcm"

	// AESCBC represents AES-256-CBC with an HMAC-SHA256 authentication tag.
	//
	// CBC mode provides no integrity on its own, so ciphertexts are
	// authenticated with HMAC-SHA256 over IV and ciphertext (encrypt-then-MAC).
	// The 256-bit record key is expanded via HKDF-SHA256 into separate cipher
	// and MAC subkeys. Uses a 16-byte IV and a 32-byte tag.
	AESCBC Algorithm = "aes-256-cbc"

	// ChaCha20 represents the ChaCha20-Poly1305 authenticated encryption algorithm.
	//
	// ChaCha20-Poly1305 combines the ChaCha20 stream cipher with the Poly1305
	// MAC. It uses a 256-bit key, a 12-byte IV, and a 16-byte tag, performs
	// well without hardware acceleration, and runs in constant time.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// DefaultKeyLengthBits is the key size used when a key spec does not name one.
const DefaultKeyLengthBits = 256

// ParseAlgorithm converts a string into a supported Algorithm.
// Returns ErrUnsupportedAlgorithm for unknown values.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM, AESCBC, ChaCha20:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}
