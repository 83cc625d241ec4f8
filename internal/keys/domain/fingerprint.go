package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintLength is the fixed length of a key fingerprint in hex characters.
const FingerprintLength = 16

// Fingerprint derives a short, non-reversible identifier from raw key
// material. It is safe to log and store: the truncated SHA-256 prefix cannot
// be inverted to recover the key, and 64 bits is enough for operator-facing
// correlation.
func Fingerprint(material []byte) string {
	sum := sha256.Sum256(material)
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}
