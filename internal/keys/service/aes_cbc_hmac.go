package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// AESCBCHMACCipher implements the AEAD interface using AES-256-CBC with an
// HMAC-SHA256 authentication tag (encrypt-then-MAC).
//
// CBC mode provides no integrity on its own, so every ciphertext is
// authenticated with HMAC-SHA256 computed over AAD, IV, and ciphertext.
// The 32-byte key material is expanded into independent encryption and MAC
// subkeys with HKDF-SHA256 so the same bytes never serve both purposes.
//
// Security properties:
//   - 256-bit cipher and MAC subkeys derived from the record key
//   - 16-byte IV (AES block size, randomly generated per encryption)
//   - 32-byte authentication tag
//   - The tag is verified in constant time before any decryption happens
type AESCBCHMACCipher struct {
	encKey []byte
	macKey []byte
}

// NewAESCBCHMAC creates a new AES-256-CBC + HMAC-SHA256 cipher instance.
// The key must be exactly 32 bytes; it is expanded into separate cipher and
// MAC subkeys internally.
func NewAESCBCHMAC(key []byte) (*AESCBCHMACCipher, error) {
	if len(key) != 32 {
		return nil, errors.New("key must be exactly 32 bytes")
	}

	encKey, err := deriveSubKey(key, "keycore/aes-cbc/enc")
	if err != nil {
		return nil, err
	}
	macKey, err := deriveSubKey(key, "keycore/aes-cbc/mac")
	if err != nil {
		return nil, err
	}

	return &AESCBCHMACCipher{encKey: encKey, macKey: macKey}, nil
}

// deriveSubKey expands the record key into a 32-byte labeled subkey.
func deriveSubKey(key []byte, label string) ([]byte, error) {
	reader := hkdf.New(sha256.New, key, nil, []byte(label))
	subKey := make([]byte, 32)
	if _, err := io.ReadFull(reader, subKey); err != nil {
		return nil, fmt.Errorf("failed to derive subkey: %w", err)
	}
	return subKey, nil
}

// Encrypt encrypts plaintext using AES-256-CBC with PKCS#7 padding, then
// authenticates AAD, IV, and ciphertext with HMAC-SHA256. A fresh 16-byte IV
// is generated per call.
func (c *AESCBCHMACCipher) Encrypt(plaintext, aad []byte) (ciphertext, iv, authTag []byte, err error) {
	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	iv = make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, iv, c.tag(ciphertext, iv, aad), nil
}

// Decrypt verifies the HMAC-SHA256 tag in constant time, then decrypts the
// ciphertext. Tag mismatch returns an error before any block is decrypted,
// so no partial plaintext can leak.
func (c *AESCBCHMACCipher) Decrypt(ciphertext, iv, authTag, aad []byte) ([]byte, error) {
	expected := c.tag(ciphertext, iv, aad)
	if subtle.ConstantTimeCompare(expected, authTag) != 1 {
		return nil, errors.New("failed to decrypt: authentication tag mismatch")
	}

	if len(iv) != aes.BlockSize {
		return nil, errors.New("failed to decrypt: invalid iv size")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("failed to decrypt: invalid ciphertext size")
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// tag computes HMAC-SHA256 over aad || iv || ciphertext.
func (c *AESCBCHMACCipher) tag(ciphertext, iv, aad []byte) []byte {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(aad)
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

// pkcs7Pad appends PKCS#7 padding up to the block size.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad strips and validates PKCS#7 padding.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
