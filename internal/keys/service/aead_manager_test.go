package service

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	keysDomain "github.com/convosec/keycore/internal/keys/domain"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestAEADManager_CreateCipher(t *testing.T) {
	manager := NewAEADManager()
	key := randomKey(t)

	t.Run("creates AES-GCM cipher", func(t *testing.T) {
		aead, err := manager.CreateCipher(key, keysDomain.AESGCM)
		require.NoError(t, err)
		assert.IsType(t, &AESGCMCipher{}, aead)
	})

	t.Run("creates AES-CBC cipher", func(t *testing.T) {
		aead, err := manager.CreateCipher(key, keysDomain.AESCBC)
		require.NoError(t, err)
		assert.IsType(t, &AESCBCHMACCipher{}, aead)
	})

	t.Run("creates ChaCha20-Poly1305 cipher", func(t *testing.T) {
		aead, err := manager.CreateCipher(key, keysDomain.ChaCha20)
		require.NoError(t, err)
		assert.IsType(t, &ChaCha20Poly1305Cipher{}, aead)
	})

	t.Run("rejects invalid key size", func(t *testing.T) {
		_, err := manager.CreateCipher(make([]byte, 16), keysDomain.AESGCM)
		assert.ErrorIs(t, err, keysDomain.ErrInvalidKeySize)
	})

	t.Run("rejects unsupported algorithm", func(t *testing.T) {
		_, err := manager.CreateCipher(key, keysDomain.Algorithm("des-ede3"))
		assert.ErrorIs(t, err, keysDomain.ErrUnsupportedAlgorithm)
	})
}

func TestAEAD_RoundTrip(t *testing.T) {
	manager := NewAEADManager()
	plaintext := []byte("conversation payload that must survive a round trip")
	aad := []byte("tenant-1")

	for _, alg := range []keysDomain.Algorithm{keysDomain.AESGCM, keysDomain.AESCBC, keysDomain.ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			aead, err := manager.CreateCipher(randomKey(t), alg)
			require.NoError(t, err)

			ciphertext, iv, authTag, err := aead.Encrypt(plaintext, aad)
			require.NoError(t, err)
			assert.NotEmpty(t, iv)
			assert.NotEmpty(t, authTag)
			assert.NotEqual(t, plaintext, ciphertext)

			decrypted, err := aead.Decrypt(ciphertext, iv, authTag, aad)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		})
	}
}

func TestAEAD_EmptyPlaintext(t *testing.T) {
	manager := NewAEADManager()

	for _, alg := range []keysDomain.Algorithm{keysDomain.AESGCM, keysDomain.AESCBC, keysDomain.ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			aead, err := manager.CreateCipher(randomKey(t), alg)
			require.NoError(t, err)

			ciphertext, iv, authTag, err := aead.Encrypt(nil, nil)
			require.NoError(t, err)

			decrypted, err := aead.Decrypt(ciphertext, iv, authTag, nil)
			require.NoError(t, err)
			assert.Empty(t, decrypted)
		})
	}
}

func TestAEAD_FreshIVPerCall(t *testing.T) {
	manager := NewAEADManager()
	plaintext := []byte("same input twice")

	for _, alg := range []keysDomain.Algorithm{keysDomain.AESGCM, keysDomain.AESCBC, keysDomain.ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			aead, err := manager.CreateCipher(randomKey(t), alg)
			require.NoError(t, err)

			ct1, iv1, _, err := aead.Encrypt(plaintext, nil)
			require.NoError(t, err)
			ct2, iv2, _, err := aead.Encrypt(plaintext, nil)
			require.NoError(t, err)

			assert.NotEqual(t, iv1, iv2)
			assert.NotEqual(t, ct1, ct2)
		})
	}
}

func TestAEAD_TamperDetection(t *testing.T) {
	manager := NewAEADManager()
	plaintext := []byte("tamper with me")

	for _, alg := range []keysDomain.Algorithm{keysDomain.AESGCM, keysDomain.AESCBC, keysDomain.ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			aead, err := manager.CreateCipher(randomKey(t), alg)
			require.NoError(t, err)

			ciphertext, iv, authTag, err := aead.Encrypt(plaintext, nil)
			require.NoError(t, err)

			t.Run("flipped ciphertext bit", func(t *testing.T) {
				tampered := make([]byte, len(ciphertext))
				copy(tampered, ciphertext)
				tampered[0] ^= 0x01

				decrypted, err := aead.Decrypt(tampered, iv, authTag, nil)
				assert.Error(t, err)
				assert.Nil(t, decrypted)
			})

			t.Run("flipped tag bit", func(t *testing.T) {
				tampered := make([]byte, len(authTag))
				copy(tampered, authTag)
				tampered[len(tampered)-1] ^= 0x80

				decrypted, err := aead.Decrypt(ciphertext, iv, tampered, nil)
				assert.Error(t, err)
				assert.Nil(t, decrypted)
			})

			t.Run("wrong aad", func(t *testing.T) {
				decrypted, err := aead.Decrypt(ciphertext, iv, authTag, []byte("other"))
				assert.Error(t, err)
				assert.Nil(t, decrypted)
			})
		})
	}
}

func TestAEAD_WrongKey(t *testing.T) {
	manager := NewAEADManager()

	for _, alg := range []keysDomain.Algorithm{keysDomain.AESGCM, keysDomain.AESCBC, keysDomain.ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			aead1, err := manager.CreateCipher(randomKey(t), alg)
			require.NoError(t, err)
			aead2, err := manager.CreateCipher(randomKey(t), alg)
			require.NoError(t, err)

			ciphertext, iv, authTag, err := aead1.Encrypt([]byte("secret"), nil)
			require.NoError(t, err)

			decrypted, err := aead2.Decrypt(ciphertext, iv, authTag, nil)
			assert.Error(t, err)
			assert.Nil(t, decrypted)
		})
	}
}
