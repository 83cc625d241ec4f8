package commands

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
	keysUseCase "github.com/convosec/keycore/internal/keys/usecase"
)

// RunDecrypt authenticates and decrypts a base64-encoded {ciphertext, iv,
// auth_tag} triple and prints the plaintext. A version of 0 means the record
// addressed by the key id itself; any other version addresses that version of
// the key's logical line, so data encrypted before a rotation stays readable.
func RunDecrypt(
	ctx context.Context,
	tenantID, keyIDStr string,
	version int,
	ciphertextB64, ivB64, authTagB64 string,
) error {
	keyID, err := parseKeyID(keyIDStr)
	if err != nil {
		return err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return fmt.Errorf("invalid base64 ciphertext: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return fmt.Errorf("invalid base64 iv: %w", err)
	}
	authTag, err := base64.StdEncoding.DecodeString(authTagB64)
	if err != nil {
		return fmt.Errorf("invalid base64 auth tag: %w", err)
	}

	input := keysUseCase.DecryptInput{
		KeyID:      keyID,
		Ciphertext: ciphertext,
		IV:         iv,
		AuthTag:    authTag,
	}
	if version > 0 {
		keyVersion := uint(version)
		input.KeyVersion = &keyVersion
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	encryption, err := container.EncryptionUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize encryption use case: %w", err)
	}

	plaintext, err := encryption.Decrypt(ctx, tenantID, input)
	if err != nil {
		return fmt.Errorf("failed to decrypt: %w", err)
	}

	fmt.Println(string(plaintext))
	return nil
}
