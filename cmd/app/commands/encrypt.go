package commands

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/convosec/keycore/internal/app"
	"github.com/convosec/keycore/internal/config"
	keysUseCase "github.com/convosec/keycore/internal/keys/usecase"
)

// RunEncrypt encrypts a plaintext and prints the {ciphertext, iv, auth_tag}
// triple base64-encoded, together with the key id and version that produced
// it. With no key id or conversation id the tenant's default DATA key is used
// and created on demand.
func RunEncrypt(ctx context.Context, tenantID, keyIDStr, conversationID, plaintext string) error {
	var target keysUseCase.EncryptTarget
	if keyIDStr != "" {
		keyID, err := parseKeyID(keyIDStr)
		if err != nil {
			return err
		}
		target.KeyID = &keyID
	}
	if conversationID != "" {
		target.ConversationID = &conversationID
	}

	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	encryption, err := container.EncryptionUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize encryption use case: %w", err)
	}

	output, err := encryption.Encrypt(ctx, tenantID, []byte(plaintext), target)
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}

	printJSON(map[string]any{
		"ciphertext":  base64.StdEncoding.EncodeToString(output.Ciphertext),
		"iv":          base64.StdEncoding.EncodeToString(output.IV),
		"auth_tag":    base64.StdEncoding.EncodeToString(output.AuthTag),
		"key_id":      output.KeyID,
		"key_version": output.KeyVersion,
		"algorithm":   output.Algorithm,
	})
	return nil
}
