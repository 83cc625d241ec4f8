package domain

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/convosec/keycore/internal/config"
)

// PlaceholderRootSecret is the base64-encoded development placeholder secret.
// It is accepted (with a warning) outside production so the module works out
// of the box in development, and rejected fatally in production.
const PlaceholderRootSecret = "a2V5Y29yZS1kZXYtcm9vdC1zZWNyZXQtMzJieXRlcyEh" // "keycore-dev-root-secret-32bytes!!"

// minRootSecretBytes is the minimum decoded root secret length.
const minRootSecretBytes = 32

// RootKey is the single trust anchor for the envelope hierarchy. All key
// material at rest is sealed under it. The raw bytes are held only in memory
// and must be cleared with Close when the process shuts down.
type RootKey struct {
	Key []byte
}

// Close clears the root key material from memory.
func (r *RootKey) Close() {
	Zero(r.Key)
	r.Key = nil
}

// KMSKeeper decrypts ciphertext wrapped by an external key management service.
// *gocloud.dev/secrets.Keeper satisfies this interface.
type KMSKeeper interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KMSOpener opens a KMSKeeper for a provider key URI.
type KMSOpener interface {
	OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error)
}

// LoadRootKey loads and validates the root secret from configuration.
//
// The ROOT_SECRET value is base64-encoded. When KMS_KEY_URI is set, the
// decoded value is itself KMS-wrapped and is unwrapped through the provided
// opener before use, so the long-term trust anchor lives in the KMS rather
// than in the environment.
//
// Validation is strict in production: a missing secret, the development
// placeholder, or a decoded length under 32 bytes all fail with a
// ConfigurationError-class error. Outside production a missing secret falls
// back to the placeholder with a warning so local development works without
// setup.
func LoadRootKey(
	ctx context.Context,
	cfg *config.Config,
	opener KMSOpener,
	logger *slog.Logger,
) (*RootKey, error) {
	raw := cfg.RootSecret

	if raw == "" {
		if cfg.IsProduction() {
			return nil, ErrRootSecretNotSet
		}
		logger.Warn("ROOT_SECRET not set, using development placeholder; never do this in production")
		raw = PlaceholderRootSecret
	}

	if raw == PlaceholderRootSecret {
		if cfg.IsProduction() {
			return nil, ErrRootSecretPlaceholder
		}
		if cfg.RootSecret != "" {
			logger.Warn("ROOT_SECRET equals the development placeholder; never do this in production")
		}
	}

	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRootSecretBase64, err)
	}

	// Unwrap through the KMS when configured. The env value then holds only
	// KMS-wrapped bytes, never the secret itself.
	if cfg.KMSKeyURI != "" {
		keeper, err := opener.OpenKeeper(ctx, cfg.KMSKeyURI)
		if err != nil {
			Zero(key)
			return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
		}
		unwrapped, err := keeper.Decrypt(ctx, key)
		Zero(key)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap root secret via KMS: %w", err)
		}
		key = unwrapped
	}

	if len(key) < minRootSecretBytes {
		Zero(key)
		return nil, fmt.Errorf("%w: got %d bytes", ErrRootSecretTooShort, len(key))
	}

	return &RootKey{Key: key}, nil
}
