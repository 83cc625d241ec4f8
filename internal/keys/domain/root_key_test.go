package domain

import (
	"context"
	"encoding/base64"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convosec/keycore/internal/config"
)

type fakeKeeper struct {
	plaintext []byte
	err       error
}

func (f *fakeKeeper) Decrypt(_ context.Context, _ []byte) ([]byte, error) {
	return f.plaintext, f.err
}

type fakeOpener struct {
	keeper *fakeKeeper
	err    error
	uri    string
}

func (f *fakeOpener) OpenKeeper(_ context.Context, keyURI string) (KMSKeeper, error) {
	f.uri = keyURI
	if f.err != nil {
		return nil, f.err
	}
	return f.keeper, nil
}

func validSecret() string {
	return base64.StdEncoding.EncodeToString([]byte("an-extremely-secret-32-byte-value"))
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestLoadRootKey(t *testing.T) {
	ctx := context.Background()

	t.Run("loads valid secret", func(t *testing.T) {
		cfg := &config.Config{Environment: "production", RootSecret: validSecret()}
		rootKey, err := LoadRootKey(ctx, cfg, &fakeOpener{}, testLogger())
		require.NoError(t, err)
		defer rootKey.Close()
		assert.GreaterOrEqual(t, len(rootKey.Key), 32)
	})

	t.Run("production fails without secret", func(t *testing.T) {
		cfg := &config.Config{Environment: "production"}
		_, err := LoadRootKey(ctx, cfg, &fakeOpener{}, testLogger())
		assert.ErrorIs(t, err, ErrRootSecretNotSet)
	})

	t.Run("production rejects placeholder", func(t *testing.T) {
		cfg := &config.Config{Environment: "production", RootSecret: PlaceholderRootSecret}
		_, err := LoadRootKey(ctx, cfg, &fakeOpener{}, testLogger())
		assert.ErrorIs(t, err, ErrRootSecretPlaceholder)
	})

	t.Run("development falls back to placeholder", func(t *testing.T) {
		cfg := &config.Config{Environment: "development"}
		rootKey, err := LoadRootKey(ctx, cfg, &fakeOpener{}, testLogger())
		require.NoError(t, err)
		defer rootKey.Close()
		assert.GreaterOrEqual(t, len(rootKey.Key), 32)
	})

	t.Run("rejects short secret", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString([]byte("too-short"))
		cfg := &config.Config{Environment: "production", RootSecret: short}
		_, err := LoadRootKey(ctx, cfg, &fakeOpener{}, testLogger())
		assert.ErrorIs(t, err, ErrRootSecretTooShort)
	})

	t.Run("rejects invalid base64", func(t *testing.T) {
		cfg := &config.Config{Environment: "production", RootSecret: "not base64!!"}
		_, err := LoadRootKey(ctx, cfg, &fakeOpener{}, testLogger())
		assert.ErrorIs(t, err, ErrInvalidRootSecretBase64)
	})

	t.Run("unwraps via KMS when configured", func(t *testing.T) {
		unwrapped := []byte("an-extremely-secret-32-byte-value")
		opener := &fakeOpener{keeper: &fakeKeeper{plaintext: unwrapped}}
		cfg := &config.Config{
			Environment: "production",
			RootSecret:  base64.StdEncoding.EncodeToString([]byte("kms-wrapped-blob")),
			KMSKeyURI:   "base64key://test",
		}

		rootKey, err := LoadRootKey(ctx, cfg, opener, testLogger())
		require.NoError(t, err)
		defer rootKey.Close()

		assert.Equal(t, "base64key://test", opener.uri)
		assert.Equal(t, unwrapped, rootKey.Key)
	})

	t.Run("KMS unwrap failure surfaces", func(t *testing.T) {
		opener := &fakeOpener{err: assert.AnError}
		cfg := &config.Config{
			Environment: "production",
			RootSecret:  validSecret(),
			KMSKeyURI:   "awskms://broken",
		}
		_, err := LoadRootKey(ctx, cfg, opener, testLogger())
		assert.Error(t, err)
	})
}

func TestRootKey_Close(t *testing.T) {
	rootKey := &RootKey{Key: []byte{1, 2, 3}}
	rootKey.Close()
	assert.Nil(t, rootKey.Key)
}
