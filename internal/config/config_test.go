package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 25, cfg.DBMaxOpenConnections)
	assert.Equal(t, 5*time.Second, cfg.DBQueryTimeout)
	assert.True(t, cfg.EncryptionEnabled)
	assert.Equal(t, "aes-256-gcm", cfg.DefaultAlgorithm)
	assert.Equal(t, 24*time.Hour, cfg.SessionKeyValidity)
	assert.False(t, cfg.KeyCacheEnabled)
	assert.Equal(t, 5*time.Second, cfg.KeyCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.AutoRotationSweepInterval)
	assert.Equal(t, time.Hour, cfg.ExpirySweepInterval)
	assert.Equal(t, "keycore", cfg.MetricsNamespace)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("ROOT_SECRET", "c2VjcmV0")
	t.Setenv("KMS_KEY_URI", "base64key://")
	t.Setenv("SESSION_KEY_VALIDITY_HOURS", "1")
	t.Setenv("SWEEP_ROTATIONS_PER_SEC", "2.5")
	t.Setenv("ENCRYPTION_ENABLED", "false")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "c2VjcmV0", cfg.RootSecret)
	assert.Equal(t, "base64key://", cfg.KMSKeyURI)
	assert.Equal(t, time.Hour, cfg.SessionKeyValidity)
	assert.Equal(t, 2.5, cfg.SweepRotationsPerSec)
	assert.False(t, cfg.EncryptionEnabled)
}
