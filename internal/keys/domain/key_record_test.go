package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    KeyStatus
		to      KeyStatus
		allowed bool
	}{
		{KeyStatusActive, KeyStatusRotated, true},
		{KeyStatusActive, KeyStatusExpired, true},
		{KeyStatusActive, KeyStatusRevoked, true},
		{KeyStatusRotated, KeyStatusRevoked, true},
		{KeyStatusExpired, KeyStatusRevoked, true},
		{KeyStatusRotated, KeyStatusActive, false},
		{KeyStatusExpired, KeyStatusActive, false},
		{KeyStatusRevoked, KeyStatusActive, false},
		{KeyStatusRevoked, KeyStatusRotated, false},
		{KeyStatusRevoked, KeyStatusExpired, false},
		{KeyStatusRotated, KeyStatusExpired, false},
		{KeyStatusExpired, KeyStatusRotated, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestKeyStatus_CanEncrypt(t *testing.T) {
	assert.True(t, KeyStatusActive.CanEncrypt())
	assert.False(t, KeyStatusRotated.CanEncrypt())
	assert.False(t, KeyStatusExpired.CanEncrypt())
	assert.False(t, KeyStatusRevoked.CanEncrypt())
}

func TestKeyStatus_CanDecrypt(t *testing.T) {
	assert.True(t, KeyStatusActive.CanDecrypt())
	assert.True(t, KeyStatusRotated.CanDecrypt())
	assert.True(t, KeyStatusExpired.CanDecrypt())
	assert.False(t, KeyStatusRevoked.CanDecrypt())
}

func TestKeyRecord_Transition(t *testing.T) {
	now := time.Now().UTC()

	t.Run("active to rotated stamps rotatedAt", func(t *testing.T) {
		record := &KeyRecord{Status: KeyStatusActive}
		err := record.Transition(KeyStatusRotated, now)
		require.NoError(t, err)
		assert.Equal(t, KeyStatusRotated, record.Status)
		require.NotNil(t, record.RotatedAt)
		assert.Equal(t, now, *record.RotatedAt)
		assert.Equal(t, now, record.UpdatedAt)
	})

	t.Run("active to revoked stamps revokedAt", func(t *testing.T) {
		record := &KeyRecord{Status: KeyStatusActive}
		err := record.Transition(KeyStatusRevoked, now)
		require.NoError(t, err)
		assert.Equal(t, KeyStatusRevoked, record.Status)
		require.NotNil(t, record.RevokedAt)
		assert.Equal(t, now, *record.RevokedAt)
	})

	t.Run("revoked is terminal", func(t *testing.T) {
		record := &KeyRecord{Status: KeyStatusRevoked}
		for _, next := range []KeyStatus{KeyStatusActive, KeyStatusRotated, KeyStatusExpired, KeyStatusRevoked} {
			err := record.Transition(next, now)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
		assert.Equal(t, KeyStatusRevoked, record.Status)
	})

	t.Run("transitions never revert", func(t *testing.T) {
		record := &KeyRecord{Status: KeyStatusRotated}
		err := record.Transition(KeyStatusActive, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestKeyRecord_ExpiredAt(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.False(t, (&KeyRecord{}).ExpiredAt(now))
	assert.True(t, (&KeyRecord{ValidUntil: &past}).ExpiredAt(now))
	assert.False(t, (&KeyRecord{ValidUntil: &future}).ExpiredAt(now))
}

func TestKeyRecord_AutoRotationDueAt(t *testing.T) {
	now := time.Now().UTC()

	t.Run("due when older than interval", func(t *testing.T) {
		record := &KeyRecord{
			Status:               KeyStatusActive,
			AutoRotate:           true,
			RotationIntervalDays: 30,
			CreatedAt:            now.Add(-31 * 24 * time.Hour),
		}
		assert.True(t, record.AutoRotationDueAt(now))
	})

	t.Run("not due when younger than interval", func(t *testing.T) {
		record := &KeyRecord{
			Status:               KeyStatusActive,
			AutoRotate:           true,
			RotationIntervalDays: 30,
			CreatedAt:            now.Add(-24 * time.Hour),
		}
		assert.False(t, record.AutoRotationDueAt(now))
	})

	t.Run("never due without autoRotate", func(t *testing.T) {
		record := &KeyRecord{
			Status:               KeyStatusActive,
			RotationIntervalDays: 30,
			CreatedAt:            now.Add(-365 * 24 * time.Hour),
		}
		assert.False(t, record.AutoRotationDueAt(now))
	})

	t.Run("never due for non-active status", func(t *testing.T) {
		record := &KeyRecord{
			Status:               KeyStatusRotated,
			AutoRotate:           true,
			RotationIntervalDays: 30,
			CreatedAt:            now.Add(-365 * 24 * time.Hour),
		}
		assert.False(t, record.AutoRotationDueAt(now))
	})
}

func TestParseKeyType(t *testing.T) {
	for _, valid := range []string{"master", "data", "session", "backup"} {
		kt, err := ParseKeyType(valid)
		require.NoError(t, err)
		assert.Equal(t, KeyType(valid), kt)
	}

	_, err := ParseKeyType("ephemeral")
	assert.ErrorIs(t, err, ErrUnsupportedKeyType)
}

func TestKeyType_AllowsImplicitCreation(t *testing.T) {
	assert.True(t, KeyTypeData.AllowsImplicitCreation())
	assert.True(t, KeyTypeSession.AllowsImplicitCreation())
	assert.False(t, KeyTypeMaster.AllowsImplicitCreation())
	assert.False(t, KeyTypeBackup.AllowsImplicitCreation())
}

func TestParseAlgorithm(t *testing.T) {
	for _, valid := range []string{"aes-256-gcm", "aes-256-cbc", "chacha20-poly1305"} {
		alg, err := ParseAlgorithm(valid)
		require.NoError(t, err)
		assert.Equal(t, Algorithm(valid), alg)
	}

	_, err := ParseAlgorithm("des-ede3")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}
