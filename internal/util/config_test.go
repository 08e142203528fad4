package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenConfig(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := NewTokenConfig()
		require.ErrorIs(t, err, ErrJWTSecretMissing)
	})

	t.Run("short secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "too-short")
		_, err := NewTokenConfig()
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
		t.Setenv("JWT_ISSUER", "")
		t.Setenv("JWT_AUDIENCE", "")

		cfg, err := NewTokenConfig()
		require.NoError(t, err)
		assert.Equal(t, "authservice", cfg.Issuer)
		assert.Equal(t, "authservice-clients", cfg.Audience)
		assert.Equal(t, time.Hour, cfg.AccessTTL)
		assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
		assert.Equal(t, 5*time.Minute, cfg.Leeway)
	})
}

func TestNewSessionConfig(t *testing.T) {
	t.Setenv("LOGIN_PATH", "")
	t.Setenv("ENFORCE_IP_CHECK", "not-a-bool")

	cfg := NewSessionConfig()
	assert.Equal(t, "/login", cfg.LoginPath)
	assert.False(t, cfg.EnforceIPCheck)
	assert.Equal(t, 24*time.Hour, cfg.MaxIdle)

	t.Setenv("ENFORCE_IP_CHECK", "true")
	assert.True(t, NewSessionConfig().EnforceIPCheck)
}

func TestNewRateLimiterConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_LIMIT", "-3")
	t.Setenv("RATE_LIMIT_BACKEND", "Redis")
	t.Setenv("RATE_LIMIT_INTERVAL", "30s")
	t.Setenv("RATE_LIMIT_BLOCK_TIME", "bogus")

	cfg := NewRateLimiterConfig()
	assert.Equal(t, 100, cfg.Limit)
	assert.Equal(t, "redis", cfg.Backend)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 5*time.Minute, cfg.BlockTime)
}

func TestNewStorageConfig(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("STORE_TIMEOUT", "")

	cfg := NewStorageConfig()
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
}

func TestGetBcryptCost(t *testing.T) {
	t.Setenv("BCRYPT_COST", "")
	assert.Zero(t, GetBcryptCost())

	t.Setenv("BCRYPT_COST", "12")
	assert.Equal(t, 12, GetBcryptCost())

	t.Setenv("BCRYPT_COST", "twelve")
	assert.Zero(t, GetBcryptCost())
}
