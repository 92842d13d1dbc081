package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "./data/vault", cfg.DBPath)
	assert.Equal(t, float64(50), cfg.RateLimitRPS)
	assert.Equal(t, time.Hour, cfg.ReceiptMaxAge)
	assert.Empty(t, cfg.ReceiptKeyPath)
	assert.True(t, cfg.IsDev())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VAULT_LISTEN_ADDR", ":9999")
	t.Setenv("VAULT_STATIC_PRICE", "52123")
	t.Setenv("VAULT_ATTESTATION_MAX_AGE", "90s")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, int64(52123), cfg.StaticPrice)
	assert.Equal(t, 90*time.Second, cfg.AttestationMaxAge)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.env")
	require.NoError(t, os.WriteFile(path, []byte("VAULT_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("VAULT_LOG_LEVEL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("VAULT_ENV", "production")
	_, err := Load("")
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("VAULT_JWT_SECRET", "s3cret")
	t.Setenv("VAULT_PRICE_FEED_URL", "http://feed")
	t.Setenv("VAULT_STATIC_PRICE", "1")
	_, err = Load("")
	assert.ErrorContains(t, err, "only one")
}
