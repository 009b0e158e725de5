package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/vitalchain")
	t.Setenv("JWT_SECRET", "\"session-secret\"")
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("OKX_API_KEY", "okx-key")
	t.Setenv("OKX_SECRET_KEY", "okx-secret")
	t.Setenv("OKX_PASSPHRASE", "okx-pass")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "session-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.Auth.LoginWindow)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 15*time.Second, cfg.OKX.Timeout)
	assert.Equal(t, int64(5<<20), cfg.Uploads.MaxSize)
	assert.Equal(t, 10<<20, cfg.Server.MaxRequestSize)
}

func TestLoadFailsFastOnMissingSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("OKX_PASSPHRASE", "  ")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "JWT_SECRET"))
	assert.True(t, strings.Contains(err.Error(), "OKX_PASSPHRASE"))
}

func TestLoadTestEnvSkipsSecrets(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.NoError(t, err)
}

func TestLoadRejectsRequestLimitBelowUploadLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_REQUEST_SIZE_MB", "2")

	_, err := Load()
	assert.Error(t, err)
}
