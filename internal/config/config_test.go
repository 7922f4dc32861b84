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
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/app")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "5050", cfg.Port)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Hour, cfg.VerificationTTL)
	assert.False(t, cfg.SecureCookies())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/app")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("SESSION_TTL", "48h")
	t.Setenv("SESSION_HASH_TOKENS", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DEVELOPER_EMAILS", "dev@example.com")
	t.Setenv("DEMO_BURST", "2")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.SecureCookies())
	assert.Equal(t, 48*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.HashSessionTokens)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"dev@example.com"}, cfg.DeveloperEmails)
	assert.Equal(t, 2, cfg.DemoBurst)
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "8080"
database_url: postgres://file/app
verification_ttl: 30m
developer_emails:
  - one@example.com
  - two@example.com
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://file/app", cfg.DatabaseURL)
	assert.Equal(t, 30*time.Minute, cfg.VerificationTTL)
	assert.Len(t, cfg.DeveloperEmails, 2)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SESSION_TTL", "forever")

	_, err := Load()
	assert.ErrorContains(t, err, "SESSION_TTL")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrMissingDatabaseURL)

	cfg.DatabaseURL = "postgres://localhost/app"
	cfg.Environment = EnvProduction
	cfg.DevLoginEnabled = true
	assert.ErrorIs(t, cfg.Validate(), ErrDevLoginInProduction)

	cfg.DevLoginEnabled = false
	cfg.SessionTTL = 0
	assert.ErrorIs(t, cfg.Validate(), ErrNonPositiveTTL)
}
