package app

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", strings.Repeat("s", MinTokenSecretLength))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 300*time.Second, cfg.RBACCacheTTL)
	assert.Equal(t, "rbac.invalidate", cfg.RBACInvalidationChannel)
	assert.Equal(t, "@hourly", cfg.SessionPurgeCron)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.True(t, cfg.RequireSession)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", strings.Repeat("k", 48))
	t.Setenv("RBAC_CACHE_TTL", "45s")
	t.Setenv("AUTH_REQUIRE_SESSION", "false")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.RBACCacheTTL)
	assert.False(t, cfg.RequireSession)
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsWeakSecret(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", "short")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "at least 32 bytes")
}

func TestValidate(t *testing.T) {
	base := Config{TokenSecret: strings.Repeat("x", 32), RBACCacheTTL: time.Minute, RateLimitPerMinute: 10}
	require.NoError(t, base.Validate())

	noTTL := base
	noTTL.RBACCacheTTL = 0
	assert.Error(t, noTTL.Validate())

	noLimit := base
	noLimit.RateLimitPerMinute = -1
	assert.Error(t, noLimit.Validate())

	noSecret := base
	noSecret.TokenSecret = ""
	assert.ErrorContains(t, noSecret.Validate(), "must be provided")
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
