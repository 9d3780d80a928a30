package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gastoclaro_test")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "gastoclaro.com", cfg.PlatformEmailDomain)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 30*time.Second, cfg.UploadLockTTL)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gastoclaro_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("TIMEZONE", "Europe/Madrid")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "Europe/Madrid", cfg.Location().String())
	assert.Equal(t, 15*time.Minute, cfg.ExpirySweepInterval)
}

func TestLoad_GeneratesSecretOutsideProduction(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gastoclaro_test")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.JWTSecret, 32)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gastoclaro_test")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET must be set in production")
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL is required")
}
