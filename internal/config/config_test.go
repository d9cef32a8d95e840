package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGINS", "NATS_URL", "MAX_CONCURRENT_SOLVES",
		"SOLVE_TIMEOUT", "SIMPLEX_TOLERANCE", "DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("should apply defaults when the environment is empty", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.AllowedOrigins)
		assert.Empty(t, cfg.NATSURL)
		assert.Equal(t, int64(4), cfg.MaxConcurrent)
		assert.Equal(t, 30*time.Second, cfg.SolveTimeout)
		assert.Zero(t, cfg.SimplexTolerance)
		assert.False(t, cfg.Debug)
	})

	t.Run("should read overrides from the environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "9090")
		t.Setenv("NATS_URL", "nats://localhost:4222")
		t.Setenv("MAX_CONCURRENT_SOLVES", "8")
		t.Setenv("SOLVE_TIMEOUT", "45s")
		t.Setenv("SIMPLEX_TOLERANCE", "1e-8")
		t.Setenv("DEBUG", "true")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
		assert.Equal(t, int64(8), cfg.MaxConcurrent)
		assert.Equal(t, 45*time.Second, cfg.SolveTimeout)
		assert.InDelta(t, 1e-8, cfg.SimplexTolerance, 1e-15)
		assert.True(t, cfg.Debug)
	})

	t.Run("should fall back on unparseable values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MAX_CONCURRENT_SOLVES", "many")
		t.Setenv("SOLVE_TIMEOUT", "soon")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, int64(4), cfg.MaxConcurrent)
		assert.Equal(t, 30*time.Second, cfg.SolveTimeout)
	})

	t.Run("should reject a non-positive solve budget", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MAX_CONCURRENT_SOLVES", "0")

		_, err := Load()

		assert.Error(t, err)
	})

	t.Run("should treat a lone wildcard as allow-all", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ALLOWED_ORIGINS", "*")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	})

	t.Run("should trim whitespace around origins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ALLOWED_ORIGINS", " https://farm.example.com , https://ops.example.com ")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, []string{"https://farm.example.com", "https://ops.example.com"}, cfg.AllowedOrigins)
	})
}
