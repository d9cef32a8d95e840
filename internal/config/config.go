// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Port           string
	AllowedOrigins []string
	NATSURL        string

	// MaxConcurrent bounds how many optimizations may solve at once.
	MaxConcurrent int64
	// SolveTimeout bounds a single optimization from bind to response.
	SolveTimeout time.Duration
	// SimplexTolerance overrides the solver default when positive.
	SimplexTolerance float64

	Debug bool
}

// Load reads the environment, applying defaults for unset variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		AllowedOrigins:   parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		NATSURL:          getEnv("NATS_URL", ""),
		MaxConcurrent:    int64(getEnvInt("MAX_CONCURRENT_SOLVES", 4)),
		SolveTimeout:     getEnvDuration("SOLVE_TIMEOUT", 30*time.Second),
		SimplexTolerance: getEnvFloat("SIMPLEX_TOLERANCE", 0),
		Debug:            getEnvBool("DEBUG", false),
	}
	if cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_SOLVES must be at least 1, got %d", cfg.MaxConcurrent)
	}
	if cfg.SolveTimeout <= 0 {
		return nil, fmt.Errorf("SOLVE_TIMEOUT must be positive, got %s", cfg.SolveTimeout)
	}
	return cfg, nil
}

// parseOrigins splits a comma-separated origin list. A single "*" allows
// any origin.
func parseOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "*" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
