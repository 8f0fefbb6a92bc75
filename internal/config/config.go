// Package config loads WAF settings from the environment, with optional
// .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting for the WAF.
type Config struct {
	DatabaseURL string
	RedisURL    string
	BackendURL  string

	Host string
	Port int

	ThreatScoreThreshold int

	CORSOrigins []string
	LogLevel    string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:     envOr("WAF_HOST", "0.0.0.0"),
		LogLevel: os.Getenv("LOG_LEVEL"),
	}

	for _, req := range []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"REDIS_URL", &cfg.RedisURL},
		{"BACKEND_URL", &cfg.BackendURL},
	} {
		v := os.Getenv(req.key)
		if v == "" {
			return nil, fmt.Errorf("config: %s is required", req.key)
		}
		*req.dst = v
	}
	// The proxy appends the request path verbatim.
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	var err error
	if cfg.Port, err = envInt("WAF_PORT", 8000); err != nil {
		return nil, err
	}
	if cfg.ThreatScoreThreshold, err = envInt("THREAT_SCORE_THRESHOLD", 50); err != nil {
		return nil, err
	}

	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	return cfg, nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}
