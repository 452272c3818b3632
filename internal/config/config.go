// Package config loads the server's configuration from environment variables at startup,
// following the teacher's convention of a small typed Config struct with defaults rather
// than a config-file library. A missing required variable fails fast here rather than at
// first use.
package config

import (
	"os"
	"strconv"

	"github.com/crrserver/core/internal/apperror"
)

// SMTP holds the OTP email sender's configuration.
type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Config is the process-wide configuration loaded once in cmd/server/main.go.
type Config struct {
	DataDir     string
	Port        int
	AdminToken  string
	JWTSecret   []byte
	SMTP        SMTP
}

// Load reads the environment per SPEC_FULL.md §4.H/§6.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir: envOr("CRR_DATA_DIR", "./data"),
		Port:    8080,
	}

	if portStr := os.Getenv("CRR_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, apperror.EnvVar("CRR_PORT")
		}
		cfg.Port = port
	}

	cfg.AdminToken = os.Getenv("CRR_ADMIN_TOKEN")

	secret := os.Getenv("CRR_JWT_SECRET")
	if len(secret) < 32 {
		return nil, apperror.EnvVar("CRR_JWT_SECRET")
	}
	cfg.JWTSecret = []byte(secret)

	cfg.SMTP = SMTP{
		Host:     os.Getenv("CRR_SMTP_HOST"),
		User:     os.Getenv("CRR_SMTP_USER"),
		Password: os.Getenv("CRR_SMTP_PASSWORD"),
		From:     envOr("CRR_SMTP_FROM", "no-reply@localhost"),
	}
	if portStr := os.Getenv("CRR_SMTP_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, apperror.EnvVar("CRR_SMTP_PORT")
		}
		cfg.SMTP.Port = port
	} else {
		cfg.SMTP.Port = 587
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
