// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort       = 8080
	defaultJWTExpires = 24 * time.Hour
	defaultSweepSpec  = "@hourly"
	defaultRateRPS    = 20
	defaultRateBurst  = 40
)

// Config holds every knob the process recognizes.
type Config struct {
	DatabaseURL string
	Port        int
	JWTSecret   string
	JWTExpires  time.Duration
	CORSOrigin  string
	SweepSpec   string
	RateRPS     int
	RateBurst   int
	DevLog      bool
}

// Load reads .env (if present) and then the environment. It fails on a
// missing JWT secret or malformed values; everything else has a default.
func Load() (Config, error) {
	// Missing .env is fine; env vars win anyway.
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   strings.TrimSpace(os.Getenv("JWT_SECRET")),
		CORSOrigin:  strings.TrimSpace(os.Getenv("CORS_ORIGIN")),
		Port:        defaultPort,
		JWTExpires:  defaultJWTExpires,
		SweepSpec:   defaultSweepSpec,
		RateRPS:     defaultRateRPS,
		RateBurst:   defaultRateBurst,
		DevLog:      os.Getenv("LOG_DEV") == "true",
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", raw)
		}
		cfg.Port = port
	}
	if raw := os.Getenv("JWT_EXPIRES_IN"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid JWT_EXPIRES_IN %q", raw)
		}
		cfg.JWTExpires = d
	}
	if raw := os.Getenv("TOKEN_SWEEP_CRON"); raw != "" {
		cfg.SweepSpec = raw
	}
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_RPS %q", raw)
		}
		cfg.RateRPS = n
	}
	if raw := os.Getenv("RATE_LIMIT_BURST"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_BURST %q", raw)
		}
		cfg.RateBurst = n
	}

	return cfg, nil
}

// Addr returns the listen address derived from Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
