// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default values for every tunable. Each of these collapses a parameter that
// drifted across the old client versions into one authoritative constant.
const (
	DefaultBackendURL     = "https://silenbek-production.up.railway.app"
	DefaultRequestTimeout = 30 * time.Second
	DefaultProbeTimeout   = 5 * time.Second

	DefaultAutoCaptureInterval = 3 * time.Second
	DefaultBatchPacing         = 500 * time.Millisecond

	// DefaultMaxBatchSize caps how many images one batch may carry.
	DefaultMaxBatchSize = 10
	// DefaultMaxFileSize caps a single uploaded image at 10MB.
	DefaultMaxFileSize = 10 * 1024 * 1024
)

// Config holds all runtime settings consumed by the application.
type Config struct {
	Host string
	Port string

	BackendURL     string
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration

	Language string

	CameraID int

	ConfidenceFloor float64
	Cooldown        time.Duration
	DuplicateWindow time.Duration

	AutoCaptureInterval time.Duration
	BatchPacing         time.Duration
	MaxBatchSize        int
	MaxFileSize         int64
}

// ServerAddress returns the host:port the HTTP server listens on.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strings.TrimSpace(c.Port))
}

// LoadFromEnv builds a Config from environment variables, applying defaults
// for anything unset and validating the result.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:                getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                getEnvOrDefault("PORT", "3000"),
		BackendURL:          getEnvOrDefault("BACKEND_URL", DefaultBackendURL),
		RequestTimeout:      parseDurationOrDefault("REQUEST_TIMEOUT", DefaultRequestTimeout),
		ProbeTimeout:        parseDurationOrDefault("PROBE_TIMEOUT", DefaultProbeTimeout),
		Language:            getEnvOrDefault("LANGUAGE", "bisindo"),
		CameraID:            int(parseIntOrDefault("CAMERA_ID", 0)),
		ConfidenceFloor:     parseFloatOrDefault("CONFIDENCE_FLOOR", 0.2),
		Cooldown:            parseDurationOrDefault("COOLDOWN", 2500*time.Millisecond),
		DuplicateWindow:     parseDurationOrDefault("DUPLICATE_WINDOW", 5*time.Second),
		AutoCaptureInterval: parseDurationOrDefault("AUTO_CAPTURE_INTERVAL", DefaultAutoCaptureInterval),
		BatchPacing:         parseDurationOrDefault("BATCH_PACING", DefaultBatchPacing),
		MaxBatchSize:        int(parseIntOrDefault("MAX_BATCH_SIZE", DefaultMaxBatchSize)),
		MaxFileSize:         parseIntOrDefault("MAX_FILE_SIZE", DefaultMaxFileSize),
	}

	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if !strings.HasPrefix(cfg.BackendURL, "http://") && !strings.HasPrefix(cfg.BackendURL, "https://") {
		return nil, fmt.Errorf("invalid BACKEND_URL: %q", cfg.BackendURL)
	}
	if cfg.RequestTimeout <= 0 || cfg.ProbeTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be > 0 (got request=%s, probe=%s)", cfg.RequestTimeout, cfg.ProbeTimeout)
	}
	if cfg.ConfidenceFloor < 0 || cfg.ConfidenceFloor > 1 {
		return nil, fmt.Errorf("CONFIDENCE_FLOOR must be in [0,1] (got %g)", cfg.ConfidenceFloor)
	}
	if cfg.Cooldown <= 0 || cfg.DuplicateWindow <= 0 || cfg.AutoCaptureInterval <= 0 {
		return nil, fmt.Errorf("windows must be > 0 (got cooldown=%s, duplicate=%s, auto=%s)",
			cfg.Cooldown, cfg.DuplicateWindow, cfg.AutoCaptureInterval)
	}
	if cfg.MaxBatchSize < 1 {
		return nil, fmt.Errorf("MAX_BATCH_SIZE must be >= 1 (got %d)", cfg.MaxBatchSize)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE must be > 0 (got %d)", cfg.MaxFileSize)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}
