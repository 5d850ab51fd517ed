// Package config loads server configuration from the environment.
//
// An optional .env file is read first (see CONSENSUS_MCP_ENV_FILE); values
// already present in the process environment take precedence over it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Radius scaling policies for AI regions on non-square surfaces.
const (
	RadiusScaleMinDimension = "min-dimension"
	RadiusScaleWidth        = "width"
)

// Config holds server configuration
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Inference service
	InferenceURL     string
	InferenceTimeout time.Duration

	// Host surface and overlay
	ViewportWidth  int
	ViewportHeight int
	RadiusScale    string
	MarkerRadius   int
	SettleDelay    time.Duration
}

// Load reads the optional env file and builds a validated Config.
func Load() (*Config, error) {
	envFile := getEnvOrDefault("CONSENSUS_MCP_ENV_FILE", ".env")
	// A missing env file is normal outside development.
	_ = godotenv.Load(envFile)

	timeout, err := getEnvAsDurationOrDefault("INFERENCE_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	settle, err := getEnvAsDurationOrDefault("SETTLE_DELAY", 50*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:         strings.ToLower(getEnvOrDefault("CONSENSUS_MCP_LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnvOrDefault("CONSENSUS_MCP_LOG_FORMAT", "console")),
		InferenceURL:     strings.TrimRight(getEnvOrDefault("INFERENCE_URL", "http://localhost:5001"), "/"),
		InferenceTimeout: timeout,
		ViewportWidth:    getEnvAsIntOrDefault("VIEWPORT_WIDTH", 1024),
		ViewportHeight:   getEnvAsIntOrDefault("VIEWPORT_HEIGHT", 1024),
		RadiusScale:      strings.ToLower(getEnvOrDefault("RADIUS_SCALE", RadiusScaleMinDimension)),
		MarkerRadius:     getEnvAsIntOrDefault("MARKER_RADIUS", 12),
		SettleDelay:      settle,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.InferenceURL == "" {
		return fmt.Errorf("INFERENCE_URL is required")
	}

	if c.ViewportWidth < 1 || c.ViewportHeight < 1 {
		return fmt.Errorf("VIEWPORT_WIDTH and VIEWPORT_HEIGHT must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}

	switch c.RadiusScale {
	case RadiusScaleMinDimension, RadiusScaleWidth:
	default:
		return fmt.Errorf("RADIUS_SCALE must be %q or %q, got %q", RadiusScaleMinDimension, RadiusScaleWidth, c.RadiusScale)
	}

	if c.MarkerRadius < 4 || c.MarkerRadius > 64 {
		return fmt.Errorf("MARKER_RADIUS must be between 4 and 64, got %d", c.MarkerRadius)
	}

	if c.InferenceTimeout < 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must not be negative, got %s", c.InferenceTimeout)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("SETTLE_DELAY must not be negative, got %s", c.SettleDelay)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("CONSENSUS_MCP_LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}
