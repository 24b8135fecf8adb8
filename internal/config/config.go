package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Common errors
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
	ErrInvalidSRID        = errors.New("metric SRID must be a positive EPSG code other than 4326")
	ErrInvalidSegments    = errors.New("buffer quad segments must be at least 1")
	ErrInvalidMaxRadius   = errors.New("max radius must be positive")
)

// Config holds all configuration for the analysis service.
type Config struct {
	// Database configuration
	DatabaseURL string `yaml:"database_url"`

	// Server configuration
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Analysis engine configuration
	MetricSRID         int     `yaml:"metric_srid"`
	QuadSegments       int     `yaml:"buffer_quad_segments"`
	MaxRadiusMeters    float64 `yaml:"max_radius_m"`
	LandMaskTable      string  `yaml:"land_mask_table"`
	SerializePerReport bool    `yaml:"serialize_per_report"`

	// Rate limiting for the analysis endpoints
	AnalysisRatePerMinute int `yaml:"analysis_rate_per_min"`
	AnalysisRateBurst     int `yaml:"analysis_rate_burst"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load builds the configuration from environment variables. When
// ANALYSIS_CONFIG points at a YAML file, values present in that file
// override the environment.
//
// Environment variables:
//   - DATABASE_URL: Postgres DSN (required)
//   - PORT: HTTP port (default: 5050)
//   - ALLOWED_ORIGINS: comma separated CORS allow-list
//   - METRIC_SRID: projected CRS used for buffering and distances (default: 32718, UTM 18S)
//   - BUFFER_QUAD_SEGMENTS: segments per quarter circle (default: 8)
//   - MAX_RADIUS_M: largest accepted buffer radius in meters (default: 50000)
//   - LAND_MASK_TABLE: land polygon layer subtracted from buffers, unqualified names
//     resolve to the fiscaliza schema; empty disables (default: land_mask)
//   - SERIALIZE_PER_REPORT: take an advisory lock per report while computing (default: false)
//   - ANALYSIS_RATE_PER_MIN / ANALYSIS_RATE_BURST: analysis endpoint rate limit (default: 30 / 5)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_FORMAT: text or json (default: text)
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		Port:                  getEnv("PORT", "5050"),
		AllowedOrigins:        splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		MetricSRID:            getIntEnv("METRIC_SRID", 32718),
		QuadSegments:          getIntEnv("BUFFER_QUAD_SEGMENTS", 8),
		MaxRadiusMeters:       getFloatEnv("MAX_RADIUS_M", 50000),
		LandMaskTable:         getEnvAllowEmpty("LAND_MASK_TABLE", "land_mask"),
		SerializePerReport:    getBoolEnv("SERIALIZE_PER_REPORT", false),
		AnalysisRatePerMinute: getIntEnv("ANALYSIS_RATE_PER_MIN", 30),
		AnalysisRateBurst:     getIntEnv("ANALYSIS_RATE_BURST", 5),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
	}

	if path := strings.TrimSpace(os.Getenv("ANALYSIS_CONFIG")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile decodes a YAML document on top of cfg. Keys missing from the
// file keep their current value.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.MetricSRID <= 0 || c.MetricSRID == 4326 {
		return fmt.Errorf("%w: %d", ErrInvalidSRID, c.MetricSRID)
	}
	if c.QuadSegments < 1 {
		return ErrInvalidSegments
	}
	if c.MaxRadiusMeters <= 0 {
		return ErrInvalidMaxRadius
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty is like getEnv but an explicitly set empty value wins.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
