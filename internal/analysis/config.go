package analysis

import (
	"fmt"
	"math"

	"github.com/fiscaliza-acuicola/backend/internal/config"
	"github.com/fiscaliza-acuicola/backend/internal/geostore"
)

// Config is the immutable engine configuration handed to every component at
// construction time.
type Config struct {
	// GeographicSRID is the CRS of stored geometries and of every geometry
	// returned to callers.
	GeographicSRID int

	// MetricSRID is the projected CRS used for buffering and distances. The
	// default (32718, UTM 18S) fits southern Chile; other regions override it.
	MetricSRID int

	// QuadSegments is the number of segments per quarter circle of a buffer.
	QuadSegments int

	// MaxRadiusMeters is the largest accepted buffer radius.
	MaxRadiusMeters float64

	// SerializePerReport takes a per-report advisory lock for the duration
	// of the computation, so concurrent runs for one report queue up.
	SerializePerReport bool
}

// DefaultConfig returns the configuration of the reference deployment.
func DefaultConfig() Config {
	return Config{
		GeographicSRID:  geostore.GeographicSRID,
		MetricSRID:      32718,
		QuadSegments:    8,
		MaxRadiusMeters: 50000,
	}
}

// ConfigFrom derives the engine configuration from the service configuration.
func ConfigFrom(c *config.Config) Config {
	cfg := DefaultConfig()
	cfg.MetricSRID = c.MetricSRID
	cfg.QuadSegments = c.QuadSegments
	cfg.MaxRadiusMeters = c.MaxRadiusMeters
	cfg.SerializePerReport = c.SerializePerReport
	return cfg
}

func (c Config) validateRadius(radius float64) error {
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		return fmt.Errorf("%w: radius must be a positive number of meters, got %v", ErrInvalidArgument, radius)
	}
	if c.MaxRadiusMeters > 0 && radius > c.MaxRadiusMeters {
		return fmt.Errorf("%w: radius %.0f m exceeds the maximum of %.0f m", ErrInvalidArgument, radius, c.MaxRadiusMeters)
	}
	return nil
}
