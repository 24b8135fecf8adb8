package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/paulmach/orb"

	"github.com/fiscaliza-acuicola/backend/internal/geostore"
)

var errEmptyGeometry = errors.New("spatial engine returned no geometry")

// BufferBuilder turns the evidence points of a report into the area within a
// radius of any of them.
type BufferBuilder struct {
	store  geostore.Store
	cfg    Config
	logger log.Interface
}

func NewBufferBuilder(store geostore.Store, cfg Config, logger log.Interface) *BufferBuilder {
	if logger == nil {
		logger = log.Log
	}
	return &BufferBuilder{store: store, cfg: cfg, logger: logger}
}

// Build returns the buffer of radiusMeters around every evidence point of the
// report, in the geographic CRS, minus the land mask when one is available.
// It only reads from the store.
func (b *BufferBuilder) Build(ctx context.Context, reportID int64, radiusMeters float64) (orb.Geometry, error) {
	if err := b.cfg.validateRadius(radiusMeters); err != nil {
		return nil, err
	}

	points, err := b.store.FetchEvidencePoints(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("fetch evidence: %w", err)
	}
	if len(points) == 0 {
		exists, err := b.store.ReportExists(ctx, reportID)
		if err != nil {
			return nil, fmt.Errorf("report lookup: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("report %d: %w", reportID, ErrReportNotFound)
		}
		return nil, fmt.Errorf("report %d: %w", reportID, ErrNoEvidence)
	}

	evidence := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		evidence = append(evidence, p.Location)
	}

	// Buffer in the metric CRS so the radius is in meters at every latitude.
	projected, err := present(b.store.Transform(ctx, evidence, b.cfg.GeographicSRID, b.cfg.MetricSRID))
	if err != nil {
		return nil, fmt.Errorf("project evidence: %w", err)
	}
	merged, err := present(b.store.Union(ctx, projected, b.cfg.MetricSRID))
	if err != nil {
		return nil, fmt.Errorf("union evidence: %w", err)
	}
	buffered, err := present(b.store.Buffer(ctx, merged, b.cfg.MetricSRID, radiusMeters, b.cfg.QuadSegments))
	if err != nil {
		return nil, fmt.Errorf("buffer evidence: %w", err)
	}
	geographic, err := present(b.store.Transform(ctx, buffered, b.cfg.MetricSRID, b.cfg.GeographicSRID))
	if err != nil {
		return nil, fmt.Errorf("unproject buffer: %w", err)
	}

	return b.subtractLandMask(ctx, reportID, geographic)
}

func (b *BufferBuilder) subtractLandMask(ctx context.Context, reportID int64, buffer orb.Geometry) (orb.Geometry, error) {
	mask, ok, err := b.store.FetchLandMask(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch land mask: %w", err)
	}
	if !ok {
		b.logger.WithField("report_id", reportID).Warn("land mask layer unavailable, buffer left unmasked")
		return buffer, nil
	}

	clipped, err := present(b.store.Difference(ctx, buffer, mask, b.cfg.GeographicSRID))
	if err != nil {
		return nil, fmt.Errorf("subtract land mask: %w", err)
	}
	if isEmpty(clipped) {
		b.logger.WithField("report_id", reportID).Warn("buffer lies entirely on land")
	}
	return clipped, nil
}

// present turns a NULL answer from the spatial engine into an error.
func present(g orb.Geometry, err error) (orb.Geometry, error) {
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errEmptyGeometry
	}
	return g, nil
}

func isEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case orb.Polygon:
		return len(v) == 0
	case orb.MultiPolygon:
		for _, p := range v {
			if len(p) > 0 {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range v {
			if !isEmpty(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
