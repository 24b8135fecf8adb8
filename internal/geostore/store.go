package geostore

import (
	"context"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Spatial are the geometric primitives the analysis engine needs. Every
// geometry argument carries the SRID it is expressed in.
type Spatial interface {
	// Transform reprojects g from fromSRID to toSRID.
	Transform(ctx context.Context, g orb.Geometry, fromSRID, toSRID int) (orb.Geometry, error)

	// Union dissolves g into a single geometry.
	Union(ctx context.Context, g orb.Geometry, srid int) (orb.Geometry, error)

	// Buffer expands g by radius (in units of srid) using quadSegs segments
	// per quarter circle.
	Buffer(ctx context.Context, g orb.Geometry, srid int, radius float64, quadSegs int) (orb.Geometry, error)

	// Difference returns the part of a not covered by b.
	Difference(ctx context.Context, a, b orb.Geometry, srid int) (orb.Geometry, error)

	Intersects(ctx context.Context, a, b orb.Geometry, srid int) (bool, error)

	// Centroid returns nil for an empty geometry.
	Centroid(ctx context.Context, g orb.Geometry, srid int) (orb.Geometry, error)

	// Distance is the minimum distance between a and b (both in srid),
	// measured in metricSRID units. ok is false when it is undefined.
	Distance(ctx context.Context, a, b orb.Geometry, srid, metricSRID int) (meters float64, ok bool, err error)
}

// Store is everything the analysis engine reads from and writes to.
type Store interface {
	Spatial

	// WithTx runs fn inside one database transaction. fn receives a Store
	// bound to that transaction; returning an error rolls it back.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// LockReport serialises analyses of one report until the surrounding
	// transaction ends. Outside WithTx it has no lasting effect.
	LockReport(ctx context.Context, reportID int64) error

	ReportExists(ctx context.Context, reportID int64) (bool, error)
	FetchEvidencePoints(ctx context.Context, reportID int64) ([]EvidencePoint, error)
	FetchAllConcessions(ctx context.Context) ([]Concession, error)

	// FetchLandMask returns the dissolved land layer. ok is false when no
	// layer is configured, the table does not exist, or it is empty.
	FetchLandMask(ctx context.Context) (mask orb.Geometry, ok bool, err error)

	// QueryConcessions evaluates every concession against buffer (EPSG:4326):
	// the intersection predicate and the centroid-to-buffer distance measured
	// in metricSRID. With onlyIntersecting set, non-intersecting rows are
	// filtered by the query itself.
	QueryConcessions(ctx context.Context, buffer orb.Geometry, metricSRID int, onlyIntersecting bool) ([]ConcessionHit, error)

	CreateAnalysis(ctx context.Context, a *Analysis) error
	SetAnalysisBuffer(ctx context.Context, analysisID uuid.UUID, buffer orb.Geometry) error
	CreateAnalysisResults(ctx context.Context, analysisID uuid.UUID, hits []ConcessionHit) ([]AnalysisResult, error)

	GetAnalysis(ctx context.Context, id uuid.UUID) (*Analysis, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]Analysis, error)
	ListAnalysisResults(ctx context.Context, analysisIDs []uuid.UUID) (map[uuid.UUID][]AnalysisResult, error)
}
