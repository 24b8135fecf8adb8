package analysis

import (
	"context"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/mock"

	"github.com/fiscaliza-acuicola/backend/internal/geostore"
)

// mockStore is a testify mock of geostore.Store. WithTx runs fn against the
// same mock and returns the configured commit error once fn succeeds.
type mockStore struct {
	mock.Mock
}

var _ geostore.Store = (*mockStore)(nil)

func geometryArg(args mock.Arguments, i int) orb.Geometry {
	g, _ := args.Get(i).(orb.Geometry)
	return g
}

func (m *mockStore) Transform(ctx context.Context, g orb.Geometry, fromSRID, toSRID int) (orb.Geometry, error) {
	args := m.Called(ctx, g, fromSRID, toSRID)
	return geometryArg(args, 0), args.Error(1)
}

func (m *mockStore) Union(ctx context.Context, g orb.Geometry, srid int) (orb.Geometry, error) {
	args := m.Called(ctx, g, srid)
	return geometryArg(args, 0), args.Error(1)
}

func (m *mockStore) Buffer(ctx context.Context, g orb.Geometry, srid int, radius float64, quadSegs int) (orb.Geometry, error) {
	args := m.Called(ctx, g, srid, radius, quadSegs)
	return geometryArg(args, 0), args.Error(1)
}

func (m *mockStore) Difference(ctx context.Context, a, b orb.Geometry, srid int) (orb.Geometry, error) {
	args := m.Called(ctx, a, b, srid)
	return geometryArg(args, 0), args.Error(1)
}

func (m *mockStore) Intersects(ctx context.Context, a, b orb.Geometry, srid int) (bool, error) {
	args := m.Called(ctx, a, b, srid)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Centroid(ctx context.Context, g orb.Geometry, srid int) (orb.Geometry, error) {
	args := m.Called(ctx, g, srid)
	return geometryArg(args, 0), args.Error(1)
}

func (m *mockStore) Distance(ctx context.Context, a, b orb.Geometry, srid, metricSRID int) (float64, bool, error) {
	args := m.Called(ctx, a, b, srid, metricSRID)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func (m *mockStore) WithTx(ctx context.Context, fn func(tx geostore.Store) error) error {
	args := m.Called(ctx)
	if err := fn(m); err != nil {
		return err
	}
	return args.Error(0)
}

func (m *mockStore) LockReport(ctx context.Context, reportID int64) error {
	return m.Called(ctx, reportID).Error(0)
}

func (m *mockStore) ReportExists(ctx context.Context, reportID int64) (bool, error) {
	args := m.Called(ctx, reportID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) FetchEvidencePoints(ctx context.Context, reportID int64) ([]geostore.EvidencePoint, error) {
	args := m.Called(ctx, reportID)
	pts, _ := args.Get(0).([]geostore.EvidencePoint)
	return pts, args.Error(1)
}

func (m *mockStore) FetchAllConcessions(ctx context.Context) ([]geostore.Concession, error) {
	args := m.Called(ctx)
	cs, _ := args.Get(0).([]geostore.Concession)
	return cs, args.Error(1)
}

func (m *mockStore) FetchLandMask(ctx context.Context) (orb.Geometry, bool, error) {
	args := m.Called(ctx)
	return geometryArg(args, 0), args.Bool(1), args.Error(2)
}

func (m *mockStore) QueryConcessions(ctx context.Context, buffer orb.Geometry, metricSRID int, onlyIntersecting bool) ([]geostore.ConcessionHit, error) {
	args := m.Called(ctx, buffer, metricSRID, onlyIntersecting)
	hits, _ := args.Get(0).([]geostore.ConcessionHit)
	return hits, args.Error(1)
}

func (m *mockStore) CreateAnalysis(ctx context.Context, a *geostore.Analysis) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockStore) SetAnalysisBuffer(ctx context.Context, analysisID uuid.UUID, buffer orb.Geometry) error {
	return m.Called(ctx, analysisID, buffer).Error(0)
}

func (m *mockStore) CreateAnalysisResults(ctx context.Context, analysisID uuid.UUID, hits []geostore.ConcessionHit) ([]geostore.AnalysisResult, error) {
	args := m.Called(ctx, analysisID, hits)
	switch v := args.Get(0).(type) {
	case func(context.Context, uuid.UUID, []geostore.ConcessionHit) []geostore.AnalysisResult:
		return v(ctx, analysisID, hits), args.Error(1)
	case []geostore.AnalysisResult:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetAnalysis(ctx context.Context, id uuid.UUID) (*geostore.Analysis, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*geostore.Analysis)
	return a, args.Error(1)
}

func (m *mockStore) ListAnalyses(ctx context.Context, filter geostore.AnalysisFilter) ([]geostore.Analysis, error) {
	args := m.Called(ctx, filter)
	as, _ := args.Get(0).([]geostore.Analysis)
	return as, args.Error(1)
}

func (m *mockStore) ListAnalysisResults(ctx context.Context, analysisIDs []uuid.UUID) (map[uuid.UUID][]geostore.AnalysisResult, error) {
	args := m.Called(ctx, analysisIDs)
	rs, _ := args.Get(0).(map[uuid.UUID][]geostore.AnalysisResult)
	return rs, args.Error(1)
}

// Fixtures shared by the engine tests. Coordinates are arbitrary; the mock
// stands in for PostGIS so only identity matters.
var (
	evidencePoints = []geostore.EvidencePoint{
		{ID: 1, ReportID: 7, Location: orb.Point{-73.0, -41.5}},
		{ID: 2, ReportID: 7, Location: orb.Point{-73.01, -41.51}},
	}
	evidenceMulti  = orb.MultiPoint{{-73.0, -41.5}, {-73.01, -41.51}}
	projectedMulti = orb.MultiPoint{{668000, 5403000}, {667200, 5401900}}
	mergedMulti    = orb.MultiPoint{{667200, 5401900}, {668000, 5403000}}
	metricBuffer   = orb.Polygon{{{667100, 5401800}, {668100, 5401800}, {668100, 5403100}, {667100, 5401800}}}
	geoBuffer      = orb.Polygon{{{-73.02, -41.52}, {-72.99, -41.52}, {-72.99, -41.49}, {-73.02, -41.52}}}
)

// expectBufferPipeline wires the mock for a successful buffer of report 7.
func expectBufferPipeline(m *mockStore, radius float64) {
	m.On("FetchEvidencePoints", mock.Anything, int64(7)).Return(evidencePoints, nil)
	m.On("Transform", mock.Anything, evidenceMulti, 4326, 32718).Return(projectedMulti, nil)
	m.On("Union", mock.Anything, projectedMulti, 32718).Return(mergedMulti, nil)
	m.On("Buffer", mock.Anything, mergedMulti, 32718, radius, 8).Return(metricBuffer, nil)
	m.On("Transform", mock.Anything, metricBuffer, 32718, 4326).Return(geoBuffer, nil)
}

func testLogger() (*log.Logger, *memory.Handler) {
	h := memory.New()
	return &log.Logger{Handler: h, Level: log.DebugLevel}, h
}

func hasMessage(h *memory.Handler, level log.Level, msg string) bool {
	for _, e := range h.Entries {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

func dist(v float64) *float64 { return &v }
