package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/apex/log"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fiscaliza-acuicola/backend/internal/geostore"
)

func TestBuild_UnmaskedWhenNoLandLayer(t *testing.T) {
	m := &mockStore{}
	expectBufferPipeline(m, 100)
	m.On("FetchLandMask", mock.Anything).Return(nil, false, nil)

	logger, mem := testLogger()
	got, err := NewBufferBuilder(m, DefaultConfig(), logger).Build(context.Background(), 7, 100)

	require.NoError(t, err)
	assert.Equal(t, geoBuffer, got)
	assert.True(t, hasMessage(mem, log.WarnLevel, "land mask layer unavailable, buffer left unmasked"))
	m.AssertNotCalled(t, "Difference", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.AssertExpectations(t)
}

func TestBuild_SubtractsLandMask(t *testing.T) {
	mask := orb.MultiPolygon{{{{-73.0, -41.52}, {-72.98, -41.52}, {-72.98, -41.48}, {-73.0, -41.52}}}}
	clipped := orb.Polygon{{{-73.02, -41.52}, {-73.0, -41.52}, {-73.0, -41.49}, {-73.02, -41.52}}}

	m := &mockStore{}
	expectBufferPipeline(m, 250)
	m.On("FetchLandMask", mock.Anything).Return(mask, true, nil)
	m.On("Difference", mock.Anything, geoBuffer, mask, 4326).Return(clipped, nil)

	logger, mem := testLogger()
	got, err := NewBufferBuilder(m, DefaultConfig(), logger).Build(context.Background(), 7, 250)

	require.NoError(t, err)
	assert.Equal(t, clipped, got)
	assert.False(t, hasMessage(mem, log.WarnLevel, "buffer lies entirely on land"))
	m.AssertExpectations(t)
}

func TestBuild_BufferEntirelyOnLand(t *testing.T) {
	m := &mockStore{}
	expectBufferPipeline(m, 100)
	m.On("FetchLandMask", mock.Anything).Return(orb.MultiPolygon{}, true, nil)
	m.On("Difference", mock.Anything, geoBuffer, orb.MultiPolygon{}, 4326).Return(orb.MultiPolygon{}, nil)

	logger, mem := testLogger()
	got, err := NewBufferBuilder(m, DefaultConfig(), logger).Build(context.Background(), 7, 100)

	require.NoError(t, err)
	assert.True(t, isEmpty(got))
	assert.True(t, hasMessage(mem, log.WarnLevel, "buffer lies entirely on land"))
}

func TestBuild_NoEvidence(t *testing.T) {
	m := &mockStore{}
	m.On("FetchEvidencePoints", mock.Anything, int64(7)).Return([]geostore.EvidencePoint{}, nil)
	m.On("ReportExists", mock.Anything, int64(7)).Return(true, nil)

	got, err := NewBufferBuilder(m, DefaultConfig(), nil).Build(context.Background(), 7, 100)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrNoEvidence)
	m.AssertNotCalled(t, "Buffer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "FetchLandMask", mock.Anything)
}

func TestBuild_ReportMissing(t *testing.T) {
	m := &mockStore{}
	m.On("FetchEvidencePoints", mock.Anything, int64(404)).Return(nil, nil)
	m.On("ReportExists", mock.Anything, int64(404)).Return(false, nil)

	_, err := NewBufferBuilder(m, DefaultConfig(), nil).Build(context.Background(), 404, 100)

	assert.ErrorIs(t, err, ErrReportNotFound)
	assert.NotErrorIs(t, err, ErrNoEvidence)
}

func TestBuild_InvalidRadius(t *testing.T) {
	tests := []struct {
		name   string
		radius float64
	}{
		{"zero", 0},
		{"negative", -10},
		{"nan", math.NaN()},
		{"infinite", math.Inf(1)},
		{"above maximum", 50001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockStore{}
			_, err := NewBufferBuilder(m, DefaultConfig(), nil).Build(context.Background(), 7, tt.radius)

			assert.ErrorIs(t, err, ErrInvalidArgument)
			m.AssertNotCalled(t, "FetchEvidencePoints", mock.Anything, mock.Anything)
		})
	}
}

func TestBuild_StoreFailurePropagates(t *testing.T) {
	boom := errors.New("connection reset")

	m := &mockStore{}
	m.On("FetchEvidencePoints", mock.Anything, int64(7)).Return(evidencePoints, nil)
	m.On("Transform", mock.Anything, evidenceMulti, 4326, 32718).Return(nil, boom)

	_, err := NewBufferBuilder(m, DefaultConfig(), nil).Build(context.Background(), 7, 100)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "project evidence")
}

func TestBuild_NullGeometryIsAnError(t *testing.T) {
	m := &mockStore{}
	m.On("FetchEvidencePoints", mock.Anything, int64(7)).Return(evidencePoints, nil)
	m.On("Transform", mock.Anything, evidenceMulti, 4326, 32718).Return(projectedMulti, nil)
	m.On("Union", mock.Anything, projectedMulti, 32718).Return(mergedMulti, nil)
	m.On("Buffer", mock.Anything, mergedMulti, 32718, 100.0, 8).Return(nil, nil)

	got, err := NewBufferBuilder(m, DefaultConfig(), nil).Build(context.Background(), 7, 100)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, errEmptyGeometry)
}

func TestBuild_UsesConfiguredProjection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricSRID = 32719
	cfg.QuadSegments = 16

	m := &mockStore{}
	m.On("FetchEvidencePoints", mock.Anything, int64(7)).Return(evidencePoints, nil)
	m.On("Transform", mock.Anything, evidenceMulti, 4326, 32719).Return(projectedMulti, nil)
	m.On("Union", mock.Anything, projectedMulti, 32719).Return(mergedMulti, nil)
	m.On("Buffer", mock.Anything, mergedMulti, 32719, 75.0, 16).Return(metricBuffer, nil)
	m.On("Transform", mock.Anything, metricBuffer, 32719, 4326).Return(geoBuffer, nil)
	m.On("FetchLandMask", mock.Anything).Return(nil, false, nil)

	_, err := NewBufferBuilder(m, cfg, nil).Build(context.Background(), 7, 75)

	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, isEmpty(nil))
	assert.True(t, isEmpty(orb.Polygon{}))
	assert.True(t, isEmpty(orb.MultiPolygon{}))
	assert.True(t, isEmpty(orb.MultiPolygon{orb.Polygon{}}))
	assert.True(t, isEmpty(orb.Collection{orb.MultiPolygon{}}))
	assert.False(t, isEmpty(geoBuffer))
	assert.False(t, isEmpty(orb.MultiPolygon{geoBuffer}))
	assert.False(t, isEmpty(orb.Collection{orb.Polygon{}, geoBuffer}))
}
