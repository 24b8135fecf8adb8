package geostore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// The primitives below ship geometries to PostGIS as WKB and read the answer
// back the same way, so the projection and buffering math is PostGIS's.

func (s *PostGIS) Transform(ctx context.Context, g orb.Geometry, fromSRID, toSRID int) (orb.Geometry, error) {
	buf, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	out, err := s.scanGeometry(ctx,
		`SELECT ST_AsBinary(ST_Transform(ST_GeomFromWKB($1, $2::integer), $3::integer))`,
		buf, fromSRID, toSRID)
	if err != nil {
		return nil, fmt.Errorf("transform %d -> %d: %w", fromSRID, toSRID, err)
	}
	return out, nil
}

func (s *PostGIS) Union(ctx context.Context, g orb.Geometry, srid int) (orb.Geometry, error) {
	buf, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	out, err := s.scanGeometry(ctx,
		`SELECT ST_AsBinary(ST_UnaryUnion(ST_GeomFromWKB($1, $2::integer)))`,
		buf, srid)
	if err != nil {
		return nil, fmt.Errorf("union: %w", err)
	}
	return out, nil
}

func (s *PostGIS) Buffer(ctx context.Context, g orb.Geometry, srid int, radius float64, quadSegs int) (orb.Geometry, error) {
	buf, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	out, err := s.scanGeometry(ctx,
		`SELECT ST_AsBinary(ST_Buffer(ST_GeomFromWKB($1, $2::integer), $3::float8, $4::integer))`,
		buf, srid, radius, quadSegs)
	if err != nil {
		return nil, fmt.Errorf("buffer %.2f: %w", radius, err)
	}
	return out, nil
}

func (s *PostGIS) Difference(ctx context.Context, a, b orb.Geometry, srid int) (orb.Geometry, error) {
	bufA, err := wkb.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	bufB, err := wkb.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	out, err := s.scanGeometry(ctx,
		`SELECT ST_AsBinary(ST_Difference(ST_GeomFromWKB($1, $3::integer), ST_GeomFromWKB($2, $3::integer)))`,
		bufA, bufB, srid)
	if err != nil {
		return nil, fmt.Errorf("difference: %w", err)
	}
	return out, nil
}

func (s *PostGIS) Intersects(ctx context.Context, a, b orb.Geometry, srid int) (bool, error) {
	bufA, err := wkb.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("encode geometry: %w", err)
	}
	bufB, err := wkb.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("encode geometry: %w", err)
	}

	var ok bool
	err = s.db.WithContext(ctx).Raw(
		`SELECT ST_Intersects(ST_GeomFromWKB($1, $3::integer), ST_GeomFromWKB($2, $3::integer))`,
		bufA, bufB, srid).Row().Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("intersects: %w", classify(err))
	}
	return ok, nil
}

func (s *PostGIS) Centroid(ctx context.Context, g orb.Geometry, srid int) (orb.Geometry, error) {
	buf, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	out, err := s.scanGeometry(ctx,
		`SELECT CASE WHEN ST_IsEmpty(c) THEN NULL ELSE ST_AsBinary(c) END
		 FROM (SELECT ST_Centroid(ST_GeomFromWKB($1, $2::integer)) AS c) src`,
		buf, srid)
	if err != nil {
		return nil, fmt.Errorf("centroid: %w", err)
	}
	return out, nil
}

func (s *PostGIS) Distance(ctx context.Context, a, b orb.Geometry, srid, metricSRID int) (float64, bool, error) {
	bufA, err := wkb.Marshal(a)
	if err != nil {
		return 0, false, fmt.Errorf("encode geometry: %w", err)
	}
	bufB, err := wkb.Marshal(b)
	if err != nil {
		return 0, false, fmt.Errorf("encode geometry: %w", err)
	}

	var d sql.NullFloat64
	err = s.db.WithContext(ctx).Raw(`
		SELECT ST_Distance(
			ST_Transform(ST_GeomFromWKB($1, $3::integer), $4::integer),
			ST_Transform(ST_GeomFromWKB($2, $3::integer), $4::integer)
		)`, bufA, bufB, srid, metricSRID).Row().Scan(&d)
	if err != nil {
		return 0, false, fmt.Errorf("distance: %w", classify(err))
	}
	return d.Float64, d.Valid, nil
}

// scanGeometry runs a single-value query returning WKB. A NULL answer is
// reported as a nil geometry.
func (s *PostGIS) scanGeometry(ctx context.Context, query string, args ...interface{}) (orb.Geometry, error) {
	gs := wkb.Scanner(nil)
	if err := s.db.WithContext(ctx).Raw(query, args...).Row().Scan(gs); err != nil {
		return nil, classify(err)
	}
	if !gs.Valid {
		return nil, nil
	}
	return gs.Geometry, nil
}
