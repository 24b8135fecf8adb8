package geostore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"gorm.io/gorm"
)

// Options configures the PostGIS store.
type Options struct {
	// LandMaskTable is the polygon layer subtracted from buffers. Unqualified
	// names resolve to Schema. Empty disables masking.
	LandMaskTable string
}

// PostGIS implements Store on a PostGIS database through gorm.
type PostGIS struct {
	db            *gorm.DB
	landMaskTable string
}

var _ Store = (*PostGIS)(nil)

func New(db *gorm.DB, opts Options) *PostGIS {
	table := strings.TrimSpace(opts.LandMaskTable)
	if table != "" && !strings.Contains(table, ".") {
		table = Schema + "." + table
	}
	return &PostGIS{db: db, landMaskTable: table}
}

func (s *PostGIS) WithTx(ctx context.Context, fn func(tx Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PostGIS{db: tx, landMaskTable: s.landMaskTable})
	})
	return classify(err)
}

func (s *PostGIS) LockReport(ctx context.Context, reportID int64) error {
	key := fmt.Sprintf("%s.analysis:%d", Schema, reportID)
	if err := s.db.WithContext(ctx).Exec(`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key).Error; err != nil {
		return fmt.Errorf("advisory lock for report %d: %w", reportID, classify(err))
	}
	return nil
}

func (s *PostGIS) ReportExists(ctx context.Context, reportID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Report{}).Where("id = ?", reportID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("report lookup failed: %w", classify(err))
	}
	return count > 0, nil
}

func (s *PostGIS) FetchEvidencePoints(ctx context.Context, reportID int64) ([]EvidencePoint, error) {
	query := `
		SELECT id, report_id, captured_at, description, photo_url, ST_AsBinary(geom)
		FROM fiscaliza.evidence_points
		WHERE report_id = $1
		ORDER BY captured_at, id
	`

	rows, err := s.db.WithContext(ctx).Raw(query, reportID).Rows()
	if err != nil {
		return nil, fmt.Errorf("evidence query failed: %w", classify(err))
	}
	defer rows.Close()

	var points []EvidencePoint
	for rows.Next() {
		var p EvidencePoint
		if err := rows.Scan(&p.ID, &p.ReportID, &p.CapturedAt, &p.Description, &p.PhotoURL, wkb.Scanner(&p.Location)); err != nil {
			return nil, fmt.Errorf("scan evidence point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("evidence rows: %w", classify(err))
	}

	return points, nil
}

func (s *PostGIS) FetchAllConcessions(ctx context.Context) ([]Concession, error) {
	query := `
		SELECT id, code, holder, kind, name, region, ST_AsBinary(ST_Multi(geom))
		FROM fiscaliza.concessions
		ORDER BY id
	`

	rows, err := s.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("concession query failed: %w", classify(err))
	}
	defer rows.Close()

	var out []Concession
	for rows.Next() {
		var c Concession
		if err := rows.Scan(&c.ID, &c.Code, &c.Holder, &c.Kind, &c.Name, &c.Region, wkb.Scanner(&c.Geometry)); err != nil {
			return nil, fmt.Errorf("scan concession: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("concession rows: %w", classify(err))
	}

	return out, nil
}

func (s *PostGIS) FetchLandMask(ctx context.Context) (orb.Geometry, bool, error) {
	if s.landMaskTable == "" {
		return nil, false, nil
	}

	var regclass sql.NullString
	if err := s.db.WithContext(ctx).Raw(`SELECT to_regclass($1)::text`, s.landMaskTable).Row().Scan(&regclass); err != nil {
		return nil, false, fmt.Errorf("land mask lookup failed: %w", classify(err))
	}
	if !regclass.Valid {
		return nil, false, nil
	}

	query := fmt.Sprintf(`SELECT ST_AsBinary(ST_Union(geom)) FROM %s`, quoteQualified(s.landMaskTable))
	mask, err := s.scanGeometry(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("land mask union failed: %w", err)
	}
	if mask == nil {
		return nil, false, nil
	}
	return mask, true, nil
}

func (s *PostGIS) QueryConcessions(ctx context.Context, buffer orb.Geometry, metricSRID int, onlyIntersecting bool) ([]ConcessionHit, error) {
	buf, err := wkb.Marshal(buffer)
	if err != nil {
		return nil, fmt.Errorf("encode buffer: %w", err)
	}

	where := ""
	if onlyIntersecting {
		// Repeating the predicate in WHERE lets the planner use the GIST index.
		where = "WHERE ST_Intersects(c.geom, b.geom)"
	}

	query := fmt.Sprintf(`
		WITH b AS (
			SELECT g AS geom, ST_Transform(g, $2::integer) AS metric
			FROM (SELECT ST_GeomFromWKB($1, 4326) AS g) src
		)
		SELECT
			c.id,
			c.code,
			c.holder,
			COALESCE(c.kind, ''),
			COALESCE(c.region, ''),
			ST_Intersects(c.geom, b.geom) AS intersects,
			ST_Distance(ST_Transform(ST_Centroid(c.geom), $2::integer), b.metric) AS min_distance
		FROM fiscaliza.concessions c
		CROSS JOIN b
		%s
		ORDER BY min_distance ASC NULLS LAST, c.id
	`, where)

	rows, err := s.db.WithContext(ctx).Raw(query, buf, metricSRID).Rows()
	if err != nil {
		return nil, fmt.Errorf("intersection query failed: %w", classify(err))
	}
	defer rows.Close()

	var hits []ConcessionHit
	for rows.Next() {
		var h ConcessionHit
		if err := rows.Scan(&h.ConcessionID, &h.Code, &h.Holder, &h.Kind, &h.Region, &h.Intersects, &h.MinDistanceMeters); err != nil {
			return nil, fmt.Errorf("scan concession hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("intersection rows: %w", classify(err))
	}

	return hits, nil
}

func (s *PostGIS) CreateAnalysis(ctx context.Context, a *Analysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("insert analysis: %w", classify(err))
	}
	return nil
}

func (s *PostGIS) SetAnalysisBuffer(ctx context.Context, analysisID uuid.UUID, buffer orb.Geometry) error {
	buf, err := wkb.Marshal(buffer)
	if err != nil {
		return fmt.Errorf("encode buffer: %w", err)
	}

	res := s.db.WithContext(ctx).Exec(`
		UPDATE fiscaliza.analyses
		SET buffer_geom = ST_Multi(ST_CollectionExtract(ST_GeomFromWKB($1, 4326), 3))
		WHERE id = $2 AND buffer_geom IS NULL
	`, buf, analysisID)
	if res.Error != nil {
		return fmt.Errorf("update analysis buffer: %w", classify(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("analysis %s without buffer: %w", analysisID, ErrNotFound)
	}
	return nil
}

func (s *PostGIS) CreateAnalysisResults(ctx context.Context, analysisID uuid.UUID, hits []ConcessionHit) ([]AnalysisResult, error) {
	results := make([]AnalysisResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, AnalysisResult{
			ID:                uuid.New(),
			AnalysisID:        analysisID,
			ConcessionID:      h.ConcessionID,
			Intersects:        h.Intersects,
			MinDistanceMeters: h.MinDistanceMeters,
		})
	}
	if len(results) == 0 {
		return results, nil
	}

	if err := s.db.WithContext(ctx).CreateInBatches(&results, 500).Error; err != nil {
		return nil, fmt.Errorf("insert analysis results: %w", classify(err))
	}
	return results, nil
}

const analysisColumns = `a.id, a.report_id, a.executed_at, a.radius_m, a.method, a.notes, ST_AsBinary(a.buffer_geom)`

func (s *PostGIS) GetAnalysis(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM fiscaliza.analyses a WHERE a.id = $1`

	a, err := scanAnalysis(s.db.WithContext(ctx).Raw(query, id).Row())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("analysis lookup failed: %w", classify(err))
	}
	return a, nil
}

func (s *PostGIS) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]Analysis, error) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	if filter.ReportID != nil {
		conditions = append(conditions, fmt.Sprintf("a.report_id = $%d", argIdx))
		args = append(args, *filter.ReportID)
		argIdx++
	}
	if filter.BBox != nil {
		conditions = append(conditions, fmt.Sprintf(
			"ST_Intersects(a.buffer_geom, ST_MakeEnvelope($%d, $%d, $%d, $%d, 4326))",
			argIdx, argIdx+1, argIdx+2, argIdx+3,
		))
		args = append(args, filter.BBox.Min.Lon(), filter.BBox.Min.Lat(), filter.BBox.Max.Lon(), filter.BBox.Max.Lat())
		argIdx += 4
	}

	query := `SELECT ` + analysisColumns + ` FROM fiscaliza.analyses a`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY a.executed_at DESC, a.id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("analysis list failed: %w", classify(err))
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analysis rows: %w", classify(err))
	}

	return out, nil
}

func (s *PostGIS) ListAnalysisResults(ctx context.Context, analysisIDs []uuid.UUID) (map[uuid.UUID][]AnalysisResult, error) {
	out := make(map[uuid.UUID][]AnalysisResult, len(analysisIDs))
	if len(analysisIDs) == 0 {
		return out, nil
	}

	ids := make([]string, len(analysisIDs))
	for i, id := range analysisIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT id, analysis_id, concession_id, intersects, min_distance_m
		FROM fiscaliza.analysis_results
		WHERE analysis_id = ANY($1::uuid[])
		ORDER BY analysis_id, min_distance_m ASC NULLS LAST, concession_id
	`

	rows, err := s.db.WithContext(ctx).Raw(query, pq.Array(ids)).Rows()
	if err != nil {
		return nil, fmt.Errorf("analysis results query failed: %w", classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		var r AnalysisResult
		if err := rows.Scan(&r.ID, &r.AnalysisID, &r.ConcessionID, &r.Intersects, &r.MinDistanceMeters); err != nil {
			return nil, fmt.Errorf("scan analysis result: %w", err)
		}
		out[r.AnalysisID] = append(out[r.AnalysisID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analysis result rows: %w", classify(err))
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (*Analysis, error) {
	var a Analysis
	var executedAt time.Time
	buffer := wkb.Scanner(nil)
	if err := row.Scan(&a.ID, &a.ReportID, &executedAt, &a.RadiusMeters, &a.Method, &a.Notes, buffer); err != nil {
		return nil, err
	}
	a.ExecutedAt = executedAt.UTC()
	if buffer.Valid {
		a.Buffer = buffer.Geometry
	}
	return &a, nil
}

// quoteQualified quotes each part of a possibly schema-qualified identifier.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
