package geostore

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates every table of the store. Geometry columns are
// added with raw DDL since gorm has no PostGIS column type.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Report{},
		&EvidencePoint{},
		&Concession{},
		&LandMask{},
		&Analysis{},
		&AnalysisResult{},
	); err != nil {
		return fmt.Errorf("auto-migrate spatial tables: %w", err)
	}

	stmts := []string{
		`ALTER TABLE fiscaliza.evidence_points ADD COLUMN IF NOT EXISTS geom geometry(Point, 4326) NOT NULL`,
		`ALTER TABLE fiscaliza.concessions ADD COLUMN IF NOT EXISTS geom geometry(MultiPolygon, 4326) NOT NULL`,
		`ALTER TABLE fiscaliza.land_mask ADD COLUMN IF NOT EXISTS geom geometry(MultiPolygon, 4326) NOT NULL`,
		`ALTER TABLE fiscaliza.analyses ADD COLUMN IF NOT EXISTS buffer_geom geometry(MultiPolygon, 4326)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_points_geom ON fiscaliza.evidence_points USING GIST (geom)`,
		`CREATE INDEX IF NOT EXISTS idx_concessions_geom ON fiscaliza.concessions USING GIST (geom)`,
		`CREATE INDEX IF NOT EXISTS idx_land_mask_geom ON fiscaliza.land_mask USING GIST (geom)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_buffer_geom ON fiscaliza.analyses USING GIST (buffer_geom)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("spatial DDL %q: %w", stmt, err)
		}
	}

	return nil
}
