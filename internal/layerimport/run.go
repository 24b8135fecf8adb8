package layerimport

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/paulmach/orb/encoding/wkb"
	"gorm.io/gorm"

	"github.com/fiscaliza-acuicola/backend/internal/geostore"
)

type Config struct {
	Path         string
	Layer        Layer
	Wipe         bool
	DryRun       bool
	AdvisoryLock int64
}

// Summary reports what an import did or, on a dry run, would do.
type Summary struct {
	Layer    Layer
	Parsed   int
	Deleted  int64
	Inserted int
	DryRun   bool
}

// Run parses the layer file and, unless DryRun is set, loads it in a single
// transaction. Wipe empties the destination table first.
func Run(ctx context.Context, db *gorm.DB, cfg Config) (*Summary, error) {
	features, err := ParseFile(cfg.Path, cfg.Layer)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Layer: cfg.Layer, Parsed: len(features), DryRun: cfg.DryRun}
	logger := log.WithFields(log.Fields{"layer": string(cfg.Layer), "file": cfg.Path})
	logger.WithField("features", len(features)).Info("layer parsed")

	if cfg.DryRun {
		return sum, nil
	}
	if db == nil {
		return nil, errors.New("no database connection")
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Optional advisory lock to avoid concurrent imports
		if cfg.AdvisoryLock != 0 {
			if err := tx.Exec(`SELECT pg_advisory_xact_lock($1)`, cfg.AdvisoryLock).Error; err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
		}

		if cfg.Wipe {
			res := tx.Exec(`DELETE FROM ` + tableFor(cfg.Layer))
			if res.Error != nil {
				return fmt.Errorf("wipe %s: %w", cfg.Layer, res.Error)
			}
			sum.Deleted = res.RowsAffected
		}

		for i, f := range features {
			if err := insert(tx, cfg.Layer, f); err != nil {
				return fmt.Errorf("insert feature %d: %w", i+1, err)
			}
			sum.Inserted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(log.Fields{"deleted": sum.Deleted, "inserted": sum.Inserted}).Info("layer imported")
	return sum, nil
}

func tableFor(layer Layer) string {
	if layer == LayerLandMask {
		return geostore.LandMask{}.TableName()
	}
	return geostore.Concession{}.TableName()
}

func insert(tx *gorm.DB, layer Layer, f Feature) error {
	geom, err := wkb.Marshal(f.Geometry)
	if err != nil {
		return fmt.Errorf("encode geometry: %w", err)
	}

	if layer == LayerLandMask {
		name := ""
		if f.Name != nil {
			name = *f.Name
		}
		return tx.Exec(`
			INSERT INTO fiscaliza.land_mask (name, geom)
			VALUES ($1, ST_Multi(ST_CollectionExtract(ST_MakeValid(ST_GeomFromWKB($2, 4326)), 3)))
		`, name, geom).Error
	}

	return tx.Exec(`
		INSERT INTO fiscaliza.concessions (code, holder, kind, name, region, geom)
		VALUES ($1, $2, $3, $4, $5, ST_Multi(ST_CollectionExtract(ST_MakeValid(ST_GeomFromWKB($6, 4326)), 3)))
	`, f.Code, f.Holder, f.Kind, f.Name, f.Region, geom).Error
}
