package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"

	"github.com/fiscaliza-acuicola/backend/internal/analysis"
	"github.com/fiscaliza-acuicola/backend/internal/db"
	"github.com/fiscaliza-acuicola/backend/internal/layerimport"
)

func main() {
	_ = godotenv.Load(".env.local")

	var (
		path        = flag.String("file", "", "path to a GeoJSON FeatureCollection (required)")
		layerName   = flag.String("layer", string(layerimport.LayerConcessions), "destination layer: concessions or land_mask")
		dsn         = flag.String("db", os.Getenv("DATABASE_URL"), "Postgres DSN (default: env DATABASE_URL)")
		wipe        = flag.Bool("wipe", false, "DANGER: deletes the layer's rows before importing")
		dryRun      = flag.Bool("dry-run", false, "parse + validate only; no DB writes")
		advisoryKey = flag.Int64("advisory-lock", 0, "optional Postgres advisory lock key. 0 = disabled")
	)
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}
	layer, err := layerimport.ParseLayer(*layerName)
	if err != nil {
		log.WithError(err).Fatal("invalid --layer")
	}

	cfg := layerimport.Config{
		Path:         *path,
		Layer:        layer,
		Wipe:         *wipe,
		DryRun:       *dryRun,
		AdvisoryLock: *advisoryKey,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if cfg.DryRun {
		sum, err := layerimport.Run(ctx, nil, cfg)
		if err != nil {
			log.WithError(err).Fatal("import failed")
		}
		fmt.Printf("Dry run: %d %s features parsed. No changes made.\n", sum.Parsed, sum.Layer)
		return
	}

	if *dsn == "" {
		log.Fatal("--db not provided and DATABASE_URL not set")
	}
	gdb, err := db.Connect(*dsn)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	analysis.Init(gdb)

	sum, err := layerimport.Run(ctx, gdb, cfg)
	if err != nil {
		log.WithError(err).Fatal("import failed")
	}
	fmt.Printf("Imported %d %s features (deleted %d)\n", sum.Inserted, sum.Layer, sum.Deleted)
}
