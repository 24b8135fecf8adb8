package analysis

import (
	"github.com/apex/log"
	"gorm.io/gorm"

	"github.com/fiscaliza-acuicola/backend/internal/db"
	"github.com/fiscaliza-acuicola/backend/internal/geostore"
)

// Init prepares the database for the analysis engine.
func Init(gdb *gorm.DB) {
	if err := db.EnsureExtensions(gdb); err != nil {
		log.WithError(err).Fatal("failed to enable postgis extensions")
	}

	// Ensure the fiscaliza schema exists first
	if err := db.EnsureSchema(gdb, geostore.Schema); err != nil {
		log.WithError(err).WithField("schema", geostore.Schema).Fatal("failed to create schema")
	}

	if err := geostore.Migrate(gdb); err != nil {
		log.WithError(err).Fatal("failed to migrate spatial tables")
	}
}
