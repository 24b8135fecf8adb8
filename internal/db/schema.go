package db

import "gorm.io/gorm"

func EnsureSchema(d *gorm.DB, schema string) error {
	return d.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error
}

// EnsureExtensions enables the extensions the spatial store relies on.
func EnsureExtensions(d *gorm.DB) error {
	for _, ext := range []string{"postgis", "uuid-ossp"} {
		if err := d.Exec(`CREATE EXTENSION IF NOT EXISTS "` + ext + `"`).Error; err != nil {
			return err
		}
	}
	return nil
}
