package db

import "gorm.io/gorm"

// EnsureSchema creates a schema if missing. The name must already be validated.
func EnsureSchema(d *gorm.DB, schema string) error {
	return d.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error
}
