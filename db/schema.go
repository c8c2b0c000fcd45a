// ABOUTME: Schema creation for the local branding cache
// ABOUTME: Defines branding_records and pending_events tables
package db

import (
	"database/sql"
	"fmt"
)

// InitSchema creates the cache tables if they do not exist. The schema is
// small enough that one-shot creation beats a migration chain.
func InitSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS branding_records (
			phone_number TEXT PRIMARY KEY,
			brand_name   TEXT NOT NULL DEFAULT '',
			logo_url     TEXT NOT NULL DEFAULT '',
			reason       TEXT NOT NULL DEFAULT '',
			updated_at   TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_branding_records_brand
			ON branding_records(brand_name)`,
		`CREATE TABLE IF NOT EXISTS pending_events (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			attributes TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
