package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements creates the ledger tables and indexes. Statements
// are idempotent so migration can run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sites (
		site_url TEXT NOT NULL,
		owner TEXT NOT NULL,
		schema_map_url TEXT NOT NULL DEFAULT '',
		process_interval_hours DOUBLE PRECISION NOT NULL DEFAULT 720,
		last_processed TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (site_url, owner)
	)`,

	`CREATE TABLE IF NOT EXISTS files (
		file_url TEXT NOT NULL,
		owner TEXT NOT NULL,
		site_url TEXT NOT NULL,
		schema_map TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		last_read_time TIMESTAMPTZ,
		number_of_items INTEGER NOT NULL DEFAULT 0,
		is_manual BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (file_url, owner)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_files_site
		ON files (site_url, owner)`,

	`CREATE TABLE IF NOT EXISTS content_refs (
		file_url TEXT NOT NULL,
		owner TEXT NOT NULL,
		content_id TEXT NOT NULL,
		PRIMARY KEY (file_url, owner, content_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_content_refs_content
		ON content_refs (owner, content_id)`,

	`CREATE TABLE IF NOT EXISTS processing_errors (
		id BIGSERIAL PRIMARY KEY,
		file_url TEXT NOT NULL,
		owner TEXT NOT NULL,
		error_type TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		error_details TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_processing_errors_file
		ON processing_errors (file_url, owner)`,
}

// EnsureSchema creates the ledger schema if it does not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
