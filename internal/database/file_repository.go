package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/goingest/internal/domain"
)

// FileRepository manages rows in the files table.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository creates a new file repository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Get fetches a single file row.
func (r *FileRepository) Get(ctx context.Context, fileURL, owner string) (*domain.File, error) {
	query := `
		SELECT file_url, owner, site_url, schema_map, content_type,
		       last_read_time, number_of_items, is_manual, is_active
		FROM files
		WHERE file_url = $1 AND owner = $2`

	var file domain.File
	if err := r.db.GetContext(ctx, &file, query, fileURL, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file %s: %w", fileURL, err)
	}
	return &file, nil
}

// ListActiveForSite returns the active files the ledger knows for a
// site. This is the "existing" side of schema map reconciliation.
func (r *FileRepository) ListActiveForSite(ctx context.Context, siteURL, owner string) ([]*domain.File, error) {
	query := `
		SELECT file_url, owner, site_url, schema_map, content_type,
		       last_read_time, number_of_items, is_manual, is_active
		FROM files
		WHERE site_url = $1 AND owner = $2 AND is_active = TRUE
		ORDER BY file_url`

	var files []*domain.File
	if err := r.db.SelectContext(ctx, &files, query, siteURL, owner); err != nil {
		return nil, fmt.Errorf("failed to list files for site %s: %w", siteURL, err)
	}
	return files, nil
}

// Upsert inserts a file row or updates an existing one, reactivating
// it if it was previously deactivated. A file that disappears from a
// schema map and later returns picks up its old row.
func (r *FileRepository) Upsert(ctx context.Context, file *domain.File) error {
	query := `
		INSERT INTO files (file_url, owner, site_url, schema_map, content_type, is_manual, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (file_url, owner) DO UPDATE SET
			site_url = EXCLUDED.site_url,
			schema_map = EXCLUDED.schema_map,
			content_type = EXCLUDED.content_type,
			is_manual = EXCLUDED.is_manual,
			is_active = TRUE`

	if _, err := r.db.ExecContext(ctx, query,
		file.FileURL, file.Owner, file.SiteURL, file.SchemaMap,
		file.ContentType, file.Manual); err != nil {
		return fmt.Errorf("failed to upsert file %s: %w", file.FileURL, err)
	}
	return nil
}

// Deactivate soft-deletes a file row. History and error records
// survive; the teardown job removes derived state.
func (r *FileRepository) Deactivate(ctx context.Context, fileURL, owner string) error {
	query := `UPDATE files SET is_active = FALSE WHERE file_url = $1 AND owner = $2`

	if _, err := r.db.ExecContext(ctx, query, fileURL, owner); err != nil {
		return fmt.Errorf("failed to deactivate file %s: %w", fileURL, err)
	}
	return nil
}

// UpdateReadStats records a successful processing pass over a file.
func (r *FileRepository) UpdateReadStats(ctx context.Context, fileURL, owner string, itemCount int, readAt time.Time) error {
	query := `
		UPDATE files
		SET last_read_time = $3, number_of_items = $4
		WHERE file_url = $1 AND owner = $2`

	if _, err := r.db.ExecContext(ctx, query, fileURL, owner, readAt, itemCount); err != nil {
		return fmt.Errorf("failed to update read stats for %s: %w", fileURL, err)
	}
	return nil
}
