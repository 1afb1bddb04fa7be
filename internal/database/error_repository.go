package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/goingest/internal/domain"
)

// ProcessingErrorRepository manages the processing_errors table.
type ProcessingErrorRepository struct {
	db *sqlx.DB
}

// NewProcessingErrorRepository creates a new processing error repository.
func NewProcessingErrorRepository(db *sqlx.DB) *ProcessingErrorRepository {
	return &ProcessingErrorRepository{db: db}
}

// Log appends an error record for a file.
func (r *ProcessingErrorRepository) Log(ctx context.Context, pe *domain.ProcessingError) error {
	query := `
		INSERT INTO processing_errors (file_url, owner, error_type, error_message, error_details)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.ExecContext(ctx, query,
		pe.FileURL, pe.Owner, pe.ErrorType, pe.Message, pe.Details); err != nil {
		return fmt.Errorf("failed to log processing error for %s: %w", pe.FileURL, err)
	}
	return nil
}

// ListForFile returns the recorded errors for a file, newest first.
func (r *ProcessingErrorRepository) ListForFile(ctx context.Context, fileURL, owner string) ([]*domain.ProcessingError, error) {
	query := `
		SELECT id, file_url, owner, error_type, error_message, error_details, occurred_at
		FROM processing_errors
		WHERE file_url = $1 AND owner = $2
		ORDER BY occurred_at DESC`

	var errs []*domain.ProcessingError
	if err := r.db.SelectContext(ctx, &errs, query, fileURL, owner); err != nil {
		return nil, fmt.Errorf("failed to list processing errors for %s: %w", fileURL, err)
	}
	return errs, nil
}

// ClearForFile removes all error records for a file. Called after a
// fully successful processing pass so stale diagnostics do not linger.
func (r *ProcessingErrorRepository) ClearForFile(ctx context.Context, fileURL, owner string) error {
	query := `DELETE FROM processing_errors WHERE file_url = $1 AND owner = $2`

	if _, err := r.db.ExecContext(ctx, query, fileURL, owner); err != nil {
		return fmt.Errorf("failed to clear processing errors for %s: %w", fileURL, err)
	}
	return nil
}
