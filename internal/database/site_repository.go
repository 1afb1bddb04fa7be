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

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SiteRepository manages rows in the sites table.
type SiteRepository struct {
	db *sqlx.DB
}

// NewSiteRepository creates a new site repository.
func NewSiteRepository(db *sqlx.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

const hoursPerInterval = float64(time.Hour)

// Upsert registers a site or updates its settings, reactivating it if
// it was previously deactivated.
func (r *SiteRepository) Upsert(ctx context.Context, site *domain.Site) error {
	intervalHours := site.IntervalHours
	if site.ProcessInterval > 0 {
		intervalHours = float64(site.ProcessInterval) / hoursPerInterval
	}
	if intervalHours <= 0 {
		intervalHours = float64(domain.DefaultProcessInterval) / hoursPerInterval
	}

	query := `
		INSERT INTO sites (site_url, owner, schema_map_url, process_interval_hours, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (site_url, owner) DO UPDATE SET
			schema_map_url = EXCLUDED.schema_map_url,
			process_interval_hours = EXCLUDED.process_interval_hours,
			is_active = TRUE`

	if _, err := r.db.ExecContext(ctx, query,
		site.SiteURL, site.Owner, site.SchemaMapURL, intervalHours); err != nil {
		return fmt.Errorf("failed to upsert site %s: %w", site.SiteURL, err)
	}
	return nil
}

// Get fetches a single site by its normalized URL and owner.
func (r *SiteRepository) Get(ctx context.Context, siteURL, owner string) (*domain.Site, error) {
	query := `
		SELECT site_url, owner, schema_map_url, process_interval_hours,
		       last_processed, is_active, created_at
		FROM sites
		WHERE site_url = $1 AND owner = $2`

	var site domain.Site
	if err := r.db.GetContext(ctx, &site, query, siteURL, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get site %s: %w", siteURL, err)
	}
	site.ProcessInterval = time.Duration(site.IntervalHours * hoursPerInterval)
	return &site, nil
}

// ListActive returns all active sites.
func (r *SiteRepository) ListActive(ctx context.Context) ([]*domain.Site, error) {
	query := `
		SELECT site_url, owner, schema_map_url, process_interval_hours,
		       last_processed, is_active, created_at
		FROM sites
		WHERE is_active = TRUE
		ORDER BY site_url`

	var sites []*domain.Site
	if err := r.db.SelectContext(ctx, &sites, query); err != nil {
		return nil, fmt.Errorf("failed to list active sites: %w", err)
	}
	for _, s := range sites {
		s.ProcessInterval = time.Duration(s.IntervalHours * hoursPerInterval)
	}
	return sites, nil
}

// TouchLastProcessed records that a reconciliation pass for the site
// completed. Called even when the pass found no changes, so a quiet
// site is not rescanned on every tick.
func (r *SiteRepository) TouchLastProcessed(ctx context.Context, siteURL, owner string, at time.Time) error {
	query := `UPDATE sites SET last_processed = $3 WHERE site_url = $1 AND owner = $2`

	if _, err := r.db.ExecContext(ctx, query, siteURL, owner, at); err != nil {
		return fmt.Errorf("failed to touch site %s: %w", siteURL, err)
	}
	return nil
}

// Deactivate marks a site inactive without deleting its history.
func (r *SiteRepository) Deactivate(ctx context.Context, siteURL, owner string) error {
	query := `UPDATE sites SET is_active = FALSE WHERE site_url = $1 AND owner = $2`

	res, err := r.db.ExecContext(ctx, query, siteURL, owner)
	if err != nil {
		return fmt.Errorf("failed to deactivate site %s: %w", siteURL, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSchemaMapURL stores the discovered schema map location so
// later passes skip discovery.
func (r *SiteRepository) UpdateSchemaMapURL(ctx context.Context, siteURL, owner, schemaMapURL string) error {
	query := `UPDATE sites SET schema_map_url = $3 WHERE site_url = $1 AND owner = $2`

	if _, err := r.db.ExecContext(ctx, query, siteURL, owner, schemaMapURL); err != nil {
		return fmt.Errorf("failed to update schema map url for %s: %w", siteURL, err)
	}
	return nil
}
