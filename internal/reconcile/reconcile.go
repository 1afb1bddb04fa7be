// Package reconcile compares a site's live schema map against the
// ledger and enqueues the jobs that bring the system back into
// agreement: ingest jobs for current files, teardown jobs for files
// that vanished.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
)

// FileStore is the slice of the ledger the reconciler reads and writes.
type FileStore interface {
	ListActiveForSite(ctx context.Context, siteURL, owner string) ([]*domain.File, error)
	Upsert(ctx context.Context, file *domain.File) error
	Deactivate(ctx context.Context, fileURL, owner string) error
}

// SiteStore records reconciliation progress on the site row.
type SiteStore interface {
	TouchLastProcessed(ctx context.Context, siteURL, owner string, at time.Time) error
	UpdateSchemaMapURL(ctx context.Context, siteURL, owner, schemaMapURL string) error
}

// ManifestSource resolves and fetches a site's schema map.
type ManifestSource interface {
	SchemaMapURL(ctx context.Context, site *domain.Site) (string, error)
	Manifest(ctx context.Context, schemaMapURL string) ([]domain.ManifestEntry, error)
}

// JobSender enqueues work for ingestion workers.
type JobSender interface {
	Send(ctx context.Context, job *domain.Job) error
}

// Summary reports what one reconciliation pass changed.
type Summary struct {
	// Added is the number of files new to the ledger this pass.
	Added int

	// Removed is the number of files deactivated this pass.
	Removed int

	// Enqueued is the total number of jobs sent.
	Enqueued int
}

// Reconciler drives schema map reconciliation. Passes for the same
// site are serialized on a per-site mutex so concurrent triggers
// cannot interleave their diffs; different sites proceed in parallel.
type Reconciler struct {
	files    FileStore
	sites    SiteStore
	manifest ManifestSource
	jobs     JobSender
	logger   logger.Interface

	siteLocks sync.Map // normalized site URL -> *sync.Mutex
}

// NewReconciler creates a reconciler.
func NewReconciler(files FileStore, sites SiteStore, manifest ManifestSource, jobs JobSender, log logger.Interface) *Reconciler {
	return &Reconciler{
		files:    files,
		sites:    sites,
		manifest: manifest,
		jobs:     jobs,
		logger:   log.WithComponent("reconcile"),
	}
}

// lockSite returns the mutex serializing passes for a site.
func (r *Reconciler) lockSite(siteURL string) *sync.Mutex {
	key := domain.NormalizeSiteURL(siteURL)
	mu, _ := r.siteLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ReconcileSite runs one reconciliation pass for a site: fetch the
// live schema map, diff it against the ledger's active files, enqueue
// ingest jobs for newly listed files and teardown jobs for vanished
// ones, and advance the site's last-processed marker. A pass with no
// changes still advances the marker.
func (r *Reconciler) ReconcileSite(ctx context.Context, site *domain.Site) (*Summary, error) {
	mu := r.lockSite(site.SiteURL)
	mu.Lock()
	defer mu.Unlock()

	schemaMapURL, err := r.manifest.SchemaMapURL(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("failed to locate schema map for %s: %w", site.SiteURL, err)
	}
	if site.SchemaMapURL == "" {
		if err := r.sites.UpdateSchemaMapURL(ctx, site.SiteURL, site.Owner, schemaMapURL); err != nil {
			r.logger.Warn("failed to persist schema map url",
				"site", site.SiteURL, "error", err)
		}
	}

	entries, err := r.manifest.Manifest(ctx, schemaMapURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema map for %s: %w", site.SiteURL, err)
	}

	existing, err := r.files.ListActiveForSite(ctx, site.SiteURL, site.Owner)
	if err != nil {
		return nil, err
	}

	current := make(map[string]domain.ManifestEntry, len(entries))
	for _, e := range entries {
		current[e.FileURL] = e
	}
	known := make(map[string]*domain.File, len(existing))
	for _, f := range existing {
		known[f.FileURL] = f
	}

	summary := &Summary{}

	// Exactly one job per delta file. Files present in both the
	// schema map and the ledger get no job; a file that returns after
	// deactivation is reactivated by the upsert.
	for _, entry := range entries {
		if _, ok := known[entry.FileURL]; ok {
			continue
		}
		summary.Added++

		file := &domain.File{
			FileURL:     entry.FileURL,
			Owner:       site.Owner,
			SiteURL:     site.SiteURL,
			SchemaMap:   schemaMapURL,
			ContentType: entry.ContentType,
		}
		if err := r.files.Upsert(ctx, file); err != nil {
			return nil, err
		}

		job := &domain.Job{
			Type:        domain.JobTypeIngestFile,
			Owner:       site.Owner,
			SiteURL:     site.SiteURL,
			FileURL:     entry.FileURL,
			SchemaMap:   schemaMapURL,
			ContentType: entry.ContentType,
		}
		if err := r.jobs.Send(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to enqueue ingest job for %s: %w", entry.FileURL, err)
		}
		summary.Enqueued++
	}

	// Files the ledger knows but the schema map no longer lists are
	// deactivated first, then torn down by a worker. Manually
	// registered files are exempt; only their owner removes them.
	for _, file := range existing {
		if _, ok := current[file.FileURL]; ok {
			continue
		}
		if file.Manual {
			continue
		}

		if err := r.files.Deactivate(ctx, file.FileURL, file.Owner); err != nil {
			return nil, err
		}

		job := &domain.Job{
			Type:    domain.JobTypeRemoveFile,
			Owner:   file.Owner,
			SiteURL: site.SiteURL,
			FileURL: file.FileURL,
		}
		if err := r.jobs.Send(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to enqueue removal job for %s: %w", file.FileURL, err)
		}
		summary.Removed++
		summary.Enqueued++
	}

	if err := r.sites.TouchLastProcessed(ctx, site.SiteURL, site.Owner, time.Now().UTC()); err != nil {
		return nil, err
	}

	r.logger.Info("reconciled site",
		"site", site.SiteURL,
		"current", len(entries),
		"added", summary.Added,
		"removed", summary.Removed,
		"enqueued", summary.Enqueued)
	return summary, nil
}

// RegisterManualFile records a file outside any schema map and
// enqueues its ingestion. Manual files survive reconciliation passes
// that would otherwise deactivate unlisted files.
func (r *Reconciler) RegisterManualFile(ctx context.Context, site *domain.Site, fileURL, contentType string) error {
	mu := r.lockSite(site.SiteURL)
	mu.Lock()
	defer mu.Unlock()

	file := &domain.File{
		FileURL:     fileURL,
		Owner:       site.Owner,
		SiteURL:     site.SiteURL,
		ContentType: contentType,
		Manual:      true,
	}
	if err := r.files.Upsert(ctx, file); err != nil {
		return err
	}

	job := &domain.Job{
		Type:        domain.JobTypeIngestFile,
		Owner:       site.Owner,
		SiteURL:     site.SiteURL,
		FileURL:     fileURL,
		ContentType: contentType,
	}
	if err := r.jobs.Send(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue ingest job for %s: %w", fileURL, err)
	}
	return nil
}
