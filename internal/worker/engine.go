package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/goingest/internal/database"
	"github.com/jonesrussell/goingest/internal/discover"
	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
)

// RefStore is the slice of the ledger tracking which entity IDs each
// file contributes.
type RefStore interface {
	IDsForFile(ctx context.Context, fileURL, owner string) ([]string, error)
	ApplyDiff(ctx context.Context, fileURL, owner string, added, removed []string) error
	CountRefs(ctx context.Context, owner string, contentIDs []string) (map[string]int, error)
	RemoveFile(ctx context.Context, fileURL, owner string) ([]string, error)
}

// FileStore is the slice of the ledger describing content files.
type FileStore interface {
	Get(ctx context.Context, fileURL, owner string) (*domain.File, error)
	UpdateReadStats(ctx context.Context, fileURL, owner string, itemCount int, readAt time.Time) error
}

// SiteStore records ingestion progress on the owning site.
type SiteStore interface {
	TouchLastProcessed(ctx context.Context, siteURL, owner string, at time.Time) error
}

// ErrorStore records and clears per-file processing errors.
type ErrorStore interface {
	Log(ctx context.Context, pe *domain.ProcessingError) error
	ClearForFile(ctx context.Context, fileURL, owner string) error
}

// ObjectStore holds canonical entity payloads.
type ObjectStore interface {
	Put(ctx context.Context, entity *domain.Entity) error
	Delete(ctx context.Context, siteURL, contentID string) error
}

// IndexStore holds searchable entity documents.
type IndexStore interface {
	Add(ctx context.Context, entity *domain.Entity) error
	Delete(ctx context.Context, contentID string) error
}

// Engine executes ingest and teardown jobs. The ledger commit is the
// durability boundary of a pass: once reference changes commit, the
// derived stores are brought into line, and any failure after the
// commit is repaired by reprocessing the same job.
type Engine struct {
	fetcher   discover.HTTPFetcher
	extractor Extractor
	refs      RefStore
	files     FileStore
	sites     SiteStore
	errs      ErrorStore
	objects   ObjectStore
	index     IndexStore
	logger    logger.Interface
}

// NewEngine creates a job processing engine.
func NewEngine(
	fetcher discover.HTTPFetcher,
	extractor Extractor,
	refs RefStore,
	files FileStore,
	sites SiteStore,
	errs ErrorStore,
	objects ObjectStore,
	index IndexStore,
	log logger.Interface,
) *Engine {
	return &Engine{
		fetcher:   fetcher,
		extractor: extractor,
		refs:      refs,
		files:     files,
		sites:     sites,
		errs:      errs,
		objects:   objects,
		index:     index,
		logger:    log.WithComponent("engine"),
	}
}

// Process dispatches a job by type.
func (e *Engine) Process(ctx context.Context, job *domain.Job) error {
	switch job.Type {
	case domain.JobTypeIngestFile:
		return e.processIngest(ctx, job)
	case domain.JobTypeRemoveFile:
		return e.processRemove(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %q", job.Type)
	}
}

// processIngest runs one ingestion pass over a content file.
//
// The pass is idempotent: the diff against the ledger makes rerunning
// it on unchanged content a no-op, and rerunning it after a partial
// failure finishes the remaining derived-store work.
func (e *Engine) processIngest(ctx context.Context, job *domain.Job) error {
	// The file row may be gone if the file was torn down while this
	// job waited in the queue. Nothing to do then.
	file, err := e.files.Get(ctx, job.FileURL, job.Owner)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			e.logger.Info("skipping job for unknown file", "file_url", job.FileURL)
			return nil
		}
		return e.fail(ctx, job, domain.ErrorTypeStore, "failed to load file record", err)
	}
	if !file.Active {
		e.logger.Info("skipping job for inactive file", "file_url", job.FileURL)
		return nil
	}

	data, err := e.fetcher.Fetch(ctx, job.FileURL)
	if err != nil {
		return e.fail(ctx, job, domain.ErrorTypeDownload, "failed to download file", err)
	}

	entities, err := e.extractor.Extract(job.FileURL, job.SiteURL, data)
	if err != nil {
		return e.fail(ctx, job, domain.ErrorTypeExtraction, "failed to extract entities", err)
	}

	currentIDs := domain.EntityIDs(entities)
	byID := make(map[string]*domain.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	existingIDs, err := e.refs.IDsForFile(ctx, job.FileURL, job.Owner)
	if err != nil {
		return e.fail(ctx, job, domain.ErrorTypeStore, "failed to read ledger references", err)
	}

	added, removed := diffIDs(currentIDs, existingIDs)

	// Durability boundary. After this commit the ledger reflects the
	// new content; everything below repairs the derived stores and is
	// safe to repeat.
	if err := e.refs.ApplyDiff(ctx, job.FileURL, job.Owner, added, removed); err != nil {
		return e.fail(ctx, job, domain.ErrorTypeStore, "failed to commit reference diff", err)
	}

	if err := e.writeAdded(ctx, job, added, byID); err != nil {
		return err
	}
	if err := e.purgeOrphans(ctx, job, removed); err != nil {
		return err
	}

	if err := e.files.UpdateReadStats(ctx, job.FileURL, job.Owner, len(entities), time.Now().UTC()); err != nil {
		return e.fail(ctx, job, domain.ErrorTypeStore, "failed to update read stats", err)
	}
	if err := e.errs.ClearForFile(ctx, job.FileURL, job.Owner); err != nil {
		e.logger.Warn("failed to clear processing errors", "file_url", job.FileURL, "error", err)
	}
	if err := e.sites.TouchLastProcessed(ctx, job.SiteURL, job.Owner, time.Now().UTC()); err != nil {
		e.logger.Warn("failed to touch site", "site", job.SiteURL, "error", err)
	}

	if len(entities) == 0 {
		e.record(ctx, job, domain.ErrorTypeNoContent, "file yielded no entities", "")
	}

	e.logger.Info("ingested file",
		"file_url", job.FileURL,
		"entities", len(entities),
		"added", len(added),
		"removed", len(removed))
	return nil
}

// processRemove tears down a file: its references and row leave the
// ledger in one transaction, then entities no other file references
// are purged from the derived stores.
func (e *Engine) processRemove(ctx context.Context, job *domain.Job) error {
	ids, err := e.refs.RemoveFile(ctx, job.FileURL, job.Owner)
	if err != nil {
		return e.fail(ctx, job, domain.ErrorTypeStore, "failed to remove file from ledger", err)
	}

	if err := e.purgeOrphans(ctx, job, ids); err != nil {
		return err
	}

	if err := e.errs.ClearForFile(ctx, job.FileURL, job.Owner); err != nil {
		e.logger.Warn("failed to clear processing errors", "file_url", job.FileURL, "error", err)
	}

	e.logger.Info("removed file", "file_url", job.FileURL, "references", len(ids))
	return nil
}

// writeAdded materializes newly referenced entities in the derived
// stores. Only first references write: an entity another file already
// contributed is already stored and indexed. The object store write
// precedes the index write so the index never points at a payload that
// does not exist.
func (e *Engine) writeAdded(ctx context.Context, job *domain.Job, added []string, byID map[string]*domain.Entity) error {
	if len(added) == 0 {
		return nil
	}

	counts, err := e.refs.CountRefs(ctx, job.Owner, added)
	if err != nil {
		return e.fail(ctx, job, domain.ErrorTypeStore, "failed to count references", err)
	}

	for _, id := range added {
		if counts[id] != 1 {
			continue
		}
		entity, ok := byID[id]
		if !ok {
			continue
		}
		if err := e.objects.Put(ctx, entity); err != nil {
			return e.fail(ctx, job, domain.ErrorTypeStore, "failed to store entity payload", err)
		}
		if err := e.index.Add(ctx, entity); err != nil {
			return e.fail(ctx, job, domain.ErrorTypeStore, "failed to index entity", err)
		}
	}
	return nil
}

// purgeOrphans removes entities whose reference count dropped to zero.
// The index entry goes first so a half-purged entity is unsearchable
// rather than searchable with a missing payload.
func (e *Engine) purgeOrphans(ctx context.Context, job *domain.Job, removed []string) error {
	if len(removed) == 0 {
		return nil
	}

	counts, err := e.refs.CountRefs(ctx, job.Owner, removed)
	if err != nil {
		return e.fail(ctx, job, domain.ErrorTypeStore, "failed to count references", err)
	}

	for _, id := range removed {
		if counts[id] != 0 {
			continue
		}
		if err := e.index.Delete(ctx, id); err != nil {
			return e.fail(ctx, job, domain.ErrorTypeStore, "failed to delete index entry", err)
		}
		if err := e.objects.Delete(ctx, job.SiteURL, id); err != nil {
			return e.fail(ctx, job, domain.ErrorTypeStore, "failed to delete entity payload", err)
		}
	}
	return nil
}

// NoteRecovered records that a job reached this worker through crash
// recovery rather than first delivery.
func (e *Engine) NoteRecovered(ctx context.Context, job *domain.Job, retries int) {
	e.record(ctx, job, domain.ErrorTypeStaleJob,
		"job redelivered after its previous claim went stale",
		fmt.Sprintf("delivery attempt %d", retries+1))
}

// fail records a processing error and returns it so the runner
// redelivers the job.
func (e *Engine) fail(ctx context.Context, job *domain.Job, errType domain.ErrorType, msg string, err error) error {
	e.record(ctx, job, errType, msg, err.Error())
	return fmt.Errorf("%s for %s: %w", msg, job.FileURL, err)
}

// record writes a processing error, logging rather than failing if the
// ledger itself is unreachable.
func (e *Engine) record(ctx context.Context, job *domain.Job, errType domain.ErrorType, msg, details string) {
	pe := &domain.ProcessingError{
		FileURL:   job.FileURL,
		Owner:     job.Owner,
		ErrorType: errType,
		Message:   msg,
		Details:   details,
	}
	if err := e.errs.Log(ctx, pe); err != nil {
		e.logger.Error("failed to record processing error",
			"file_url", job.FileURL, "error_type", errType, "error", err)
	}
}

// diffIDs splits current and existing ID sets into additions and
// removals, preserving input order.
func diffIDs(current, existing []string) (added, removed []string) {
	existingSet := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		existingSet[id] = struct{}{}
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}

	for _, id := range current {
		if _, ok := existingSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range existing {
		if _, ok := currentSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
