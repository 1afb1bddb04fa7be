package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jonesrussell/goingest/internal/database"
	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
)

// fetcherStub serves canned file bodies.
type fetcherStub struct {
	responses map[string][]byte
}

func (f *fetcherStub) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f.responses[url]
	if !ok {
		return nil, fmt.Errorf("connection refused: %s", url)
	}
	return body, nil
}

func refKey(fileURL, owner string) string { return fileURL + "|" + owner }

// refsStub is an in-memory reference ledger.
type refsStub struct {
	refs     map[string]map[string]struct{}
	applyErr error
}

func newRefsStub() *refsStub {
	return &refsStub{refs: make(map[string]map[string]struct{})}
}

func (r *refsStub) IDsForFile(_ context.Context, fileURL, owner string) ([]string, error) {
	var ids []string
	for id := range r.refs[refKey(fileURL, owner)] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *refsStub) ApplyDiff(_ context.Context, fileURL, owner string, added, removed []string) error {
	if r.applyErr != nil {
		return r.applyErr
	}
	key := refKey(fileURL, owner)
	if r.refs[key] == nil {
		r.refs[key] = make(map[string]struct{})
	}
	for _, id := range added {
		r.refs[key][id] = struct{}{}
	}
	for _, id := range removed {
		delete(r.refs[key], id)
	}
	return nil
}

func (r *refsStub) CountRefs(_ context.Context, owner string, contentIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(contentIDs))
	for _, id := range contentIDs {
		counts[id] = 0
		for key, ids := range r.refs {
			if !strings.HasSuffix(key, "|"+owner) {
				continue
			}
			if _, ok := ids[id]; ok {
				counts[id]++
			}
		}
	}
	return counts, nil
}

func (r *refsStub) RemoveFile(_ context.Context, fileURL, owner string) ([]string, error) {
	key := refKey(fileURL, owner)
	var ids []string
	for id := range r.refs[key] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	delete(r.refs, key)
	return ids, nil
}

// filesStub knows a fixed set of file rows.
type filesStub struct {
	files map[string]*domain.File
	stats map[string]int
}

func newFilesStub(urls ...string) *filesStub {
	s := &filesStub{files: make(map[string]*domain.File), stats: make(map[string]int)}
	for _, u := range urls {
		s.files[u] = &domain.File{FileURL: u, Owner: "default", SiteURL: "example.com", Active: true}
	}
	return s
}

func (f *filesStub) Get(_ context.Context, fileURL, _ string) (*domain.File, error) {
	file, ok := f.files[fileURL]
	if !ok {
		return nil, database.ErrNotFound
	}
	return file, nil
}

func (f *filesStub) UpdateReadStats(_ context.Context, fileURL, _ string, itemCount int, _ time.Time) error {
	f.stats[fileURL] = itemCount
	return nil
}

// sitesStub records progress touches.
type sitesStub struct {
	touched []string
}

func (s *sitesStub) TouchLastProcessed(_ context.Context, siteURL, _ string, _ time.Time) error {
	s.touched = append(s.touched, siteURL)
	return nil
}

// errsStub records error log activity.
type errsStub struct {
	logged  []*domain.ProcessingError
	cleared int
}

func (e *errsStub) Log(_ context.Context, pe *domain.ProcessingError) error {
	e.logged = append(e.logged, pe)
	return nil
}

func (e *errsStub) ClearForFile(_ context.Context, _, _ string) error {
	e.cleared++
	return nil
}

// opRecorder captures derived-store calls in order, optionally failing
// a named operation once.
type opRecorder struct {
	ops    []string
	failOn string
}

func (r *opRecorder) record(op string) error {
	if r.failOn == op {
		r.failOn = ""
		return fmt.Errorf("injected failure: %s", op)
	}
	r.ops = append(r.ops, op)
	return nil
}

func (r *opRecorder) indexOf(op string) int {
	for i, o := range r.ops {
		if o == op {
			return i
		}
	}
	return -1
}

func (r *opRecorder) count(op string) int {
	n := 0
	for _, o := range r.ops {
		if o == op {
			n++
		}
	}
	return n
}

type objectsStub struct{ rec *opRecorder }

func (o *objectsStub) Put(_ context.Context, entity *domain.Entity) error {
	return o.rec.record("object.put " + entity.ID)
}

func (o *objectsStub) Delete(_ context.Context, _, contentID string) error {
	return o.rec.record("object.del " + contentID)
}

type indexStub struct{ rec *opRecorder }

func (i *indexStub) Add(_ context.Context, entity *domain.Entity) error {
	return i.rec.record("index.add " + entity.ID)
}

func (i *indexStub) Delete(_ context.Context, contentID string) error {
	return i.rec.record("index.del " + contentID)
}

// fixture bundles an engine with all of its instrumented fakes.
type fixture struct {
	engine  *Engine
	fetcher *fetcherStub
	refs    *refsStub
	files   *filesStub
	sites   *sitesStub
	errs    *errsStub
	rec     *opRecorder
}

func newFixture(t *testing.T, fileURLs ...string) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: &fetcherStub{responses: make(map[string][]byte)},
		refs:    newRefsStub(),
		files:   newFilesStub(fileURLs...),
		sites:   &sitesStub{},
		errs:    &errsStub{},
		rec:     &opRecorder{},
	}
	f.engine = NewEngine(
		f.fetcher,
		NewSchemaExtractor(),
		f.refs,
		f.files,
		f.sites,
		f.errs,
		&objectsStub{rec: f.rec},
		&indexStub{rec: f.rec},
		logger.NewNoop(),
	)
	return f
}

func ingestJob(fileURL string) *domain.Job {
	return &domain.Job{
		Type:    domain.JobTypeIngestFile,
		Owner:   "default",
		SiteURL: "example.com",
		FileURL: fileURL,
	}
}

func removeJob(fileURL string) *domain.Job {
	return &domain.Job{
		Type:    domain.JobTypeRemoveFile,
		Owner:   "default",
		SiteURL: "example.com",
		FileURL: fileURL,
	}
}

// entitiesJSON builds a content file listing the given IDs.
func entitiesJSON(ids ...string) []byte {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`{"@id": %q, "name": "entity"}`, id)
	}
	return []byte("[" + strings.Join(parts, ",") + "]")
}

const fileA = "https://example.com/a.json"
const fileB = "https://example.com/b.json"

func TestIngestFirstFile(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA)
	f.fetcher.responses[fileA] = entitiesJSON("X", "Y")

	if err := f.engine.Process(context.Background(), ingestJob(fileA)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	ids, _ := f.refs.IDsForFile(context.Background(), fileA, "default")
	if len(ids) != 2 {
		t.Errorf("ledger refs = %v, want [X Y]", ids)
	}

	for _, id := range []string{"X", "Y"} {
		put := f.rec.indexOf("object.put " + id)
		add := f.rec.indexOf("index.add " + id)
		if put == -1 || add == -1 {
			t.Fatalf("missing store writes for %s: %v", id, f.rec.ops)
		}
		if put > add {
			t.Errorf("object store write for %s must precede index write: %v", id, f.rec.ops)
		}
	}

	if f.files.stats[fileA] != 2 {
		t.Errorf("read stats = %d, want 2", f.files.stats[fileA])
	}
	if f.errs.cleared != 1 {
		t.Errorf("errors cleared %d times, want 1", f.errs.cleared)
	}
	if len(f.sites.touched) != 1 {
		t.Errorf("site touched %d times, want 1", len(f.sites.touched))
	}
}

func TestIngestUnchangedContentIsNoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA)
	f.fetcher.responses[fileA] = entitiesJSON("X", "Y")

	ctx := context.Background()
	if err := f.engine.Process(ctx, ingestJob(fileA)); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	opsAfterFirst := len(f.rec.ops)

	if err := f.engine.Process(ctx, ingestJob(fileA)); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	if len(f.rec.ops) != opsAfterFirst {
		t.Errorf("reprocessing unchanged content touched stores: %v", f.rec.ops[opsAfterFirst:])
	}
}

func TestIngestRemovedEntitiesPurged(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA)
	ctx := context.Background()

	f.fetcher.responses[fileA] = entitiesJSON("X", "Y")
	if err := f.engine.Process(ctx, ingestJob(fileA)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// Y vanishes from the file's next revision.
	f.fetcher.responses[fileA] = entitiesJSON("X")
	if err := f.engine.Process(ctx, ingestJob(fileA)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	del := f.rec.indexOf("index.del Y")
	purge := f.rec.indexOf("object.del Y")
	if del == -1 || purge == -1 {
		t.Fatalf("orphaned Y not purged: %v", f.rec.ops)
	}
	if del > purge {
		t.Errorf("index delete must precede object store delete: %v", f.rec.ops)
	}
	if f.rec.indexOf("index.del X") != -1 {
		t.Errorf("X still referenced, must not be deleted: %v", f.rec.ops)
	}
}

func TestSharedContentLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA, fileB)
	ctx := context.Background()

	// F1 introduces X, F2 introduces the same X later.
	f.fetcher.responses[fileA] = entitiesJSON("X")
	f.fetcher.responses[fileB] = entitiesJSON("X")
	if err := f.engine.Process(ctx, ingestJob(fileA)); err != nil {
		t.Fatalf("Process(F1) error = %v", err)
	}
	if err := f.engine.Process(ctx, ingestJob(fileB)); err != nil {
		t.Fatalf("Process(F2) error = %v", err)
	}

	if n := f.rec.count("object.put X"); n != 1 {
		t.Errorf("object.put X happened %d times, want exactly 1", n)
	}
	if n := f.rec.count("index.add X"); n != 1 {
		t.Errorf("index.add X happened %d times, want exactly 1", n)
	}

	// Removing F1 leaves X referenced by F2.
	if err := f.engine.Process(ctx, removeJob(fileA)); err != nil {
		t.Fatalf("Process(remove F1) error = %v", err)
	}
	if f.rec.indexOf("index.del X") != -1 || f.rec.indexOf("object.del X") != -1 {
		t.Errorf("X purged while still referenced: %v", f.rec.ops)
	}

	// Removing F2 drops the last reference: purge, index first.
	if err := f.engine.Process(ctx, removeJob(fileB)); err != nil {
		t.Fatalf("Process(remove F2) error = %v", err)
	}
	del := f.rec.indexOf("index.del X")
	purge := f.rec.indexOf("object.del X")
	if del == -1 || purge == -1 {
		t.Fatalf("X not purged after last reference dropped: %v", f.rec.ops)
	}
	if del > purge {
		t.Errorf("index delete must precede object store delete: %v", f.rec.ops)
	}
}

func TestIngestDownloadFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA)

	err := f.engine.Process(context.Background(), ingestJob(fileA))
	if err == nil {
		t.Fatal("Process() = nil, want error for failed download")
	}
	if len(f.errs.logged) != 1 || f.errs.logged[0].ErrorType != domain.ErrorTypeDownload {
		t.Errorf("logged errors = %+v, want one download error", f.errs.logged)
	}
	if len(f.rec.ops) != 0 {
		t.Errorf("stores touched despite failed download: %v", f.rec.ops)
	}
}

func TestIngestExtractionFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA)
	f.fetcher.responses[fileA] = []byte("<html>not json</html>")

	err := f.engine.Process(context.Background(), ingestJob(fileA))
	if err == nil {
		t.Fatal("Process() = nil, want error for malformed content")
	}
	if len(f.errs.logged) != 1 || f.errs.logged[0].ErrorType != domain.ErrorTypeExtraction {
		t.Errorf("logged errors = %+v, want one extraction error", f.errs.logged)
	}
}

func TestIngestNoContentIsNonFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA)
	f.fetcher.responses[fileA] = []byte("[]")

	if err := f.engine.Process(context.Background(), ingestJob(fileA)); err != nil {
		t.Fatalf("Process() error = %v, empty extraction must not fail the job", err)
	}
	if len(f.errs.logged) != 1 || f.errs.logged[0].ErrorType != domain.ErrorTypeNoContent {
		t.Errorf("logged errors = %+v, want one no-content record", f.errs.logged)
	}
}

func TestIngestSkipsUnknownFile(t *testing.T) {
	t.Parallel()
	f := newFixture(t) // no file rows at all

	if err := f.engine.Process(context.Background(), ingestJob(fileA)); err != nil {
		t.Fatalf("Process() error = %v, job for a torn-down file must be a no-op", err)
	}
	if len(f.rec.ops) != 0 {
		t.Errorf("stores touched for unknown file: %v", f.rec.ops)
	}
}

func TestIngestIndexFailureReturnsJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA)
	f.fetcher.responses[fileA] = entitiesJSON("X")
	f.rec.failOn = "index.add X"

	ctx := context.Background()
	err := f.engine.Process(ctx, ingestJob(fileA))
	if err == nil {
		t.Fatal("Process() = nil, want error for index failure")
	}
	if len(f.errs.logged) != 1 || f.errs.logged[0].ErrorType != domain.ErrorTypeStore {
		t.Errorf("logged errors = %+v, want one store error", f.errs.logged)
	}

	// The ledger commit survived the derived-store failure.
	ids, _ := f.refs.IDsForFile(ctx, fileA, "default")
	if len(ids) != 1 || ids[0] != "X" {
		t.Errorf("ledger refs = %v, want committed [X]", ids)
	}
}

func TestRemoveFileClearsLedger(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA)
	ctx := context.Background()

	f.fetcher.responses[fileA] = entitiesJSON("X", "Y")
	if err := f.engine.Process(ctx, ingestJob(fileA)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if err := f.engine.Process(ctx, removeJob(fileA)); err != nil {
		t.Fatalf("Process(remove) error = %v", err)
	}

	ids, _ := f.refs.IDsForFile(ctx, fileA, "default")
	if len(ids) != 0 {
		t.Errorf("ledger refs = %v, want none after removal", ids)
	}
	for _, id := range []string{"X", "Y"} {
		if f.rec.indexOf("index.del "+id) == -1 || f.rec.indexOf("object.del "+id) == -1 {
			t.Errorf("%s not purged: %v", id, f.rec.ops)
		}
	}
}

func TestNoteRecoveredLogsStaleJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fileA)

	f.engine.NoteRecovered(context.Background(), ingestJob(fileA), 2)
	if len(f.errs.logged) != 1 || f.errs.logged[0].ErrorType != domain.ErrorTypeStaleJob {
		t.Errorf("logged errors = %+v, want one stale-job record", f.errs.logged)
	}
}
