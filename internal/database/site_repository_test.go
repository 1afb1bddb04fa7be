package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/goingest/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

var siteColumns = []string{
	"site_url", "owner", "schema_map_url", "process_interval_hours",
	"last_processed", "is_active", "created_at",
}

func TestSiteRepositoryGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSiteRepository(db)

	processed := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT site_url, owner, schema_map_url").
		WithArgs("example.com", "default").
		WillReturnRows(sqlmock.NewRows(siteColumns).
			AddRow("example.com", "default", "https://example.com/schema_map.xml",
				48.0, processed, true, processed))

	site, err := repo.Get(context.Background(), "example.com", "default")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if site.SiteURL != "example.com" {
		t.Errorf("SiteURL = %q", site.SiteURL)
	}
	if site.ProcessInterval != 48*time.Hour {
		t.Errorf("ProcessInterval = %v, want 48h", site.ProcessInterval)
	}
	expectationsMet(t, mock)
}

func TestSiteRepositoryGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSiteRepository(db)

	mock.ExpectQuery("SELECT site_url, owner, schema_map_url").
		WithArgs("missing.com", "default").
		WillReturnRows(sqlmock.NewRows(siteColumns))

	_, err := repo.Get(context.Background(), "missing.com", "default")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestSiteRepositoryUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSiteRepository(db)

	mock.ExpectExec("INSERT INTO sites").
		WithArgs("example.com", "default", "", 48.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	site := &domain.Site{
		SiteURL:         "example.com",
		Owner:           "default",
		ProcessInterval: 48 * time.Hour,
	}
	if err := repo.Upsert(context.Background(), site); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestSiteRepositoryUpsertDefaultsInterval(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSiteRepository(db)

	mock.ExpectExec("INSERT INTO sites").
		WithArgs("example.com", "default", "", 720.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	site := &domain.Site{SiteURL: "example.com", Owner: "default"}
	if err := repo.Upsert(context.Background(), site); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestSiteRepositoryListActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSiteRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT site_url, owner, schema_map_url").
		WillReturnRows(sqlmock.NewRows(siteColumns).
			AddRow("a.com", "default", "", 24.0, nil, true, now).
			AddRow("b.com", "default", "", 720.0, now, true, now))

	sites, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("ListActive() = %d sites, want 2", len(sites))
	}
	if sites[0].ProcessInterval != 24*time.Hour {
		t.Errorf("ProcessInterval = %v, want 24h", sites[0].ProcessInterval)
	}
	if sites[0].LastProcessed != nil {
		t.Errorf("LastProcessed = %v, want nil for never-processed site", sites[0].LastProcessed)
	}
	expectationsMet(t, mock)
}

func TestSiteRepositoryTouchLastProcessed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSiteRepository(db)

	at := time.Now()
	mock.ExpectExec("UPDATE sites SET last_processed").
		WithArgs("example.com", "default", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.TouchLastProcessed(context.Background(), "example.com", "default", at); err != nil {
		t.Fatalf("TouchLastProcessed() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestSiteRepositoryDeactivateMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSiteRepository(db)

	mock.ExpectExec("UPDATE sites SET is_active").
		WithArgs("missing.com", "default").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), "missing.com", "default")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Deactivate() error = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}
