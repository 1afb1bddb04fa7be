package discover

import (
	"context"
	"fmt"
	"testing"

	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
)

const sampleManifest = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
	<url contentType="schema.org"><loc>https://example.com/products.json</loc></url>
	<url contentType="rss"><loc>https://example.com/news.rss</loc></url>
	<url><loc>https://example.com/events.json</loc></url>
	<url><loc>  </loc></url>
	<url contentType="schema.org"><loc>https://example.com/products.json</loc></url>
</urlset>`

// fakeFetcher serves canned bodies keyed by URL.
type fakeFetcher struct {
	responses map[string][]byte
	requests  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.requests = append(f.requests, url)
	body, ok := f.responses[url]
	if !ok {
		return nil, fmt.Errorf("not found: %s", url)
	}
	return body, nil
}

func TestParseManifest(t *testing.T) {
	t.Parallel()

	entries, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	want := []domain.ManifestEntry{
		{FileURL: "https://example.com/products.json", ContentType: "schema.org"},
		{FileURL: "https://example.com/news.rss", ContentType: "rss"},
		{FileURL: "https://example.com/events.json", ContentType: "schema.org"},
	}
	if len(entries) != len(want) {
		t.Fatalf("ParseManifest() = %d entries, want %d: %v", len(entries), len(want), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestParseManifestMalformed(t *testing.T) {
	t.Parallel()

	if _, err := ParseManifest([]byte("this is not xml")); err == nil {
		t.Error("ParseManifest() accepted malformed input")
	}
}

func TestSchemaMapURLStored(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	d := NewDiscoverer(fetcher, logger.NewNoop())

	site := &domain.Site{
		SiteURL:      "example.com",
		SchemaMapURL: "https://example.com/custom_map.xml",
	}
	got, err := d.SchemaMapURL(context.Background(), site)
	if err != nil {
		t.Fatalf("SchemaMapURL() error = %v", err)
	}
	if got != site.SchemaMapURL {
		t.Errorf("SchemaMapURL() = %q, want stored %q", got, site.SchemaMapURL)
	}
	if len(fetcher.requests) != 0 {
		t.Errorf("stored URL should short-circuit discovery, fetched %v", fetcher.requests)
	}
}

func TestSchemaMapURLDirect(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(&fakeFetcher{}, logger.NewNoop())

	site := &domain.Site{SiteURL: "https://example.com/schema_map.xml"}
	got, err := d.SchemaMapURL(context.Background(), site)
	if err != nil {
		t.Fatalf("SchemaMapURL() error = %v", err)
	}
	if got != "https://example.com/schema_map.xml" {
		t.Errorf("SchemaMapURL() = %q", got)
	}
}

func TestSchemaMapURLFromRobots(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]byte{
		"https://example.com/robots.txt": []byte(
			"User-agent: *\nDisallow: /private\nSchemamap: https://example.com/maps/schema_map.xml\n"),
	}}
	d := NewDiscoverer(fetcher, logger.NewNoop())

	got, err := d.SchemaMapURL(context.Background(), &domain.Site{SiteURL: "example.com"})
	if err != nil {
		t.Fatalf("SchemaMapURL() error = %v", err)
	}
	if got != "https://example.com/maps/schema_map.xml" {
		t.Errorf("SchemaMapURL() = %q", got)
	}
}

func TestSchemaMapURLWellKnown(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]byte{
		"https://example.com/schema_map.xml": []byte(sampleManifest),
	}}
	d := NewDiscoverer(fetcher, logger.NewNoop())

	got, err := d.SchemaMapURL(context.Background(), &domain.Site{SiteURL: "example.com"})
	if err != nil {
		t.Fatalf("SchemaMapURL() error = %v", err)
	}
	if got != "https://example.com/schema_map.xml" {
		t.Errorf("SchemaMapURL() = %q", got)
	}
}

func TestSchemaMapURLNotFound(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(&fakeFetcher{}, logger.NewNoop())

	if _, err := d.SchemaMapURL(context.Background(), &domain.Site{SiteURL: "example.com"}); err == nil {
		t.Error("SchemaMapURL() succeeded with no schema map anywhere")
	}
}

func TestManifest(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]byte{
		"https://example.com/schema_map.xml": []byte(sampleManifest),
	}}
	d := NewDiscoverer(fetcher, logger.NewNoop())

	entries, err := d.Manifest(context.Background(), "https://example.com/schema_map.xml")
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Manifest() = %d entries, want 3", len(entries))
	}
}
