package discover

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/jonesrussell/goingest/internal/domain"
)

// schemaMapXML mirrors the schema map document: a sitemap-style urlset
// whose url elements carry an optional contentType attribute.
type schemaMapXML struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []urlEntryXML `xml:"url"`
}

type urlEntryXML struct {
	Loc         string `xml:"loc"`
	ContentType string `xml:"contentType,attr"`
}

// defaultContentType is assumed when an entry does not declare one.
const defaultContentType = "schema.org"

// ParseManifest parses a schema map document into its file entries.
// Entries without a location are dropped; entry order is preserved and
// duplicate locations are collapsed to their first occurrence.
func ParseManifest(data []byte) ([]domain.ManifestEntry, error) {
	var doc schemaMapXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema map: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.URLs))
	entries := make([]domain.ManifestEntry, 0, len(doc.URLs))
	for _, u := range doc.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		if _, dup := seen[loc]; dup {
			continue
		}
		seen[loc] = struct{}{}

		contentType := strings.TrimSpace(u.ContentType)
		if contentType == "" {
			contentType = defaultContentType
		}

		entries = append(entries, domain.ManifestEntry{
			FileURL:     loc,
			ContentType: contentType,
		})
	}
	return entries, nil
}
