// Package worker processes queued jobs: it downloads content files,
// extracts their entities, and keeps the ledger, object store, and
// search index in agreement about what each file contributes.
package worker

import (
	"encoding/json"
	"fmt"

	"github.com/jonesrussell/goingest/internal/domain"
)

// Extractor parses a downloaded content file into entities.
type Extractor interface {
	Extract(fileURL, siteURL string, data []byte) ([]domain.Entity, error)
}

// SchemaExtractor extracts schema.org entities from JSON content
// files. A file may hold a single object, a top-level array, or an
// object with an @graph array.
type SchemaExtractor struct{}

// NewSchemaExtractor creates the default extractor.
func NewSchemaExtractor() *SchemaExtractor {
	return &SchemaExtractor{}
}

// Extract parses the file and assigns each entity its content ID:
// the object's @id if present, else its url, else a digest of the
// payload scoped to the file. Duplicate IDs within one file collapse
// to the first occurrence.
func (e *SchemaExtractor) Extract(fileURL, siteURL string, data []byte) ([]domain.Entity, error) {
	objects, err := splitObjects(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(objects))
	entities := make([]domain.Entity, 0, len(objects))
	for _, obj := range objects {
		payload, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode entity: %w", err)
		}

		id := stringField(obj, "@id")
		if id == "" {
			id = stringField(obj, "url")
		}
		if id == "" {
			id = domain.DeriveContentID(fileURL, payload)
		}

		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		entities = append(entities, domain.Entity{
			ID:      id,
			SiteURL: siteURL,
			Payload: payload,
		})
	}
	return entities, nil
}

// splitObjects normalizes the three accepted file shapes into a flat
// object list.
func splitObjects(data []byte) ([]map[string]any, error) {
	var asArray []map[string]any
	if err := json.Unmarshal(data, &asArray); err == nil {
		return asArray, nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(data, &asObject); err != nil {
		return nil, fmt.Errorf("failed to parse content file: %w", err)
	}

	if graph, ok := asObject["@graph"].([]any); ok {
		objects := make([]map[string]any, 0, len(graph))
		for _, item := range graph {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("failed to parse content file: @graph entry is not an object")
			}
			objects = append(objects, obj)
		}
		return objects, nil
	}

	return []map[string]any{asObject}, nil
}

// stringField reads a non-empty string field from a decoded object.
func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}
