// Package index maintains the search index of ingested entities in
// Elasticsearch. Documents are addressed by content ID so re-indexing
// the same entity is an overwrite, never a duplicate.
package index

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/jonesrussell/goingest/internal/config"
	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
)

// Embedder produces a vector representation of an entity payload.
// Implementations typically call an external embedding service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// document is the indexed form of an entity.
type document struct {
	ContentID string          `json:"content_id"`
	Site      string          `json:"site"`
	Payload   json.RawMessage `json:"payload"`
	Embedding []float32       `json:"embedding,omitempty"`
	IndexedAt time.Time       `json:"indexed_at"`
}

// Index wraps the Elasticsearch client for entity documents.
type Index struct {
	client   *elasticsearch.Client
	name     string
	embedder Embedder
	logger   logger.Interface
}

// New connects to Elasticsearch. The embedder is optional; without one
// documents are indexed for keyword search only.
func New(cfg *config.IndexConfig, embedder Embedder, log logger.Interface) (*Index, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &Index{
		client:   client,
		name:     cfg.IndexName,
		embedder: embedder,
		logger:   log.WithComponent("index"),
	}, nil
}

// indexMapping defines the entity document schema.
const indexMapping = `{
	"mappings": {
		"properties": {
			"content_id": {"type": "keyword"},
			"site": {"type": "keyword"},
			"payload": {"type": "object", "enabled": true},
			"embedding": {"type": "dense_vector", "index": true, "similarity": "cosine"},
			"indexed_at": {"type": "date"}
		}
	}
}`

// EnsureIndex creates the index with its mapping if it does not exist.
func (i *Index) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{i.name}}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	createRes, err := esapi.IndicesCreateRequest{
		Index: i.name,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}
	return nil
}

// Add indexes an entity document, overwriting any previous version.
func (i *Index) Add(ctx context.Context, entity *domain.Entity) error {
	doc := document{
		ContentID: entity.ID,
		Site:      domain.NormalizeSiteURL(entity.SiteURL),
		Payload:   entity.Payload,
		IndexedAt: time.Now().UTC(),
	}

	if i.embedder != nil {
		vec, err := i.embedder.Embed(ctx, string(entity.Payload))
		if err != nil {
			return fmt.Errorf("failed to embed entity %s: %w", entity.ID, err)
		}
		doc.Embedding = vec
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := esapi.IndexRequest{
		Index:      i.name,
		DocumentID: DocumentID(entity.ID),
		Body:       bytes.NewReader(body),
	}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to index entity %s: %w", entity.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index entity %s: %s", entity.ID, res.String())
	}
	return nil
}

// Delete removes an entity document. Deleting a missing document is
// not an error; teardown must be repeatable.
func (i *Index) Delete(ctx context.Context, contentID string) error {
	res, err := esapi.DeleteRequest{
		Index:      i.name,
		DocumentID: DocumentID(contentID),
	}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", contentID, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("failed to delete entity %s: %s", contentID, res.String())
	}
	return nil
}

// CountBySite reports how many documents a site has in the index.
func (i *Index) CountBySite(ctx context.Context, siteURL string) (int, error) {
	query := fmt.Sprintf(`{"query": {"term": {"site": %q}}}`, domain.NormalizeSiteURL(siteURL))

	res, err := esapi.CountRequest{
		Index: []string{i.name},
		Body:  strings.NewReader(query),
	}.Do(ctx, i.client)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("failed to count documents: %s", res.String())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read count response: %w", err)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("failed to unmarshal count response: %w", err)
	}
	return out.Count, nil
}

// DocumentID derives a stable, URL-safe document ID from a content ID.
func DocumentID(contentID string) string {
	sum := sha256.Sum256([]byte(contentID))
	return hex.EncodeToString(sum[:])
}
