// Package objectstore persists canonical entity payloads in an
// S3-compatible object store, addressed by content ID.
package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonesrussell/goingest/internal/config"
	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
)

const contentTypeJSON = "application/json"

// Store writes and removes entity payloads. Writes are idempotent:
// putting the same content ID twice overwrites the same object.
type Store struct {
	client *minio.Client
	bucket string
	logger logger.Interface
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg *config.ObjectStoreConfig, log logger.Interface) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: log.WithComponent("objectstore"),
	}, nil
}

// Put stores an entity payload under its content-addressed key.
func (s *Store) Put(ctx context.Context, entity *domain.Entity) error {
	key := ObjectKey(entity.SiteURL, entity.ID)
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(entity.Payload), int64(len(entity.Payload)),
		minio.PutObjectOptions{
			ContentType:  contentTypeJSON,
			UserMetadata: map[string]string{"content-id": entity.ID},
		})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Delete removes an entity payload. Deleting a missing object is not
// an error; teardown must be repeatable.
func (s *Store) Delete(ctx context.Context, siteURL, contentID string) error {
	key := ObjectKey(siteURL, contentID)
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		var respErr minio.ErrorResponse
		if errors.As(err, &respErr) && respErr.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// Get fetches a stored entity payload.
func (s *Store) Get(ctx context.Context, siteURL, contentID string) ([]byte, error) {
	key := ObjectKey(siteURL, contentID)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// ObjectKey derives the storage key for a content ID. Content IDs can
// contain characters that are awkward in object paths, so the key is a
// digest; the original ID is kept in object metadata.
func ObjectKey(siteURL, contentID string) string {
	sum := sha256.Sum256([]byte(contentID))
	return fmt.Sprintf("%s/%s.json", domain.NormalizeSiteURL(siteURL), hex.EncodeToString(sum[:]))
}
