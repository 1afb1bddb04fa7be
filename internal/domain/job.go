package domain

import (
	"fmt"
	"time"
)

// JobType identifies the kind of work a queued job represents.
type JobType string

const (
	// JobTypeIngestFile processes a content file's current entities.
	JobTypeIngestFile JobType = "ingest-file"

	// JobTypeRemoveFile tears down a file that vanished from its
	// site's schema map.
	JobTypeRemoveFile JobType = "remove-file"
)

// IsValid reports whether the job type is one of the known values.
func (t JobType) IsValid() bool {
	return t == JobTypeIngestFile || t == JobTypeRemoveFile
}

// Job is the unit of work exchanged through the job queue.
type Job struct {
	Type        JobType   `json:"type"`
	Owner       string    `json:"owner"`
	SiteURL     string    `json:"site"`
	FileURL     string    `json:"file_url"`
	SchemaMap   string    `json:"schema_map,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Validate checks that the job carries everything a worker needs.
func (j *Job) Validate() error {
	if !j.Type.IsValid() {
		return fmt.Errorf("invalid job type: %q", j.Type)
	}
	if j.FileURL == "" {
		return fmt.Errorf("job %s missing file_url", j.Type)
	}
	if j.SiteURL == "" {
		return fmt.Errorf("job %s missing site", j.Type)
	}
	return nil
}
