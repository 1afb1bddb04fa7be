package domain

import "time"

// ErrorType classifies a ProcessingError for operator diagnosis.
type ErrorType string

const (
	// ErrorTypeStore covers transient failures talking to the ledger,
	// object store, or vector index. The job is retried.
	ErrorTypeStore ErrorType = "store_error"

	// ErrorTypeExtraction covers malformed file content. The job is
	// retried; a persistently malformed file retries until an operator
	// deactivates it.
	ErrorTypeExtraction ErrorType = "extraction_failed"

	// ErrorTypeNoContent records that extraction yielded zero entities.
	// Non-fatal; processing continues.
	ErrorTypeNoContent ErrorType = "no_content_found"

	// ErrorTypeDownload covers failures fetching the file itself.
	ErrorTypeDownload ErrorType = "download_failed"

	// ErrorTypeStaleJob records a job recovered after its worker
	// crashed or hung.
	ErrorTypeStaleJob ErrorType = "stale_job"
)

// ProcessingError is an append-only record of a failure processing a
// file. A file's errors are cleared on its next successful run.
type ProcessingError struct {
	ID         int64     `db:"id"`
	FileURL    string    `db:"file_url"`
	Owner      string    `db:"owner"`
	ErrorType  ErrorType `db:"error_type"`
	Message    string    `db:"error_message"`
	Details    string    `db:"error_details"`
	OccurredAt time.Time `db:"occurred_at"`
}
