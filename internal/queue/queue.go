// Package queue provides the durable job queue connecting schema map
// reconciliation to ingestion workers. Two backends implement the same
// contract: a filesystem queue using rename-based claims for
// single-host deployments, and a Redis Streams queue for distributed
// ones. Delivery is at-least-once; consumers must be idempotent.
package queue

import (
	"context"
	"time"

	"github.com/jonesrussell/goingest/internal/domain"
)

// Message is a claimed job plus the delivery metadata a consumer needs
// to settle it.
type Message struct {
	// ID identifies this delivery within the backend.
	ID string

	// Job is the decoded unit of work.
	Job *domain.Job

	// RetryCount is how many times this job has been reclaimed from a
	// stalled consumer. Zero on first delivery and across explicit
	// returns.
	RetryCount int

	// EnqueuedAt is when the job was first sent.
	EnqueuedAt time.Time

	// receipt is the backend-specific claim token.
	receipt string
}

// Queue is the job queue contract shared by all backends.
//
// A received message is invisible to other consumers until the
// visibility timeout elapses, the consumer returns it, or the consumer
// crashes and recovery reclaims it. Heartbeat extends the claim for
// long-running jobs.
type Queue interface {
	// Send enqueues a job.
	Send(ctx context.Context, job *domain.Job) error

	// Receive claims the next available job for the given visibility
	// window. Returns (nil, nil) when the queue is empty.
	Receive(ctx context.Context, visibility time.Duration) (*Message, error)

	// Delete settles a message after successful processing.
	Delete(ctx context.Context, msg *Message) error

	// Return releases a message back to the queue, immediately
	// reclaimable, with its retry count unchanged. Only stale-claim
	// recovery counts attempts; an explicitly returned job retries
	// until it succeeds or an operator intervenes.
	Return(ctx context.Context, msg *Message) error

	// Heartbeat extends the claim on a message mid-processing.
	Heartbeat(ctx context.Context, msg *Message) error

	// Depth reports the number of jobs waiting for delivery.
	Depth(ctx context.Context) (int, error)

	// ErrorDepth reports the number of jobs escalated to the
	// dead-letter channel.
	ErrorDepth(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// envelope is the wire form of a job. Retry metadata travels inside
// the payload rather than being encoded into backend identifiers.
type envelope struct {
	Job        *domain.Job `json:"job"`
	RetryCount int         `json:"retry_count"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}
