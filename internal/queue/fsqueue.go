package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
)

const (
	// pendingSuffix marks a job file available for claiming.
	pendingSuffix = ".json"

	// claimedSuffix marks a job file owned by a consumer. The rename
	// from pending to claimed is the atomic claim: exactly one consumer
	// wins, the rest see ErrNotExist and move on.
	claimedSuffix = ".json.claimed"

	// tempSuffix marks a job file still being written.
	tempSuffix = ".tmp"

	// errorsDir holds jobs that exhausted their retries.
	errorsDir = "errors"
)

// FSQueueConfig configures the filesystem queue backend.
type FSQueueConfig struct {
	// Dir is the queue directory. Created if missing.
	Dir string

	// RecoveryInterval throttles how often a Receive call scans for
	// stale claims. Scans are opportunistic; no separate process runs.
	RecoveryInterval time.Duration

	// MaxRetries is the delivery attempt limit before a job is
	// escalated to the errors directory.
	MaxRetries int
}

// FSQueue is a durable job queue on a local directory. Each job is one
// file; claiming is an atomic rename. Suitable when all workers share
// a filesystem.
type FSQueue struct {
	cfg    FSQueueConfig
	logger logger.Interface

	mu           sync.Mutex
	lastRecovery time.Time
}

// NewFSQueue creates the queue directories and returns the backend.
func NewFSQueue(cfg FSQueueConfig, log logger.Interface) (*FSQueue, error) {
	if cfg.Dir == "" {
		return nil, errors.New("queue dir is required")
	}
	if cfg.MaxRetries <= 0 {
		return nil, errors.New("max retries must be positive")
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, errorsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}
	return &FSQueue{
		cfg:    cfg,
		logger: log.WithComponent("fsqueue"),
	}, nil
}

// Send enqueues a job. The file is written under a temporary name and
// renamed into place so consumers never see a partial write.
func (q *FSQueue) Send(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	env := envelope{Job: job, RetryCount: 0, EnqueuedAt: time.Now().UTC()}
	return q.publish(&env)
}

// publish writes an envelope as a fresh pending file. The filename
// leads with a nanosecond timestamp so lexical order is arrival order.
func (q *FSQueue) publish(env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	name := fmt.Sprintf("%020d-%s%s", time.Now().UnixNano(), uuid.NewString(), pendingSuffix)
	tmpPath := filepath.Join(q.cfg.Dir, name+tempSuffix)
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write job file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(q.cfg.Dir, name)); err != nil {
		return fmt.Errorf("failed to publish job file: %w", err)
	}
	return nil
}

// Receive claims the oldest pending job. Before looking for work it
// opportunistically recovers claims that outlived the visibility
// window, throttled by the recovery interval.
func (q *FSQueue) Receive(ctx context.Context, visibility time.Duration) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.maybeRecover(visibility)

	names, err := q.pendingNames()
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		pendingPath := filepath.Join(q.cfg.Dir, name)
		claimedPath := pendingPath + ".claimed"

		// Another consumer may win the rename; that is not an error.
		if err := os.Rename(pendingPath, claimedPath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to claim job file: %w", err)
		}

		env, err := readEnvelope(claimedPath)
		if err != nil {
			q.logger.Error("discarding unreadable job file", "file", name, "error", err)
			_ = os.Rename(claimedPath, filepath.Join(q.cfg.Dir, errorsDir, name))
			continue
		}

		// Claim age is measured from mtime; reset it so the visibility
		// window starts now, not at enqueue time.
		now := time.Now()
		_ = os.Chtimes(claimedPath, now, now)

		return &Message{
			ID:         name,
			Job:        env.Job,
			RetryCount: env.RetryCount,
			EnqueuedAt: env.EnqueuedAt,
			receipt:    claimedPath,
		}, nil
	}

	return nil, nil
}

// Delete settles a claimed job.
func (q *FSQueue) Delete(ctx context.Context, msg *Message) error {
	if err := os.Remove(msg.receipt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete job file: %w", err)
	}
	return nil
}

// Return releases a claimed job for immediate redelivery. The retry
// count is left untouched: an explicit nack retries indefinitely, only
// stale-claim recovery counts attempts toward escalation.
func (q *FSQueue) Return(ctx context.Context, msg *Message) error {
	env := envelope{Job: msg.Job, RetryCount: msg.RetryCount, EnqueuedAt: msg.EnqueuedAt}
	if err := q.publish(&env); err != nil {
		return err
	}
	return q.Delete(ctx, msg)
}

// Heartbeat refreshes the claim mtime so recovery leaves the job alone.
func (q *FSQueue) Heartbeat(ctx context.Context, msg *Message) error {
	now := time.Now()
	if err := os.Chtimes(msg.receipt, now, now); err != nil {
		return fmt.Errorf("failed to refresh claim: %w", err)
	}
	return nil
}

// Depth reports the number of pending job files.
func (q *FSQueue) Depth(ctx context.Context) (int, error) {
	names, err := q.pendingNames()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// ErrorDepth reports the number of escalated job files.
func (q *FSQueue) ErrorDepth(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(filepath.Join(q.cfg.Dir, errorsDir))
	if err != nil {
		return 0, fmt.Errorf("failed to read errors directory: %w", err)
	}
	return len(entries), nil
}

// Close is a no-op for the filesystem backend.
func (q *FSQueue) Close() error { return nil }

// maybeRecover rescues claimed files whose consumer stopped
// heartbeating. At most one scan per recovery interval across the
// process; concurrent processes scanning is harmless because the
// claimed-file removal races resolve through the filesystem.
func (q *FSQueue) maybeRecover(visibility time.Duration) {
	q.mu.Lock()
	if q.cfg.RecoveryInterval > 0 && time.Since(q.lastRecovery) < q.cfg.RecoveryInterval {
		q.mu.Unlock()
		return
	}
	q.lastRecovery = time.Now()
	q.mu.Unlock()

	entries, err := os.ReadDir(q.cfg.Dir)
	if err != nil {
		q.logger.Error("failed to scan queue directory", "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), claimedSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) <= visibility {
			continue
		}
		q.recoverClaim(filepath.Join(q.cfg.Dir, entry.Name()))
	}
}

// recoverClaim requeues one stale claimed file, or escalates it when
// retries are exhausted.
func (q *FSQueue) recoverClaim(claimedPath string) {
	env, err := readEnvelope(claimedPath)
	if err != nil {
		q.logger.Error("discarding unreadable claimed file", "file", claimedPath, "error", err)
		_ = os.Remove(claimedPath)
		return
	}
	env.RetryCount++

	if env.RetryCount > q.cfg.MaxRetries {
		q.logger.Warn("job exhausted retries, escalating",
			"file_url", env.Job.FileURL, "retries", env.RetryCount)
		if err := q.escalate(env); err != nil {
			q.logger.Error("failed to escalate job", "error", err)
			return
		}
	} else {
		q.logger.Warn("recovering stale job",
			"file_url", env.Job.FileURL, "retries", env.RetryCount)
		if err := q.publish(env); err != nil {
			q.logger.Error("failed to requeue stale job", "error", err)
			return
		}
	}

	// Remove the stale claim only after the replacement is durable.
	_ = os.Remove(claimedPath)
}

// escalate writes an envelope to the errors directory.
func (q *FSQueue) escalate(env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	name := fmt.Sprintf("%020d-%s%s", time.Now().UnixNano(), uuid.NewString(), pendingSuffix)
	if err := os.WriteFile(filepath.Join(q.cfg.Dir, errorsDir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write error file: %w", err)
	}
	return nil
}

// pendingNames lists claimable job files in arrival order.
func (q *FSQueue) pendingNames() ([]string, error) {
	entries, err := os.ReadDir(q.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, pendingSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// readEnvelope decodes a job file.
func readEnvelope(path string) (*envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job file: %w", err)
	}
	if env.Job == nil {
		return nil, errors.New("job file missing job payload")
	}
	return &env, nil
}
