package worker

import (
	"context"
	"time"

	"github.com/jonesrussell/goingest/internal/logger"
	"github.com/jonesrussell/goingest/internal/metrics"
	"github.com/jonesrussell/goingest/internal/queue"
)

// RunnerConfig configures the job claim loop.
type RunnerConfig struct {
	// Visibility is the claim window passed to the queue. A job held
	// longer than this without heartbeats is considered abandoned.
	Visibility time.Duration

	// PollSleep is how long to wait after finding the queue empty.
	PollSleep time.Duration

	// HeartbeatInterval is how often to refresh the claim on the job
	// being processed. Must be well under Visibility.
	HeartbeatInterval time.Duration
}

// Runner claims jobs from the queue and hands them to the engine, one
// at a time. Scale out by running more worker processes, not more
// loops per process; a single loop keeps the claim and heartbeat
// lifecycle trivial to reason about.
type Runner struct {
	queue  queue.Queue
	engine *Engine
	cfg    RunnerConfig
	logger logger.Interface
}

// NewRunner creates a job runner.
func NewRunner(q queue.Queue, engine *Engine, cfg RunnerConfig, log logger.Interface) *Runner {
	return &Runner{
		queue:  q,
		engine: engine,
		cfg:    cfg,
		logger: log.WithComponent("runner"),
	}
}

// Run processes jobs until the context is cancelled. Cancellation is
// graceful: the job in flight finishes and is settled before the loop
// exits, so shutdown never manufactures a stale claim.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("worker started",
		"visibility", r.cfg.Visibility.String(),
		"poll_sleep", r.cfg.PollSleep.String())

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("worker stopped")
			return nil
		}

		msg, err := r.queue.Receive(ctx, r.cfg.Visibility)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("worker stopped")
				return nil
			}
			r.logger.Error("failed to receive job", "error", err)
			r.sleep(ctx)
			continue
		}
		if msg == nil {
			r.sleep(ctx)
			continue
		}

		r.processMessage(ctx, msg)
	}
}

// processMessage runs one job under a heartbeat and settles it. The
// job itself runs detached from loop cancellation so shutdown lets it
// finish.
func (r *Runner) processMessage(ctx context.Context, msg *queue.Message) {
	jobCtx := context.WithoutCancel(ctx)

	stopHeartbeat := r.startHeartbeat(jobCtx, msg)
	defer stopHeartbeat()

	if msg.RetryCount > 0 {
		r.engine.NoteRecovered(jobCtx, msg.Job, msg.RetryCount)
	}

	start := time.Now()
	err := r.engine.Process(jobCtx, msg.Job)
	elapsed := time.Since(start)
	metrics.ObserveJob(string(msg.Job.Type), err, elapsed)

	if err != nil {
		r.logger.Error("job failed",
			"type", string(msg.Job.Type),
			"file_url", msg.Job.FileURL,
			"retries", msg.RetryCount,
			"elapsed", elapsed.String(),
			"error", err)
		if retErr := r.queue.Return(jobCtx, msg); retErr != nil {
			r.logger.Error("failed to return job", "error", retErr)
		}
		return
	}

	r.logger.Info("job done",
		"type", string(msg.Job.Type),
		"file_url", msg.Job.FileURL,
		"elapsed", elapsed.String())
	if delErr := r.queue.Delete(jobCtx, msg); delErr != nil {
		r.logger.Error("failed to settle job", "error", delErr)
	}
}

// startHeartbeat refreshes the message claim until the returned stop
// function is called.
func (r *Runner) startHeartbeat(ctx context.Context, msg *queue.Message) func() {
	if r.cfg.HeartbeatInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := r.queue.Heartbeat(ctx, msg); err != nil {
					r.logger.Warn("heartbeat failed",
						"file_url", msg.Job.FileURL, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

// sleep waits out the poll interval or the context, whichever ends
// first.
func (r *Runner) sleep(ctx context.Context) {
	if r.cfg.PollSleep <= 0 {
		return
	}
	timer := time.NewTimer(r.cfg.PollSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
