// Package metrics exposes Prometheus instrumentation for the
// ingestion pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/goingest/internal/logger"
)

var (
	// JobsProcessed counts settled jobs by type and result.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goingest_jobs_processed_total",
		Help: "Number of jobs processed, by job type and result.",
	}, []string{"type", "result"})

	// JobDuration tracks wall time per job.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goingest_job_duration_seconds",
		Help:    "Job processing duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"type"})

	// ReconcilePasses counts reconciliation passes by result.
	ReconcilePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goingest_reconcile_passes_total",
		Help: "Number of site reconciliation passes, by result.",
	}, []string{"result"})

	// QueueDepth is the number of jobs waiting for delivery.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goingest_queue_depth",
		Help: "Jobs waiting in the queue.",
	})

	// QueueErrorDepth is the number of jobs in the dead-letter channel.
	QueueErrorDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goingest_queue_error_depth",
		Help: "Jobs escalated to the dead-letter channel.",
	})
)

// ObserveJob records one settled job.
func ObserveJob(jobType string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	JobsProcessed.WithLabelValues(jobType, result).Inc()
	JobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

// ObserveReconcile records one reconciliation pass.
func ObserveReconcile(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ReconcilePasses.WithLabelValues(result).Inc()
}

// DepthSource reports queue depths for the gauges.
type DepthSource interface {
	Depth(ctx context.Context) (int, error)
	ErrorDepth(ctx context.Context) (int, error)
}

// PollQueueDepth updates the queue gauges on a fixed interval until
// the context is cancelled.
func PollQueueDepth(ctx context.Context, src DepthSource, interval time.Duration, log logger.Interface) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := src.Depth(ctx); err == nil {
				QueueDepth.Set(float64(depth))
			} else {
				log.Warn("failed to read queue depth", "error", err)
			}
			if depth, err := src.ErrorDepth(ctx); err == nil {
				QueueErrorDepth.Set(float64(depth))
			} else {
				log.Warn("failed to read error depth", "error", err)
			}
		}
	}
}

// Serve exposes /metrics on the given address until the context is
// cancelled.
func Serve(ctx context.Context, addr string, log logger.Interface) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server started", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", "error", err)
	}
}
