// Package scheduler runs the periodic reconciliation loop: on every
// tick it finds sites whose processing interval has elapsed and runs a
// schema map reconciliation pass for each.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
	"github.com/jonesrussell/goingest/internal/metrics"
	"github.com/jonesrussell/goingest/internal/reconcile"
)

// SiteLister supplies the sites eligible for scheduling.
type SiteLister interface {
	ListActive(ctx context.Context) ([]*domain.Site, error)
}

// SiteReconciler runs one reconciliation pass for a site.
type SiteReconciler interface {
	ReconcileSite(ctx context.Context, site *domain.Site) (*reconcile.Summary, error)
}

// Scheduler triggers reconciliation passes on a fixed tick.
type Scheduler struct {
	sites      SiteLister
	reconciler SiteReconciler
	interval   time.Duration
	logger     logger.Interface
}

// New creates a scheduler.
func New(sites SiteLister, reconciler SiteReconciler, interval time.Duration, log logger.Interface) *Scheduler {
	return &Scheduler{
		sites:      sites,
		reconciler: reconciler,
		interval:   interval,
		logger:     log.WithComponent("scheduler"),
	}
}

// Run ticks until the context is cancelled. An immediate pass runs on
// startup so a fresh deployment does not wait a full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval.String())

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fans out a reconciliation pass per due site and waits for all
// of them. One slow manifest fetch, failure, or panic never blocks the
// other sites; the reconciler's per-site lock guards same-site overlap.
func (s *Scheduler) tick(ctx context.Context) {
	sites, err := s.sites.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list sites", "error", err)
		return
	}

	now := time.Now().UTC()
	var wg sync.WaitGroup
	due := 0
	for _, site := range sites {
		if !site.Due(now) {
			continue
		}
		due++
		wg.Add(1)
		go func(site *domain.Site) {
			defer wg.Done()
			s.reconcileSite(ctx, site)
		}(site)
	}
	wg.Wait()

	if due > 0 {
		s.logger.Info("tick complete", "sites", len(sites), "due", due)
	}
}

// reconcileSite runs one pass with panic isolation.
func (s *Scheduler) reconcileSite(ctx context.Context, site *domain.Site) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("reconciliation panicked",
				"site", site.SiteURL, "panic", fmt.Sprintf("%v", rec))
		}
	}()

	_, err := s.reconciler.ReconcileSite(ctx, site)
	metrics.ObserveReconcile(err)
	if err != nil {
		s.logger.Error("reconciliation failed", "site", site.SiteURL, "error", err)
	}
}
