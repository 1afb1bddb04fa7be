package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/goingest/internal/database"
	"github.com/jonesrussell/goingest/internal/discover"
	"github.com/jonesrussell/goingest/internal/metrics"
	"github.com/jonesrussell/goingest/internal/queue"
	"github.com/jonesrussell/goingest/internal/reconcile"
	"github.com/jonesrussell/goingest/internal/scheduler"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the reconciliation scheduler",
	Long: `Periodically checks which sites are due for a schema map pass,
fetches each due site's schema map, diffs it against the ledger, and
enqueues ingest and removal jobs for workers.`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	db, err := database.Connect(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	q, err := queue.Open(ctx, &cfg.Queue, log)
	if err != nil {
		return err
	}
	defer q.Close()

	sites := database.NewSiteRepository(db)
	discoverer := discover.NewDiscoverer(discover.NewClient(cfg.Worker.FetchTimeout), log)
	reconciler := reconcile.NewReconciler(
		database.NewFileRepository(db),
		sites,
		discoverer,
		q,
		log,
	)

	if metricsAddr != "" {
		go metrics.Serve(ctx, metricsAddr, log)
	}

	sched := scheduler.New(sites, reconciler, cfg.Scheduler.Interval, log)
	return sched.Run(ctx)
}
