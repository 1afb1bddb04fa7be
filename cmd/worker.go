package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/goingest/internal/database"
	"github.com/jonesrussell/goingest/internal/discover"
	"github.com/jonesrussell/goingest/internal/index"
	"github.com/jonesrussell/goingest/internal/metrics"
	"github.com/jonesrussell/goingest/internal/objectstore"
	"github.com/jonesrussell/goingest/internal/queue"
	"github.com/jonesrussell/goingest/internal/worker"
)

// depthPollInterval is how often the worker refreshes queue gauges.
const depthPollInterval = 15 * time.Second

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run an ingestion worker",
	Long: `Claims jobs from the queue and processes them: ingest jobs download
a content file, extract its entities, and converge the ledger, object
store, and search index; removal jobs tear a file down.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
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

	objects, err := objectstore.New(ctx, &cfg.ObjectStore, log)
	if err != nil {
		return err
	}

	idx, err := index.New(&cfg.Index, nil, log)
	if err != nil {
		return err
	}
	if err := idx.EnsureIndex(ctx); err != nil {
		return err
	}

	engine := worker.NewEngine(
		discover.NewClient(cfg.Worker.FetchTimeout),
		worker.NewSchemaExtractor(),
		database.NewReferenceRepository(db),
		database.NewFileRepository(db),
		database.NewSiteRepository(db),
		database.NewProcessingErrorRepository(db),
		objects,
		idx,
		log,
	)

	runner := worker.NewRunner(q, engine, worker.RunnerConfig{
		Visibility:        cfg.Queue.VisibilityTimeout,
		PollSleep:         cfg.Worker.PollSleep,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	}, log)

	if metricsAddr != "" {
		go metrics.Serve(ctx, metricsAddr, log)
		go metrics.PollQueueDepth(ctx, q, depthPollInterval, log)
	}

	return runner.Run(ctx)
}
