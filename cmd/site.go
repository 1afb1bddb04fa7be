package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/goingest/internal/database"
	"github.com/jonesrussell/goingest/internal/discover"
	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/index"
	"github.com/jonesrussell/goingest/internal/objectstore"
	"github.com/jonesrussell/goingest/internal/queue"
	"github.com/jonesrussell/goingest/internal/reconcile"
)

var (
	siteOwner     string
	siteInterval  time.Duration
	siteSchemaMap string
	fileType      string
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage ingested sites",
}

var siteAddCmd = &cobra.Command{
	Use:   "add <site-url>",
	Short: "Register a site for periodic ingestion",
	Args:  cobra.ExactArgs(1),
	RunE:  runSiteAdd,
}

var siteReconcileCmd = &cobra.Command{
	Use:   "reconcile <site-url>",
	Short: "Run one reconciliation pass for a site now",
	Args:  cobra.ExactArgs(1),
	RunE:  runSiteReconcile,
}

var siteAddFileCmd = &cobra.Command{
	Use:   "add-file <site-url> <file-url>",
	Short: "Register a content file outside the site's schema map",
	Long: `Registers a single content file and enqueues its ingestion. Files
added this way are not removed when the site's schema map changes.`,
	Args: cobra.ExactArgs(2),
	RunE: runSiteAddFile,
}

var siteDeactivateCmd = &cobra.Command{
	Use:   "deactivate <site-url>",
	Short: "Stop scheduling a site without deleting its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runSiteDeactivate,
}

var siteStatusCmd = &cobra.Command{
	Use:   "status <site-url>",
	Short: "Show a site's file inventory and index footprint",
	Args:  cobra.ExactArgs(1),
	RunE:  runSiteStatus,
}

var siteErrorsCmd = &cobra.Command{
	Use:   "errors <file-url>",
	Short: "List recorded processing errors for a content file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSiteErrors,
}

var siteGetEntityCmd = &cobra.Command{
	Use:   "get-entity <site-url> <content-id>",
	Short: "Print an entity's stored payload from the object store",
	Args:  cobra.ExactArgs(2),
	RunE:  runSiteGetEntity,
}

func init() {
	siteCmd.PersistentFlags().StringVar(&siteOwner, "owner", "default", "owner the site belongs to")
	siteAddCmd.Flags().DurationVar(&siteInterval, "interval", domain.DefaultProcessInterval, "processing interval")
	siteAddCmd.Flags().StringVar(&siteSchemaMap, "schema-map", "", "schema map URL (discovered when empty)")
	siteAddFileCmd.Flags().StringVar(&fileType, "content-type", "schema.org", "content type of the file")

	siteCmd.AddCommand(siteAddCmd, siteReconcileCmd, siteAddFileCmd, siteDeactivateCmd, siteStatusCmd, siteErrorsCmd, siteGetEntityCmd)
	rootCmd.AddCommand(siteCmd)
}

func runSiteAdd(cmd *cobra.Command, args []string) error {
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

	site := &domain.Site{
		SiteURL:         domain.NormalizeSiteURL(args[0]),
		Owner:           siteOwner,
		SchemaMapURL:    siteSchemaMap,
		ProcessInterval: siteInterval,
	}
	if err := database.NewSiteRepository(db).Upsert(ctx, site); err != nil {
		return err
	}

	log.Info("site registered",
		"site", site.SiteURL,
		"owner", site.Owner,
		"interval", siteInterval.String())
	return nil
}

func runSiteReconcile(cmd *cobra.Command, args []string) error {
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
	site, err := sites.Get(ctx, domain.NormalizeSiteURL(args[0]), siteOwner)
	if err != nil {
		return err
	}

	reconciler := reconcile.NewReconciler(
		database.NewFileRepository(db),
		sites,
		discover.NewDiscoverer(discover.NewClient(cfg.Worker.FetchTimeout), log),
		q,
		log,
	)

	summary, err := reconciler.ReconcileSite(ctx, site)
	if err != nil {
		return err
	}

	fmt.Printf("added %d, removed %d, enqueued %d jobs\n",
		summary.Added, summary.Removed, summary.Enqueued)
	return nil
}

func runSiteAddFile(cmd *cobra.Command, args []string) error {
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
	site, err := sites.Get(ctx, domain.NormalizeSiteURL(args[0]), siteOwner)
	if err != nil {
		return err
	}

	reconciler := reconcile.NewReconciler(
		database.NewFileRepository(db),
		sites,
		discover.NewDiscoverer(discover.NewClient(cfg.Worker.FetchTimeout), log),
		q,
		log,
	)

	if err := reconciler.RegisterManualFile(ctx, site, args[1], fileType); err != nil {
		return err
	}

	log.Info("file registered", "site", site.SiteURL, "file_url", args[1])
	return nil
}

func runSiteStatus(cmd *cobra.Command, args []string) error {
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

	site, err := database.NewSiteRepository(db).Get(ctx, domain.NormalizeSiteURL(args[0]), siteOwner)
	if err != nil {
		return err
	}

	files, err := database.NewFileRepository(db).ListActiveForSite(ctx, site.SiteURL, site.Owner)
	if err != nil {
		return err
	}

	idx, err := index.New(&cfg.Index, nil, log)
	if err != nil {
		return err
	}
	docs, err := idx.CountBySite(ctx, site.SiteURL)
	if err != nil {
		return err
	}

	lastProcessed := "never"
	if site.LastProcessed != nil {
		lastProcessed = site.LastProcessed.Format(time.RFC3339)
	}
	fmt.Printf("site:           %s (owner %s)\n", site.SiteURL, site.Owner)
	fmt.Printf("schema map:     %s\n", site.SchemaMapURL)
	fmt.Printf("last processed: %s\n", lastProcessed)
	fmt.Printf("active files:   %d\n", len(files))
	fmt.Printf("indexed docs:   %d\n", docs)
	return nil
}

func runSiteErrors(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
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

	errs, err := database.NewProcessingErrorRepository(db).ListForFile(ctx, args[0], siteOwner)
	if err != nil {
		return err
	}
	if len(errs) == 0 {
		fmt.Println("no recorded errors")
		return nil
	}

	for _, pe := range errs {
		fmt.Printf("%s  %-18s  %s\n", pe.OccurredAt.Format(time.RFC3339), pe.ErrorType, pe.Message)
		if pe.Details != "" {
			fmt.Printf("  %s\n", pe.Details)
		}
	}
	return nil
}

func runSiteGetEntity(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	objects, err := objectstore.New(ctx, &cfg.ObjectStore, log)
	if err != nil {
		return err
	}

	payload, err := objects.Get(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Println(string(payload))
	return nil
}

func runSiteDeactivate(cmd *cobra.Command, args []string) error {
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

	siteURL := domain.NormalizeSiteURL(args[0])
	if err := database.NewSiteRepository(db).Deactivate(ctx, siteURL, siteOwner); err != nil {
		return err
	}

	log.Info("site deactivated", "site", siteURL, "owner", siteOwner)
	return nil
}
