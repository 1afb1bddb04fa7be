package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/goingest/internal/database"
	"github.com/jonesrussell/goingest/internal/index"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ledger schema and search index",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
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

	if err := database.EnsureSchema(ctx, db); err != nil {
		return err
	}
	log.Info("ledger schema ready")

	idx, err := index.New(&cfg.Index, nil, log)
	if err != nil {
		return err
	}
	if err := idx.EnsureIndex(ctx); err != nil {
		return err
	}
	log.Info("search index ready")

	return nil
}
