package main

import (
	"context"
	"fmt"

	"github.com/hyperengineering/simtracker/internal/migrate"
	"github.com/hyperengineering/simtracker/internal/tracker"
	"github.com/spf13/cobra"
)

var (
	migrateDryRun bool
	migrateJSON   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite legacy tracker blocks in the current format",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Report changes without writing them")
	migrateCmd.Flags().BoolVar(&migrateJSON, "json", false, "Output in JSON format")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format, err := tracker.ParseFormat(cfg.Tracker.Format)
	if err != nil {
		return err
	}

	tr, err := openTranscript(ctx, cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	res, err := migrate.Apply(ctx, tr.chat, cfg.Tracker.Identifier, format, migrateDryRun)
	if err != nil {
		return err
	}

	if migrateJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}

	verb := "Migrated"
	if migrateDryRun {
		verb = "Would migrate"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d messages (%d blocks, %d skipped)\n",
		verb, res.MigratedCount, res.Fences, res.Skipped)
	return nil
}
