package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/solatis/mutguard/internal/core/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the history database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		if cfg.Database.URL == "" {
			return fmt.Errorf("--db-url or MG_DATABASE_URL required")
		}

		database, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		ran, err := db.MigrateUp(ctx, database)
		if err != nil {
			return err
		}
		for _, id := range ran {
			logger.Info("migration applied", zap.String("migration", id))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(ran))
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		if cfg.Database.URL == "" {
			return fmt.Errorf("--db-url or MG_DATABASE_URL required")
		}

		database, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		status, err := db.MigrateStatus(ctx, database)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MIGRATION\tSTATUS\tAPPLIED AT\tDURATION")
		for _, m := range status {
			state, at, took := "pending", "-", "-"
			if m.Applied {
				state = "applied"
				took = (time.Duration(m.ExecutionMs) * time.Millisecond).String()
				if m.AppliedAt != nil {
					at = m.AppliedAt.Format(time.RFC3339)
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, state, at, took)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}
