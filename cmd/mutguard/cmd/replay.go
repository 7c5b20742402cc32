package cmd

import (
	"context"
	"fmt"

	"github.com/solatis/mutguard/internal/core/audit"
	"github.com/solatis/mutguard/internal/core/logging"
	"github.com/solatis/mutguard/internal/replay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>...",
	Short: "Run scripted operations against a guard and print the outcome",
	Long: `Each script names an initial value, a limit, option overrides and a list of
steps (get, set, setPath, delete, invoke, freeze, reset). Steps may declare
"expect: ok" or "expect: error"; the command fails when any expectation is
not met. With a database configured, every history record is persisted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().String("format", "text", "output format (text, json)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("--format must be text or json, got %q", format)
	}

	var store *audit.Store
	if cfg.Database.URL != "" {
		database, err := openMigrated(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()
		if store, err = audit.NewStore(database); err != nil {
			return err
		}
	}

	var results []*replay.RunResult
	failed := 0
	for _, path := range args {
		script, err := replay.Load(path)
		if err != nil {
			return err
		}
		name := script.Name
		if name == "" {
			name = path
		}

		opts := cfg.GuardOptions(logging.Component(logger, "replay").With(zap.String("script", name)))
		if store != nil {
			opts.Sink = audit.NewSink(ctx, store, name)
		}
		result, err := replay.Run(script, opts, cfg.Guard.MaxMutations)
		if err != nil {
			return err
		}
		result.File = path
		logger.Debug("script finished",
			zap.String("file", path),
			zap.String("guard_id", string(result.Snapshot.ID)),
			zap.Int("failed", result.Failed))
		failed += result.Failed
		results = append(results, result)
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		s, err := replay.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	} else {
		fmt.Fprint(out, replay.FormatText(results))
	}

	if failed > 0 {
		return fmt.Errorf("%d step(s) did not match expectations", failed)
	}
	return nil
}
