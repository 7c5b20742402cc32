package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/solatis/mutguard/internal/core/audit"
	"github.com/solatis/mutguard/internal/types"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List persisted guard history",
	Long:  `Without --guard, lists every guard with persisted history. With --guard, prints that guard's records in order.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("guard", "", "guard ID to list records for")
	historyCmd.Flags().Bool("json", false, "print JSON instead of a table")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if cfg.Database.URL == "" {
		return fmt.Errorf("--db-url or MG_DATABASE_URL required")
	}

	database, err := openMigrated(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := audit.NewStore(database)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	guardFlag, _ := cmd.Flags().GetString("guard")
	out := cmd.OutOrStdout()

	if guardFlag == "" {
		summaries, err := store.Guards(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(out).Encode(summaries)
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "GUARD ID\tNAME\tRECORDS\tLAST RECORDED")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.GuardID, s.GuardName, s.Records, s.LastRecordedAt)
		}
		return w.Flush()
	}

	id, err := types.ParseGuardID(guardFlag)
	if err != nil {
		return err
	}
	records, err := store.List(ctx, id)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no history for guard %s", id)
	}
	if asJSON {
		return json.NewEncoder(out).Encode(records)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTYPE\tCOUNT\tPATH\tEDIT\tTIME\tVALUE")
	for _, r := range records {
		value, err := json.Marshal(r.Value)
		if err != nil {
			value = []byte(fmt.Sprint(r.Value))
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Seq, r.Kind, r.MutationCountAtTime, dash(r.Path.String()), dash(string(r.EditKind)),
			r.Timestamp.Format(time.RFC3339), value)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
