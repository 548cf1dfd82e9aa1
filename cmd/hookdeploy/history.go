package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"hookdeploy/internal/history"

	"github.com/spf13/cobra"
)

var historyOpts struct {
	limit  int
	asJSON bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent deployments",
	Long:  `List deployments recorded in the history database, newest first.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 10, "Number of deployments to show")
	historyCmd.Flags().BoolVar(&historyOpts.asJSON, "json", false, "Print records as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if historyOpts.limit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}

	hist, err := history.NewHistory(cfg.History.Path)
	if err != nil {
		return err
	}
	defer hist.Close()

	records, err := hist.GetDeploymentHistory(cmd.Context(), historyOpts.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyOpts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []history.DeploymentRecord{}
		}
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No deployments recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tBRANCH\tCOMMIT\tTRIGGER\tSTATUS\tDURATION\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Branch,
			shortCommit(r.CommitHash),
			r.Trigger,
			outcomeColor(r.Status).Sprint(r.Status),
			formatSeconds(r.DurationSeconds),
			deref(r.ErrorMessage))
	}
	return tw.Flush()
}

func shortCommit(hash *string) string {
	h := deref(hash)
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func formatSeconds(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", *d)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
