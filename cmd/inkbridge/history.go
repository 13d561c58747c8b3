// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/inkbridge/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent publish attempts from the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		showRuns, _ := cmd.Flags().GetBool("runs")

		cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
		if err != nil {
			return err
		}
		if cfg.Sync.HistoryDB == "" {
			return fmt.Errorf("history is disabled (sync.history_db is empty)")
		}
		h, err := history.Open(cfg.Sync.HistoryDB)
		if err != nil {
			return err
		}
		defer h.Close()

		if showRuns {
			runs, err := h.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(runs)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tDRY RUN\tCOMPLETED\tPARTIAL\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%d\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.DryRun, r.Completed, r.Partial, r.Failed)
			}
			return tw.Flush()
		}

		pubs, err := h.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(pubs)
		}
		if len(pubs) == 0 {
			fmt.Println("No publish attempts recorded yet.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AT\tDESTINATION\tNOTEBOOK\tRESULT")
		for _, p := range pubs {
			result := "ok"
			if !p.Success {
				result = "failed: " + p.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.At.Format("2006-01-02 15:04:05"), p.Destination, p.Title, result)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of rows")
	historyCmd.Flags().Bool("json", false, "output results as JSON")
	historyCmd.Flags().Bool("runs", false, "list sync runs instead of publish attempts")

	rootCmd.AddCommand(historyCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
