package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var verify, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Show corpus totals and the status of every site. With --verify, also
check that every lemma frequency equals the number of pages holding it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.orchestrator.Statistics(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(stats); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "sites=%d pages=%d lemmas=%d\n\n", stats.Total.Sites, stats.Total.Pages, stats.Total.Lemmas)
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "STATUS\tSITE\tPAGES\tLEMMAS\tUPDATED\tERROR")
				for _, s := range stats.Detailed {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
						s.Status, s.URL, s.Pages, s.Lemmas, s.StatusTime.Local().Format(time.DateTime), s.Error)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if verify {
				if err := a.indexer.Verify(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "\nindex consistent")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Check lemma frequencies against postings")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
