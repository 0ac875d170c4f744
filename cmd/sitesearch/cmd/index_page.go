package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexPageCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index-page <url>",
		Short: "Re-fetch and re-index a single page",
		Long: `Re-fetch one page of a configured site and replace its index entries.
Links on the page are not followed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.orchestrator.ReindexPage(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "indexed", args[0])
			return nil
		},
	}
}
