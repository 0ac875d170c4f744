package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deidaraiorek/sitesearch/internal/search"
)

type searchOptions struct {
	site       string
	offset     int
	limit      int
	jsonOutput bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the index. Words match any of their inflections; results are
ranked by the share of page words matching the query.

Examples:
  sitesearch search "лошади в поле"
  sitesearch search golang --site https://go.dev --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.engine.Search(cmd.Context(), search.Query{
				Text:   strings.Join(args, " "),
				Site:   opts.site,
				Offset: opts.offset,
				Limit:  opts.limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			fmt.Fprintf(out, "%d results\n", resp.Count)
			for i, r := range resp.Results {
				fmt.Fprintf(out, "\n%d. %s (%.3f)\n   %s%s\n   %s\n", opts.offset+i+1, r.Title, r.Relevance, r.Site, r.URI, r.Snippet)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.site, "site", "", "Restrict results to one site URL")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of results to skip")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default search.default_limit)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}
