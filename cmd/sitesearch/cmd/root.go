// Package cmd provides the CLI commands for sitesearch.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command for the sitesearch CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sitesearch",
		Short: "Crawl a fixed set of sites and search them by word forms",
		Long: `sitesearch crawls the sites listed in its configuration, stores every
page in SQLite and keeps an inverted index of lemmas. Queries match
any inflection of their words and are ranked by term share.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default $SITESEARCH_CONFIG or sitesearch.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newCrawlCmd(opts))
	cmd.AddCommand(newIndexPageCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
