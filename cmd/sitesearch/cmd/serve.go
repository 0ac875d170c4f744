package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deidaraiorek/sitesearch/internal/api"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the indexing and search API:

  GET  /api/startIndexing
  GET  /api/stopIndexing
  POST /api/indexPage?url=...
  GET  /api/statistics
  GET  /api/search?query=...&site=...&offset=...&limit=...
  GET  /metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, addr string) error {
	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = a.config.Server.Addr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(a.orchestrator, a.engine, a.registry, a.logger)
	err = server.ListenAndServe(ctx, addr)

	if a.orchestrator.Running() {
		if stopErr := a.orchestrator.StopAll(context.Background()); stopErr != nil {
			a.logger.Warn().Err(stopErr).Msg("Failed to stop indexing")
		}
	}
	a.orchestrator.Wait()
	return err
}
