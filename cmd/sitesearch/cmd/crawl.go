package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newCrawlCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Re-crawl and re-index every configured site",
		Long: `Re-crawl every configured site in order, replacing its previous pages.
Interrupting the command stops the session and marks unfinished sites
as FAILED.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), cmd, root)
		},
	}
}

func runCrawl(ctx context.Context, cmd *cobra.Command, root *rootOptions) error {
	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orchestrator.StartAll(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		a.orchestrator.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if err := a.orchestrator.StopAll(context.Background()); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop indexing")
		}
		<-done
	}

	stats, err := a.orchestrator.Statistics(context.Background())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range stats.Detailed {
		line := fmt.Sprintf("%-8s %s  pages=%d lemmas=%d", s.Status, s.URL, s.Pages, s.Lemmas)
		if s.Error != "" {
			line += "  error=" + s.Error
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
