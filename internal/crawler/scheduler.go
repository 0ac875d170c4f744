// Package crawler walks one site with a fixed pool of workers, storing and
// indexing every page it fetches.
package crawler

import (
	"context"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
	"github.com/deidaraiorek/sitesearch/internal/fetcher"
	"github.com/deidaraiorek/sitesearch/internal/frontier"
	"github.com/deidaraiorek/sitesearch/internal/logging"
	"github.com/deidaraiorek/sitesearch/internal/metrics"
	"github.com/deidaraiorek/sitesearch/internal/parser"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

// MinTextLength is the visible text below which a page is re-rendered in
// the browser, when one is configured.
const MinTextLength = 100

type Fetcher interface {
	Fetch(ctx context.Context, urlStr string) (*fetcher.Response, error)
}

// PageSink persists crawled pages.
type PageSink interface {
	AddPage(ctx context.Context, page *storage.Page) error
}

type Options struct {
	Workers  int
	Delay    time.Duration
	MaxPages int
	MaxDepth int
	// Follow enables recursion into links. Without it only the start URL
	// is crawled.
	Follow bool
}

type Result struct {
	Indexed   int
	BadStatus int
	Failed    int
	Skipped   int
	// RootErr is set when the start URL itself could not be fetched.
	RootErr error
}

type Crawler struct {
	fetcher  Fetcher
	renderer fetcher.Renderer
	parser   *parser.Parser
	sink     PageSink
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates a crawler. renderer may be nil to disable the browser
// fallback.
func New(f Fetcher, renderer fetcher.Renderer, sink PageSink, m *metrics.Metrics, logger zerolog.Logger) *Crawler {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Crawler{
		fetcher:  f,
		renderer: renderer,
		parser:   parser.New(),
		sink:     sink,
		metrics:  m,
		logger:   logging.Component(logger, "crawler"),
	}
}

type run struct {
	site     *storage.Site
	siteURL  *url.URL
	opts     Options
	frontier *frontier.Frontier
	limiter  *rate.Limiter
	logger   zerolog.Logger

	indexed, badStatus, failed, skipped atomic.Int64
	rootErr                             atomic.Pointer[error]
}

// Crawl fetches start and, when opts.Follow is set, every same-site page
// reachable from it. It returns once every admitted page was processed or
// ctx is cancelled; pages stored before a cancel stay in place.
func (c *Crawler) Crawl(ctx context.Context, site *storage.Site, start string, opts Options) (*Result, error) {
	siteURL, err := parser.ParseURL(site.URL)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidURL, "invalid site URL", err).WithDetail("url", site.URL)
	}
	if start == "" {
		start = site.URL
	}
	startURL, err := parser.ParseURL(start)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidURL, "invalid start URL", err).WithDetail("url", start)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}

	r := &run{
		site:     site,
		siteURL:  siteURL,
		opts:     opts,
		frontier: frontier.New(opts.MaxPages),
		limiter:  rate.NewLimiter(limit, 1),
		logger:   c.logger.With().Str("site", site.URL).Logger(),
	}
	r.frontier.Add(frontier.Task{URL: startURL.String(), Path: parser.PathOf(startURL)})

	r.logger.Debug().Int("workers", opts.Workers).Bool("follow", opts.Follow).Msg("Crawl started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Workers; i++ {
		i := i
		g.Go(func() error {
			c.worker(gctx, r, i)
			return nil
		})
	}
	g.Wait()

	res := &Result{
		Indexed:   int(r.indexed.Load()),
		BadStatus: int(r.badStatus.Load()),
		Failed:    int(r.failed.Load()),
		Skipped:   int(r.skipped.Load()),
	}
	if p := r.rootErr.Load(); p != nil {
		res.RootErr = *p
	}

	r.logger.Info().
		Int("indexed", res.Indexed).
		Int("bad_status", res.BadStatus).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Bool("cancelled", ctx.Err() != nil).
		Msg("Crawl finished")
	return res, nil
}

func (c *Crawler) worker(ctx context.Context, r *run, workerID int) {
	for {
		task, ok := r.frontier.Next(ctx)
		if !ok {
			return
		}
		r.logger.Debug().Int("worker", workerID).Str("url", task.URL).Msg("Crawling")
		r.frontier.Finish(task, c.process(ctx, r, task))
	}
}

func (c *Crawler) process(ctx context.Context, r *run, task frontier.Task) frontier.State {
	if err := r.limiter.Wait(ctx); err != nil {
		c.count(r, metrics.OutcomeSkipped)
		return frontier.StateFailed
	}

	started := time.Now()
	resp, err := c.fetcher.Fetch(ctx, task.URL)
	c.metrics.FetchDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		r.logger.Warn().Err(err).Str("url", task.URL).Msg("Fetch failed")
		if task.Depth == 0 {
			r.rootErr.Store(&err)
		}
		c.count(r, metrics.OutcomeFailed)
		return frontier.StateFailed
	}

	if resp.OK() && (!resp.HTML || resp.Truncated) {
		r.logger.Debug().
			Str("url", task.URL).
			Str("content_type", resp.ContentType).
			Bool("truncated", resp.Truncated).
			Msg("Skipping non-HTML or oversized content")
		c.count(r, metrics.OutcomeSkipped)
		return frontier.StateFailed
	}

	page := &storage.Page{
		SiteID:  r.site.ID,
		Path:    task.Path,
		Code:    resp.StatusCode,
		Content: resp.Body,
	}

	var links []parser.Link
	if resp.OK() {
		links = c.extract(ctx, r, task, resp, page)
	}

	if err := c.sink.AddPage(ctx, page); err != nil {
		r.logger.Error().Err(err).Str("url", task.URL).Msg("Failed to store page")
		c.count(r, metrics.OutcomeFailed)
		return frontier.StateFailed
	}

	if !resp.OK() {
		r.logger.Debug().Str("url", task.URL).Int("code", resp.StatusCode).Msg("Stored error page")
		c.count(r, metrics.OutcomeBadStatus)
		return frontier.StateFailed
	}
	c.count(r, metrics.OutcomeIndexed)

	if !r.opts.Follow || ctx.Err() != nil {
		return frontier.StateExtracted
	}
	if r.opts.MaxDepth > 0 && task.Depth >= r.opts.MaxDepth {
		return frontier.StateExtracted
	}

	added := 0
	for _, link := range links {
		if r.frontier.Add(frontier.Task{URL: link.URL, Path: link.Path, Depth: task.Depth + 1}) {
			added++
		}
	}
	if added > 0 {
		r.logger.Debug().Str("url", task.URL).Int("links", added).Msg("Added links to frontier")
	}
	return frontier.StateExtracted
}

// extract parses a 2xx page, re-rendering it in the browser when the
// static HTML carries too little text. It may replace page.Content.
func (c *Crawler) extract(ctx context.Context, r *run, task frontier.Task, resp *fetcher.Response, page *storage.Page) []parser.Link {
	base, err := url.Parse(resp.URL)
	if err != nil {
		base, _ = url.Parse(task.URL)
	}

	doc, err := c.parser.Parse(resp.Body, base, r.siteURL)
	if err != nil {
		r.logger.Warn().Err(err).Str("url", task.URL).Msg("Parse failed")
		return nil
	}

	if c.renderer != nil && doc.TextLength < MinTextLength {
		html, err := c.renderer.FetchHTML(ctx, task.URL)
		if err != nil {
			r.logger.Warn().Err(err).Str("url", task.URL).Msg("Browser fetch failed")
			return doc.Links
		}
		rendered, err := c.parser.Parse(html, base, r.siteURL)
		if err == nil && rendered.TextLength > doc.TextLength {
			r.logger.Debug().Str("url", task.URL).Msg("Using browser-rendered content")
			page.Content = html
			return rendered.Links
		}
	}
	return doc.Links
}

func (c *Crawler) count(r *run, outcome string) {
	c.metrics.PagesFetched.WithLabelValues(outcome).Inc()
	switch outcome {
	case metrics.OutcomeIndexed:
		r.indexed.Add(1)
	case metrics.OutcomeBadStatus:
		r.badStatus.Add(1)
	case metrics.OutcomeFailed:
		r.failed.Add(1)
	case metrics.OutcomeSkipped:
		r.skipped.Add(1)
	}
}
