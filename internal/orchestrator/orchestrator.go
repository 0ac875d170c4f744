// Package orchestrator runs crawl sessions over the configured sites and
// owns the site status machine: INDEXING while a crawl is active, then
// INDEXED, or FAILED with the reason.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deidaraiorek/sitesearch/internal/config"
	"github.com/deidaraiorek/sitesearch/internal/crawler"
	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
	"github.com/deidaraiorek/sitesearch/internal/indexer"
	"github.com/deidaraiorek/sitesearch/internal/logging"
	"github.com/deidaraiorek/sitesearch/internal/metrics"
	"github.com/deidaraiorek/sitesearch/internal/parser"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

const (
	// StoppedByUser is the last error of sites interrupted by StopAll.
	StoppedByUser = "stopped by user"

	// DefaultWaitCeiling bounds one wait for a site crawl. The wait is
	// re-armed when it elapses.
	DefaultWaitCeiling = 24 * time.Hour
)

// SiteCrawler crawls one site.
type SiteCrawler interface {
	Crawl(ctx context.Context, site *storage.Site, start string, opts crawler.Options) (*crawler.Result, error)
}

type session struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

type Service struct {
	config  *config.Config
	store   *storage.Store
	indexer *indexer.Indexer
	crawler SiteCrawler
	metrics *metrics.Metrics
	logger  zerolog.Logger

	// WaitCeiling overrides DefaultWaitCeiling when set.
	WaitCeiling time.Duration

	current atomic.Pointer[session]
	// mu orders StartAll against the tail of StopAll.
	mu   sync.Mutex
	last chan struct{}
}

func New(cfg *config.Config, store *storage.Store, ix *indexer.Indexer, c SiteCrawler, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Service{
		config:  cfg,
		store:   store,
		indexer: ix,
		crawler: c,
		metrics: m,
		logger:  logging.Component(logger, "orchestrator"),
	}
}

// Running reports whether a crawl session is in progress.
func (s *Service) Running() bool {
	return s.current.Load() != nil
}

// StartAll starts a session that re-crawls every configured site in order.
// It returns as soon as the session is running; the session outlives ctx.
func (s *Service) StartAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	if !s.current.CompareAndSwap(nil, sess) {
		cancel()
		return apperrors.ConflictError(apperrors.ErrCodeAlreadyRunning, "indexing is already running")
	}

	prev := s.last
	s.last = sess.done
	s.metrics.SessionsRunning.Set(1)

	go s.run(runCtx, sess, prev)
	return nil
}

// Wait blocks until the most recently started session has ended.
func (s *Service) Wait() {
	s.mu.Lock()
	done := s.last
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// StopAll cancels the running session and marks every site still INDEXING
// as FAILED.
func (s *Service) StopAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.current.Load()
	if sess == nil || !s.current.CompareAndSwap(sess, nil) {
		return apperrors.ConflictError(apperrors.ErrCodeNotRunning, "indexing is not running")
	}
	sess.cancel()
	s.metrics.SessionsRunning.Set(0)

	n, err := s.store.FailIndexingSites(ctx, StoppedByUser)
	if err != nil {
		return apperrors.StorageError("failed to mark interrupted sites", err)
	}
	s.logger.Info().Str("session", sess.id).Int64("sites", n).Msg("Indexing stopped")
	return nil
}

func (s *Service) run(ctx context.Context, sess *session, prev chan struct{}) {
	logger := s.logger.With().Str("session", sess.id).Logger()
	defer func() {
		if s.current.CompareAndSwap(sess, nil) {
			s.metrics.SessionsRunning.Set(0)
		}
		sess.cancel()
		close(sess.done)
	}()

	// A stopped session may still be finishing in-flight fetches.
	if prev != nil {
		<-prev
	}

	started := time.Now()
	logger.Info().Int("sites", len(s.config.Sites)).Msg("Indexing started")
	for _, sc := range s.config.Sites {
		if ctx.Err() != nil {
			break
		}
		if err := s.indexSite(ctx, logger, sc); err != nil {
			logger.Error().Err(err).Str("site", sc.URL).Msg("Site indexing failed")
		}
	}
	logger.Info().Dur("took", time.Since(started)).Bool("stopped", ctx.Err() != nil).Msg("Indexing finished")
}

func (s *Service) indexSite(ctx context.Context, logger zerolog.Logger, sc config.SiteConfig) error {
	if _, err := s.indexer.DeindexSite(ctx, sc.URL); err != nil {
		return err
	}

	site := &storage.Site{URL: sc.URL, Name: sc.Name, Status: storage.StatusIndexing}
	if err := s.store.CreateSite(ctx, site); err != nil {
		return apperrors.StorageError("failed to create site", err)
	}
	logger.Info().Str("site", site.URL).Int64("site_id", site.ID).Msg("Site indexing")

	res, err := s.wait(ctx, logger, site, "", true)
	if ctx.Err() != nil {
		// StopAll owns the status of interrupted sites.
		return nil
	}

	status, lastError := storage.StatusIndexed, ""
	switch {
	case err != nil:
		status, lastError = storage.StatusFailed, apperrors.Message(err)
	case res.RootErr != nil:
		status, lastError = storage.StatusFailed, apperrors.Message(res.RootErr)
	}
	if _, err := s.store.TransitionSiteStatus(ctx, site.ID, storage.StatusIndexing, status, lastError); err != nil {
		return apperrors.StorageError("failed to update site status", err)
	}

	event := logger.Info()
	if status == storage.StatusFailed {
		event = logger.Warn().Str("error", lastError)
	}
	if res != nil {
		event = event.Int("indexed", res.Indexed).Int("bad_status", res.BadStatus).Int("failed", res.Failed)
	}
	event.Str("site", site.URL).Str("status", string(status)).Msg("Site indexed")
	return err
}

// wait runs one crawl and blocks until it returns, re-arming the ceiling
// each time it elapses.
func (s *Service) wait(ctx context.Context, logger zerolog.Logger, site *storage.Site, start string, follow bool) (*crawler.Result, error) {
	type outcome struct {
		res *crawler.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.crawler.Crawl(ctx, site, start, s.options(follow))
		done <- outcome{res, err}
	}()

	ceiling := s.WaitCeiling
	if ceiling <= 0 {
		ceiling = DefaultWaitCeiling
	}
	timer := time.NewTimer(ceiling)
	defer timer.Stop()
	for {
		select {
		case o := <-done:
			return o.res, o.err
		case <-timer.C:
			logger.Warn().Str("site", site.URL).Dur("ceiling", ceiling).Msg("Crawl still running, waiting again")
			timer.Reset(ceiling)
		}
	}
}

func (s *Service) options(follow bool) crawler.Options {
	c := s.config.Crawler
	return crawler.Options{
		Workers:  c.Workers,
		Delay:    c.Delay,
		MaxPages: c.MaxPages,
		MaxDepth: c.MaxDepth,
		Follow:   follow,
	}
}

// ReindexPage re-fetches and re-indexes one page of a configured site
// without following its links. It does not take the session guard.
func (s *Service) ReindexPage(ctx context.Context, rawURL string) error {
	u, err := parser.ParseURL(rawURL)
	if err != nil {
		return apperrors.ValidationError(apperrors.ErrCodeInvalidURL, "invalid page URL").WithDetail("url", rawURL)
	}
	sc, ok := s.config.SiteByHost(u.Host)
	if !ok {
		return apperrors.ValidationError(apperrors.ErrCodeOutsideSites, "page is outside the configured sites").WithDetail("url", rawURL)
	}

	site, err := s.store.FindSiteByURL(ctx, sc.URL)
	if err != nil {
		return apperrors.StorageError("failed to look up site", err)
	}
	priorStatus, priorError := storage.StatusFailed, ""
	if site == nil {
		site = &storage.Site{URL: sc.URL, Name: sc.Name, Status: storage.StatusIndexing}
		if err := s.store.CreateSite(ctx, site); err != nil {
			return apperrors.StorageError("failed to create site", err)
		}
	} else {
		priorStatus, priorError = site.Status, site.LastError
		if err := s.store.UpdateSiteStatus(ctx, site.ID, storage.StatusIndexing, ""); err != nil {
			return apperrors.StorageError("failed to update site status", err)
		}
	}
	defer func() {
		if err := s.store.UpdateSiteStatus(context.WithoutCancel(ctx), site.ID, priorStatus, priorError); err != nil {
			s.logger.Error().Err(err).Str("site", site.URL).Msg("Failed to restore site status")
		}
	}()

	page, err := s.store.FindPageByPath(ctx, site.ID, parser.PathOf(u))
	if err != nil {
		return apperrors.StorageError("failed to look up page", err)
	}
	if page != nil {
		if err := s.indexer.DeindexPage(ctx, page); err != nil {
			return err
		}
	}

	res, err := s.wait(ctx, s.logger, site, u.String(), false)
	if err != nil {
		return err
	}
	if res.RootErr != nil {
		return res.RootErr
	}
	s.logger.Info().Str("url", rawURL).Int("indexed", res.Indexed).Int("bad_status", res.BadStatus).Msg("Page reindexed")
	return nil
}
