package cmd

import (
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/deidaraiorek/sitesearch/internal/config"
	"github.com/deidaraiorek/sitesearch/internal/crawler"
	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
	"github.com/deidaraiorek/sitesearch/internal/fetcher"
	"github.com/deidaraiorek/sitesearch/internal/indexer"
	"github.com/deidaraiorek/sitesearch/internal/logging"
	"github.com/deidaraiorek/sitesearch/internal/metrics"
	"github.com/deidaraiorek/sitesearch/internal/morph"
	"github.com/deidaraiorek/sitesearch/internal/orchestrator"
	"github.com/deidaraiorek/sitesearch/internal/search"
	"github.com/deidaraiorek/sitesearch/internal/storage"
	"github.com/deidaraiorek/sitesearch/internal/textprocessor"
)

// app is the wired set of components shared by the commands.
type app struct {
	config       *config.Config
	logger       zerolog.Logger
	registry     *prometheus.Registry
	store        *storage.Store
	indexer      *indexer.Indexer
	engine       *search.Engine
	orchestrator *orchestrator.Service
	logFile      *os.File
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(config.ResolvePath(opts.configPath))
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	var output io.Writer = os.Stderr
	var logFile *os.File
	if cfg.Log.File != "" {
		logFile, err = os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, apperrors.ConfigError("open log file "+cfg.Log.File, err)
		}
		output = io.MultiWriter(os.Stderr, logFile)
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: output})

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	text := textprocessor.NewTextProcessor(morph.NewCached(morph.NewSnowball(), morph.DefaultCacheSize))
	ix := indexer.New(store, text, logger)

	f := fetcher.New(fetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		Timeout:       cfg.Crawler.RequestTimeout,
		RespectRobots: cfg.Crawler.RespectRobots,
	})
	var renderer fetcher.Renderer
	if cfg.Crawler.BrowserFallback {
		renderer = fetcher.NewBrowserFetcher(cfg.Crawler.UserAgent, cfg.Crawler.RequestTimeout)
	}
	c := crawler.New(f, renderer, ix, m, logger)

	engine := search.New(store, text, search.Config{
		FrequencyThreshold: cfg.Search.FrequencyThreshold,
		SnippetWindow:      cfg.Search.SnippetWindow,
		DefaultLimit:       cfg.Search.DefaultLimit,
	}, m, logger)

	logger.Debug().
		Str("database", cfg.Database.Path).
		Int("sites", len(cfg.Sites)).
		Bool("browser_fallback", renderer != nil).
		Msg("Components ready")

	return &app{
		config:       cfg,
		logger:       logger,
		registry:     registry,
		store:        store,
		indexer:      ix,
		engine:       engine,
		orchestrator: orchestrator.New(cfg, store, ix, c, m, logger),
		logFile:      logFile,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close database")
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
