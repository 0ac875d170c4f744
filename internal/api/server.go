// Package api exposes indexing control, statistics and search over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
	"github.com/deidaraiorek/sitesearch/internal/logging"
	"github.com/deidaraiorek/sitesearch/internal/orchestrator"
	"github.com/deidaraiorek/sitesearch/internal/search"
)

type Server struct {
	orchestrator *orchestrator.Service
	engine       *search.Engine
	gatherer     prometheus.Gatherer
	logger       zerolog.Logger
	router       chi.Router
}

// NewServer builds the router. gatherer serves /metrics; nil uses the
// default prometheus registry.
func NewServer(orch *orchestrator.Service, engine *search.Engine, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		orchestrator: orch,
		engine:       engine,
		gatherer:     gatherer,
		logger:       logging.Component(logger, "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/startIndexing", s.startIndexing)
		r.Get("/stopIndexing", s.stopIndexing)
		r.Post("/indexPage", s.indexPage)
		r.Get("/statistics", s.statistics)
		r.Get("/search", s.search)
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(started)).
			Msg("Request")
	})
}

type response struct {
	Result bool   `json:"result"`
	Error  string `json:"error,omitempty"`
}

type searchResponse struct {
	Result bool            `json:"result"`
	Count  int             `json:"count"`
	Data   []search.Result `json:"data"`
}

type statisticsResponse struct {
	Result     bool                     `json:"result"`
	Statistics *orchestrator.Statistics `json:"statistics"`
}

func (s *Server) startIndexing(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.StartAll(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Result: true})
}

func (s *Server) stopIndexing(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.StopAll(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Result: true})
}

func (s *Server) indexPage(w http.ResponseWriter, r *http.Request) {
	url := r.FormValue("url")
	if url == "" {
		s.writeError(w, r, apperrors.ValidationError(apperrors.ErrCodeInvalidInput, "url is required"))
		return
	}
	if err := s.orchestrator.ReindexPage(r.Context(), url); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Result: true})
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orchestrator.Statistics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statisticsResponse{Result: true, Statistics: stats})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	offset, err := intParam(params.Get("offset"))
	if err != nil {
		s.writeError(w, r, apperrors.ValidationError(apperrors.ErrCodeInvalidInput, "offset must be a non-negative integer"))
		return
	}
	limit, err := intParam(params.Get("limit"))
	if err != nil {
		s.writeError(w, r, apperrors.ValidationError(apperrors.ErrCodeInvalidInput, "limit must be a non-negative integer"))
		return
	}

	resp, err := s.engine.Search(r.Context(), search.Query{
		Text:   params.Get("query"),
		Site:   params.Get("site"),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := resp.Results
	if data == nil {
		data = []search.Result{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Result: true, Count: resp.Count, Data: data})
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsCategory(err, apperrors.CategoryValidation):
		status = http.StatusBadRequest
	case apperrors.IsCategory(err, apperrors.CategoryConflict):
		status = http.StatusConflict
	case apperrors.IsCategory(err, apperrors.CategoryNetwork):
		status = http.StatusBadGateway
	}

	message := apperrors.Message(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		message = "internal error"
	}
	writeJSON(w, status, response{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
