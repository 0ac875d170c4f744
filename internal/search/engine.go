// Package search answers full-text queries over the lemma index.
//
// A query is normalized into lemmas, lemmas that are unknown or too common
// are dropped, and the candidate pages are the intersection of the
// remaining lemmas' postings, built rarest lemma first. Candidates are
// ranked by the share of their tokens that match the query, relative to the
// best candidate.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
	"github.com/deidaraiorek/sitesearch/internal/logging"
	"github.com/deidaraiorek/sitesearch/internal/metrics"
	"github.com/deidaraiorek/sitesearch/internal/parser"
	"github.com/deidaraiorek/sitesearch/internal/storage"
	"github.com/deidaraiorek/sitesearch/internal/textprocessor"
)

const (
	DefaultFrequencyThreshold = 100
	DefaultSnippetWindow      = 5
	DefaultLimit              = 20
)

type Config struct {
	// FrequencyThreshold drops lemmas found on more pages than this.
	FrequencyThreshold int
	// SnippetWindow is the number of tokens shown on each side of the hit,
	// the hit included.
	SnippetWindow int
	DefaultLimit  int
}

type Query struct {
	Text string
	// Site restricts results to one site URL when set.
	Site   string
	Offset int
	Limit  int
}

type Result struct {
	Site      string  `json:"site"`
	SiteName  string  `json:"siteName"`
	URI       string  `json:"uri"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// Response is a ranked page of results. Count is the number of matching
// pages before pagination.
type Response struct {
	Count   int      `json:"count"`
	Results []Result `json:"data"`
}

type Engine struct {
	store   *storage.Store
	text    *textprocessor.TextProcessor
	config  Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func New(store *storage.Store, text *textprocessor.TextProcessor, config Config, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	if config.FrequencyThreshold <= 0 {
		config.FrequencyThreshold = DefaultFrequencyThreshold
	}
	if config.SnippetWindow <= 0 {
		config.SnippetWindow = DefaultSnippetWindow
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultLimit
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Engine{
		store:   store,
		text:    text,
		config:  config,
		metrics: m,
		logger:  logging.Component(logger, "search"),
	}
}

type candidate struct {
	page     *storage.Page
	tokens   []string
	lemmas   []string
	absolute float64
	relative float64
}

func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	started := time.Now()
	resp, err := e.search(ctx, q)
	e.metrics.SearchDuration.Observe(time.Since(started).Seconds())

	outcome := "ok"
	switch {
	case apperrors.IsCategory(err, apperrors.CategoryValidation):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	case resp.Count == 0:
		outcome = "empty"
	}
	e.metrics.SearchRequests.WithLabelValues(outcome).Inc()

	if err != nil {
		return nil, err
	}
	e.logger.Debug().Str("query", q.Text).Int("count", resp.Count).Dur("took", time.Since(started)).Msg("Search")
	return resp, nil
}

func (e *Engine) search(ctx context.Context, q Query) (*Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, apperrors.ValidationError(apperrors.ErrCodeQueryEmpty, "query is empty")
	}

	ordered := distinct(e.text.Normalize(q.Text))
	if len(ordered) == 0 {
		return nil, apperrors.ValidationError(apperrors.ErrCodeQueryTooCommon, "query has no searchable words")
	}

	lemmas, tooCommon, err := e.lookup(ctx, ordered)
	if err != nil {
		return nil, err
	}
	if len(lemmas) == 0 {
		if tooCommon {
			return nil, apperrors.ValidationError(apperrors.ErrCodeQueryTooCommon, "query words are too common")
		}
		return &Response{}, nil
	}

	var siteID int64
	if q.Site != "" {
		site, err := e.findSite(ctx, q.Site)
		if err != nil {
			return nil, err
		}
		if site == nil {
			return &Response{}, nil
		}
		siteID = site.ID
	}

	pageIDs, err := e.intersect(ctx, lemmas)
	if err != nil {
		return nil, err
	}
	if len(pageIDs) == 0 {
		return &Response{}, nil
	}

	pages, err := e.store.FindPagesByIDs(ctx, pageIDs)
	if err != nil {
		return nil, apperrors.StorageError("failed to load candidate pages", err)
	}

	surviving := make(map[string]bool, len(lemmas))
	for _, l := range lemmas {
		surviving[l.Form] = true
	}

	var candidates []*candidate
	for _, id := range pageIDs {
		page, ok := pages[id]
		if !ok || (siteID != 0 && page.SiteID != siteID) {
			continue
		}
		candidates = append(candidates, e.score(page, surviving))
	}
	if len(candidates) == 0 {
		return &Response{}, nil
	}

	rank(candidates)

	resp := &Response{Count: len(candidates)}
	window := paginate(candidates, q.Offset, e.limit(q.Limit))
	if len(window) == 0 {
		return resp, nil
	}

	sites, err := e.sitesByID(ctx)
	if err != nil {
		return nil, err
	}

	query := make(map[string]bool, len(ordered))
	for _, l := range ordered {
		query[l] = true
	}

	resp.Results = make([]Result, 0, len(window))
	for _, c := range window {
		r := Result{
			URI:       c.page.Path,
			Title:     parser.Title(c.page.Content),
			Snippet:   Snippet(c.tokens, c.lemmas, ordered[0], query, e.config.SnippetWindow),
			Relevance: c.relative,
		}
		if site, ok := sites[c.page.SiteID]; ok {
			r.Site = site.URL
			r.SiteName = site.Name
		}
		resp.Results = append(resp.Results, r)
	}
	return resp, nil
}

func (e *Engine) limit(limit int) int {
	if limit <= 0 {
		return e.config.DefaultLimit
	}
	return limit
}

// lookup resolves query lemmas to corpus lemmas, dropping unknown lemmas and
// lemmas above the frequency threshold, and sorts the rest rarest first.
func (e *Engine) lookup(ctx context.Context, forms []string) ([]*storage.Lemma, bool, error) {
	var lemmas []*storage.Lemma
	tooCommon := false
	for _, form := range forms {
		lemma, err := e.store.FindLemmaByForm(ctx, form)
		if err != nil {
			return nil, false, apperrors.StorageError("failed to look up lemma", err)
		}
		if lemma == nil {
			continue
		}
		if lemma.Frequency > e.config.FrequencyThreshold {
			tooCommon = true
			continue
		}
		lemmas = append(lemmas, lemma)
	}

	sort.SliceStable(lemmas, func(i, j int) bool {
		return lemmas[i].Frequency < lemmas[j].Frequency
	})
	return lemmas, tooCommon, nil
}

// intersect returns the pages holding every lemma, in posting order of the
// rarest lemma.
func (e *Engine) intersect(ctx context.Context, lemmas []*storage.Lemma) ([]int64, error) {
	var pageIDs []int64
	for i, lemma := range lemmas {
		postings, err := e.store.FindPostingsByLemma(ctx, lemma.ID)
		if err != nil {
			return nil, apperrors.StorageError("failed to load postings", err)
		}
		if len(postings) == 0 {
			return nil, nil
		}

		if i == 0 {
			pageIDs = make([]int64, 0, len(postings))
			for _, p := range postings {
				pageIDs = append(pageIDs, p.PageID)
			}
			continue
		}

		has := make(map[int64]bool, len(postings))
		for _, p := range postings {
			has[p.PageID] = true
		}
		kept := pageIDs[:0]
		for _, id := range pageIDs {
			if has[id] {
				kept = append(kept, id)
			}
		}
		pageIDs = kept
		if len(pageIDs) == 0 {
			return nil, nil
		}
	}
	return pageIDs, nil
}

// score re-scans the page tokens and sums, per query lemma, its share of
// all tokens.
func (e *Engine) score(page *storage.Page, query map[string]bool) *candidate {
	tokens := e.text.Tokens(page.Content)
	c := &candidate{page: page, tokens: tokens, lemmas: make([]string, len(tokens))}
	if len(tokens) == 0 {
		return c
	}

	hits := 0
	for i, token := range tokens {
		l := e.text.LemmaOf(token)
		if !l.OK() {
			continue
		}
		c.lemmas[i] = l.Form
		if query[l.Form] {
			hits++
		}
	}
	c.absolute = float64(hits) / float64(len(tokens))
	return c
}

// rank normalizes by the best absolute relevance and orders candidates by
// it, keeping candidate order among equals.
func rank(candidates []*candidate) {
	best := 0.0
	for _, c := range candidates {
		if c.absolute > best {
			best = c.absolute
		}
	}
	for _, c := range candidates {
		if best > 0 {
			c.relative = c.absolute / best
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].relative > candidates[j].relative
	})
}

func paginate(candidates []*candidate, offset, limit int) []*candidate {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(candidates) {
		return nil
	}
	end := offset + limit
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[offset:end]
}

func (e *Engine) findSite(ctx context.Context, raw string) (*storage.Site, error) {
	u, err := parser.ParseURL(raw)
	if err != nil {
		return nil, apperrors.ValidationError(apperrors.ErrCodeInvalidURL, "invalid site filter").WithDetail("site", raw)
	}
	site, err := e.store.FindSiteByURL(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return nil, apperrors.StorageError("failed to look up site", err)
	}
	return site, nil
}

func (e *Engine) sitesByID(ctx context.Context) (map[int64]*storage.Site, error) {
	sites, err := e.store.ListSites(ctx)
	if err != nil {
		return nil, apperrors.StorageError("failed to list sites", err)
	}
	out := make(map[int64]*storage.Site, len(sites))
	for _, s := range sites {
		out[s.ID] = s
	}
	return out, nil
}

func distinct(forms []string) []string {
	seen := make(map[string]bool, len(forms))
	out := forms[:0]
	for _, f := range forms {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
