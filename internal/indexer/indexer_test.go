package indexer_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
	"github.com/deidaraiorek/sitesearch/internal/indexer"
	"github.com/deidaraiorek/sitesearch/internal/morph"
	"github.com/deidaraiorek/sitesearch/internal/storage"
	"github.com/deidaraiorek/sitesearch/internal/textprocessor"
)

type fixture struct {
	store *storage.Store
	text  *textprocessor.TextProcessor
	ix    *indexer.Indexer
	site  *storage.Site
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	site := &storage.Site{URL: "https://example.com", Name: "Example", Status: storage.StatusIndexing}
	require.NoError(t, store.CreateSite(context.Background(), site))

	text := textprocessor.NewTextProcessor(morph.NewCached(morph.NewSnowball(), 0))
	return &fixture{
		store: store,
		text:  text,
		ix:    indexer.New(store, text, zerolog.Nop()),
		site:  site,
	}
}

func (f *fixture) add(t *testing.T, path, content string) *storage.Page {
	t.Helper()
	page := &storage.Page{SiteID: f.site.ID, Path: path, Code: 200, Content: content}
	require.NoError(t, f.ix.AddPage(context.Background(), page))
	return page
}

// snapshot maps lemma form to rank for a page.
func (f *fixture) snapshot(t *testing.T, pageID int64) map[string]float64 {
	t.Helper()
	ctx := context.Background()
	postings, err := f.store.FindPostingsByPage(ctx, pageID)
	require.NoError(t, err)

	out := make(map[string]float64, len(postings))
	for _, p := range postings {
		lemma, err := f.store.FindLemmaByID(ctx, p.LemmaID)
		require.NoError(t, err)
		require.NotNil(t, lemma)
		out[lemma.Form] = p.Rank
	}
	return out
}

func (f *fixture) frequency(t *testing.T, form string) int {
	t.Helper()
	lemma, err := f.store.FindLemmaByForm(context.Background(), form)
	require.NoError(t, err)
	if lemma == nil {
		return 0
	}
	return lemma.Frequency
}

func TestAddPage_CountsDocumentsNotOccurrences(t *testing.T) {
	f := setup(t)

	p1 := f.add(t, "/1", "<p>fox fox fox dog</p>")
	f.add(t, "/2", "<p>fox cat</p>")

	assert.Equal(t, 2, f.frequency(t, "fox"))
	assert.Equal(t, 1, f.frequency(t, "dog"))
	assert.Equal(t, 1, f.frequency(t, "cat"))
	assert.Equal(t, map[string]float64{"fox": 3, "dog": 1}, f.snapshot(t, p1.ID))
	require.NoError(t, f.ix.Verify(context.Background()))
}

func TestAddPage_BadStatusNotIndexed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	page := &storage.Page{SiteID: f.site.ID, Path: "/missing", Code: 404, Content: "not found fox"}
	require.NoError(t, f.ix.AddPage(ctx, page))

	stored, err := f.store.FindPageByPath(ctx, f.site.ID, "/missing")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 404, stored.Code)
	assert.Empty(t, f.snapshot(t, page.ID))
	assert.Zero(t, f.frequency(t, "fox"))
}

func TestIndexPage_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	content := "quick brown fox jumps over the lazy dog fox"
	page := f.add(t, "/", content)
	other := f.add(t, "/other", "fox")
	before := f.snapshot(t, page.ID)

	counts := f.text.CountLemmas(content)
	require.NoError(t, f.ix.IndexPage(ctx, page, counts))
	require.NoError(t, f.ix.IndexPage(ctx, page, counts))

	assert.Equal(t, before, f.snapshot(t, page.ID))
	assert.Equal(t, map[string]float64{"fox": 1}, f.snapshot(t, other.ID))
	assert.Equal(t, 2, f.frequency(t, "fox"))
	assert.Equal(t, 1, f.frequency(t, "dog"))
	require.NoError(t, f.ix.Verify(ctx))
}

func TestIndexPage_ChangedContentReplacesPostings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	page := f.add(t, "/", "alpha beta beta")
	require.NoError(t, f.ix.IndexPage(ctx, page, map[string]int{"beta": 1, "gamma": 4}))

	assert.Equal(t, map[string]float64{"beta": 1, "gamma": 4}, f.snapshot(t, page.ID))
	assert.Zero(t, f.frequency(t, "alpha"))
	assert.Equal(t, 1, f.frequency(t, "gamma"))
	require.NoError(t, f.ix.Verify(ctx))
}

func TestDeindexPage_RoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	content := "<title>Лошади</title><p>лошади бегут в поле, fox 42</p>"
	shared := f.add(t, "/shared", "fox")
	page := f.add(t, "/", content)
	original := f.snapshot(t, page.ID)
	require.NotEmpty(t, original)

	require.NoError(t, f.ix.DeindexPage(ctx, page))
	gone, err := f.store.FindPageByPath(ctx, f.site.ID, "/")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Equal(t, 1, f.frequency(t, "fox"))
	assert.Zero(t, f.frequency(t, "42"))
	require.NoError(t, f.ix.Verify(ctx))

	again := f.add(t, "/", content)
	assert.Equal(t, original, f.snapshot(t, again.ID))
	assert.Equal(t, map[string]float64{"fox": 1}, f.snapshot(t, shared.ID))
	assert.Equal(t, 2, f.frequency(t, "fox"))
	require.NoError(t, f.ix.Verify(ctx))
}

func TestDeindexPage_NoPostings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	page := &storage.Page{SiteID: f.site.ID, Path: "/empty", Code: 500}
	require.NoError(t, f.ix.AddPage(ctx, page))
	require.NoError(t, f.ix.DeindexPage(ctx, page))

	count, err := f.store.CountPages(ctx, f.site.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConcurrentIndexingKeepsFrequencies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const pages = 16
	var wg sync.WaitGroup
	errs := make(chan error, pages)
	for i := 0; i < pages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page := &storage.Page{
				SiteID:  f.site.ID,
				Path:    fmt.Sprintf("/p%d", i),
				Code:    200,
				Content: fmt.Sprintf("shared common words group%c", 'a'+i%4),
			}
			errs <- f.ix.AddPage(ctx, page)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, pages, f.frequency(t, "shared"))
	assert.Equal(t, pages/4, f.frequency(t, "groupa"))
	require.NoError(t, f.ix.Verify(ctx))
}

func TestDeindexSite(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	other := &storage.Site{URL: "https://other.com", Name: "Other", Status: storage.StatusIndexed}
	require.NoError(t, f.store.CreateSite(ctx, other))
	otherPage := &storage.Page{SiteID: other.ID, Path: "/", Code: 200, Content: "fox wolf"}
	require.NoError(t, f.ix.AddPage(ctx, otherPage))

	f.add(t, "/", "fox dog")
	f.add(t, "/a", "fox dog cat")

	existed, err := f.ix.DeindexSite(ctx, "https://example.com")
	require.NoError(t, err)
	assert.True(t, existed)

	assert.Equal(t, 1, f.frequency(t, "fox"))
	assert.Equal(t, 1, f.frequency(t, "wolf"))
	assert.Zero(t, f.frequency(t, "dog"))
	assert.Zero(t, f.frequency(t, "cat"))
	require.NoError(t, f.ix.Verify(ctx))

	site, err := f.store.FindSiteByURL(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Nil(t, site)

	existed, err = f.ix.DeindexSite(ctx, "https://example.com")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestVerifyDetectsDrift(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.add(t, "/", "fox")
	lemma, err := f.store.FindLemmaByForm(ctx, "fox")
	require.NoError(t, err)
	require.NoError(t, f.store.AddLemmaFrequency(ctx, lemma.ID, 2))

	err = f.ix.Verify(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCorpusInconsistent, apperrors.GetCode(err))
}
