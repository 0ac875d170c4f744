package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deidaraiorek/sitesearch/internal/crawler"
	"github.com/deidaraiorek/sitesearch/internal/fetcher"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

type memorySink struct {
	mu    sync.Mutex
	pages map[string]*storage.Page
}

func newSink() *memorySink {
	return &memorySink{pages: make(map[string]*storage.Page)}
}

func (s *memorySink) AddPage(_ context.Context, page *storage.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[page.Path]; ok {
		return fmt.Errorf("duplicate page %s", page.Path)
	}
	s.pages[page.Path] = page
	return nil
}

func (s *memorySink) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.pages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// site serves HTML pages and counts requests per path.
type site struct {
	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
	delay time.Duration
	srv   *httptest.Server
}

func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()
	s := &site{hits: make(map[string]int), pages: pages}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/robots.txt" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	s.hits[r.URL.Path]++
	body, ok := s.pages[r.URL.Path]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(body))
}

func (s *site) hitsFor(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func html(title string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><p>" + title + " page</p>")
	for _, l := range links {
		b.WriteString(`<a href="` + l + `">link</a>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newCrawler(sink crawler.PageSink, renderer fetcher.Renderer) *crawler.Crawler {
	f := fetcher.New(fetcher.Config{UserAgent: "TestBot/1.0", RespectRobots: true, Timeout: 5 * time.Second})
	return crawler.New(f, renderer, sink, nil, zerolog.Nop())
}

func siteRow(url string) *storage.Site {
	return &storage.Site{ID: 1, URL: url, Name: "Test", Status: storage.StatusIndexing}
}

func TestCrawl_SharedLinkVisitedOnce(t *testing.T) {
	s := newSite(t, map[string]string{
		"/":  html("root", "/a", "/b"),
		"/a": html("a", "/b", "/"),
		"/b": html("b", "/a"),
	})
	sink := newSink()

	res, err := newCrawler(sink, nil).Crawl(context.Background(), siteRow(s.srv.URL), "", crawler.Options{Workers: 4, Follow: true})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, []string{"/", "/a", "/b"}, sink.paths())
	assert.Equal(t, 1, s.hitsFor("/b"))
	assert.Equal(t, 1, s.hitsFor("/a"))
	assert.Equal(t, 1, s.hitsFor("/"))
	assert.NoError(t, res.RootErr)
}

func TestCrawl_ErrorStatusStoredButNotFollowed(t *testing.T) {
	s := newSite(t, map[string]string{
		"/":   html("root", "/missing", "/ok"),
		"/ok": html("ok"),
	})
	sink := newSink()

	res, err := newCrawler(sink, nil).Crawl(context.Background(), siteRow(s.srv.URL), "", crawler.Options{Workers: 2, Follow: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 1, res.BadStatus)
	require.Contains(t, sink.pages, "/missing")
	assert.Equal(t, http.StatusNotFound, sink.pages["/missing"].Code)
	assert.Empty(t, sink.pages["/missing"].Content)
}

func TestCrawl_SingleURLWithoutFollow(t *testing.T) {
	s := newSite(t, map[string]string{
		"/":  html("root", "/a"),
		"/a": html("a", "/b"),
		"/b": html("b"),
	})
	sink := newSink()

	res, err := newCrawler(sink, nil).Crawl(context.Background(), siteRow(s.srv.URL), s.srv.URL+"/a", crawler.Options{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, []string{"/a"}, sink.paths())
	assert.Zero(t, s.hitsFor("/b"))
	assert.Contains(t, sink.pages["/a"].Content, "<title>a</title>")
}

func TestCrawl_Limits(t *testing.T) {
	s := newSite(t, map[string]string{
		"/":    html("root", "/1", "/2", "/3"),
		"/1":   html("1", "/1/x"),
		"/2":   html("2"),
		"/3":   html("3"),
		"/1/x": html("x"),
	})

	t.Run("max depth", func(t *testing.T) {
		sink := newSink()
		_, err := newCrawler(sink, nil).Crawl(context.Background(), siteRow(s.srv.URL), "", crawler.Options{Workers: 2, Follow: true, MaxDepth: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"/", "/1", "/2", "/3"}, sink.paths())
	})

	t.Run("max pages", func(t *testing.T) {
		sink := newSink()
		res, err := newCrawler(sink, nil).Crawl(context.Background(), siteRow(s.srv.URL), "", crawler.Options{Workers: 2, Follow: true, MaxPages: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Indexed)
		assert.Len(t, sink.paths(), 2)
	})
}

func TestCrawl_RootUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	res, err := newCrawler(newSink(), nil).Crawl(context.Background(), siteRow(addr), "", crawler.Options{Workers: 1, Follow: true})
	require.NoError(t, err)
	assert.Error(t, res.RootErr)
	assert.Equal(t, 1, res.Failed)
}

func TestCrawl_RateLimit(t *testing.T) {
	s := newSite(t, map[string]string{
		"/":  html("root", "/a", "/b"),
		"/a": html("a"),
		"/b": html("b"),
	})

	started := time.Now()
	_, err := newCrawler(newSink(), nil).Crawl(context.Background(), siteRow(s.srv.URL), "",
		crawler.Options{Workers: 3, Follow: true, Delay: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 100*time.Millisecond)
}

func TestCrawl_CancelStopsSpawning(t *testing.T) {
	links := make([]string, 0, 30)
	pages := map[string]string{}
	for i := 0; i < 30; i++ {
		p := fmt.Sprintf("/p%d", i)
		links = append(links, p)
		pages[p] = html(p)
	}
	pages["/"] = html("root", links...)

	s := newSite(t, pages)
	s.mu.Lock()
	s.delay = 50 * time.Millisecond
	s.mu.Unlock()
	sink := newSink()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(120*time.Millisecond, cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		newCrawler(sink, nil).Crawl(ctx, siteRow(s.srv.URL), "", crawler.Options{Workers: 2, Follow: true})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not stop after cancel")
	}
	assert.Less(t, len(sink.paths()), 31)
	assert.Contains(t, sink.pages, "/")
}

type staticRenderer struct{ html string }

func (r staticRenderer) FetchHTML(context.Context, string) (string, error) {
	return r.html, nil
}

func TestCrawl_BrowserFallback(t *testing.T) {
	s := newSite(t, map[string]string{
		"/":         `<html><head><title>app</title></head><body><div id="app"></div><script>render()</script></body></html>`,
		"/rendered": html("rendered"),
	})
	rendered := `<html><head><title>app</title></head><body><p>` + strings.Repeat("rendered words ", 20) +
		`</p><a href="/rendered">next</a></body></html>`
	sink := newSink()

	res, err := newCrawler(sink, staticRenderer{html: rendered}).Crawl(context.Background(), siteRow(s.srv.URL), "",
		crawler.Options{Workers: 1, Follow: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Indexed)
	assert.Contains(t, sink.pages["/"].Content, "rendered words")
	assert.Contains(t, sink.pages, "/rendered")
}
