package fetcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
	"github.com/deidaraiorek/sitesearch/internal/fetcher"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>ua=" + r.UserAgent() + "</body></html>"))
	})
	mux.HandleFunc("/private/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secret"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"a":1}`))
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(strings.Repeat("x", 64)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_HTML(t *testing.T) {
	srv := newServer(t)
	f := fetcher.New(fetcher.Config{UserAgent: "TestBot/1.0", RespectRobots: true})

	resp, err := f.Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.True(t, resp.HTML)
	assert.Contains(t, resp.Body, "ua=TestBot/1.0")
}

func TestFetch_RobotsDisallowed(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	f := fetcher.New(fetcher.Config{RespectRobots: true})
	_, err := f.Fetch(ctx, srv.URL+"/private/page")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDisallowed, apperrors.GetCode(err))
	assert.False(t, apperrors.IsRetryable(err))

	ignoring := fetcher.New(fetcher.Config{RespectRobots: false})
	resp, err := ignoring.Fetch(ctx, srv.URL+"/private/page")
	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestFetch_ErrorStatusIsNotAnError(t *testing.T) {
	srv := newServer(t)
	f := fetcher.New(fetcher.Config{})

	resp, err := f.Fetch(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, resp.OK())
	assert.Empty(t, resp.Body)
}

func TestFetch_NonHTML(t *testing.T) {
	srv := newServer(t)
	f := fetcher.New(fetcher.Config{})

	resp, err := f.Fetch(context.Background(), srv.URL+"/data.json")
	require.NoError(t, err)
	assert.False(t, resp.HTML)
	assert.Empty(t, resp.Body)
}

func TestFetch_Oversized(t *testing.T) {
	srv := newServer(t)
	f := fetcher.New(fetcher.Config{MaxBodySize: 16})

	resp, err := f.Fetch(context.Background(), srv.URL+"/big")
	require.NoError(t, err)
	assert.True(t, resp.Truncated)
}

func TestFetch_TransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := fetcher.New(fetcher.Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), addr+"/")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeFetchFailed, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}
