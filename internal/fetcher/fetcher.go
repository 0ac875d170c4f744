package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
)

// DefaultMaxBodySize caps how much of a page body is read.
const DefaultMaxBodySize = 10 * 1024 * 1024

type Config struct {
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
	MaxBodySize   int64
}

// Response is a fetched page. Body is only read for 2xx HTML responses.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        string
	// HTML is false when the server declared a non-HTML content type.
	HTML bool
	// Truncated is set when the body exceeded the size cap.
	Truncated bool
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Fetcher struct {
	config      Config
	client      *http.Client
	robotsCache map[string]*robotstxt.RobotsData
	robotsMu    sync.RWMutex
}

func New(config Config) *Fetcher {
	if config.UserAgent == "" {
		config.UserAgent = "SiteSearchBot/1.0"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}

	return &Fetcher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		robotsCache: make(map[string]*robotstxt.RobotsData),
	}
}

// Fetch downloads urlStr. Transport failures and robots.txt refusals are
// returned as coded network errors; HTTP error statuses are not errors.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Response, error) {
	if f.config.RespectRobots && !f.IsAllowed(ctx, urlStr) {
		return nil, apperrors.New(apperrors.ErrCodeDisallowed, "disallowed by robots.txt", nil).
			WithDetail("url", urlStr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, apperrors.FetchError(urlStr, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.FetchError(urlStr, err)
	}
	defer resp.Body.Close()

	out := &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	out.HTML = out.ContentType == "" || isHTMLContentType(out.ContentType)

	if !out.OK() || !out.HTML {
		return out, nil
	}
	if resp.ContentLength > f.config.MaxBodySize {
		out.Truncated = true
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return nil, apperrors.FetchError(urlStr, fmt.Errorf("failed to read body: %w", err))
	}
	if int64(len(body)) > f.config.MaxBodySize {
		out.Truncated = true
		body = body[:f.config.MaxBodySize]
	}
	out.Body = string(body)
	return out, nil
}

// IsAllowed checks urlStr against the host's robots.txt. Hosts without a
// readable robots.txt allow everything.
func (f *Fetcher) IsAllowed(ctx context.Context, urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	f.robotsMu.RLock()
	robots, exists := f.robotsCache[robotsURL]
	f.robotsMu.RUnlock()

	if !exists {
		robots = f.fetchRobotsTxt(ctx, robotsURL)
		f.robotsMu.Lock()
		f.robotsCache[robotsURL] = robots
		f.robotsMu.Unlock()
	}

	if robots == nil {
		return true
	}

	group := robots.FindGroup(f.config.UserAgent)
	return group.Test(u.Path)
}

func (f *Fetcher) fetchRobotsTxt(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}

	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return robots
}

func isHTMLContentType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	for _, htmlType := range []string{"text/html", "application/xhtml+xml", "application/xhtml"} {
		if strings.HasPrefix(contentType, htmlType) {
			return true
		}
	}
	return false
}
