package fetcher

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
)

// Renderer returns the HTML of a page after its scripts ran.
type Renderer interface {
	FetchHTML(ctx context.Context, urlStr string) (string, error)
}

// MaxRenders is the number of headless browsers a BrowserFetcher runs at once.
const MaxRenders = 2

// BrowserFetcher renders pages in headless Chrome, one browser per page.
type BrowserFetcher struct {
	userAgent string
	timeout   time.Duration
	settle    time.Duration
	slots     chan struct{}
}

func NewBrowserFetcher(userAgent string, timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{
		userAgent: userAgent,
		timeout:   timeout,
		settle:    2 * time.Second,
		slots:     make(chan struct{}, MaxRenders),
	}
}

func (bf *BrowserFetcher) FetchHTML(ctx context.Context, urlStr string) (string, error) {
	select {
	case bf.slots <- struct{}{}:
		defer func() { <-bf.slots }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, bf.timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(bf.userAgent),
		chromedp.Flag("disable-downloads", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	var rendered string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(bf.settle),
		chromedp.OuterHTML("html", &rendered, chromedp.ByQuery),
	); err != nil {
		return "", apperrors.FetchError(urlStr, err)
	}
	return rendered, nil
}
