package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Browser renders pages in headless Chrome and returns the resulting DOM, so
// script-injected markup is captured too.
type Browser struct {
	// Settle is how long to wait after the body is ready for late scripts.
	Settle time.Duration
	opts   []chromedp.ExecAllocatorOption
}

// NewBrowser creates a Browser fetcher. Each Fetch starts its own browser
// process so targets never share cookies or storage.
func NewBrowser(settle time.Duration) *Browser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	return &Browser{Settle: settle, opts: opts}
}

// Fetch navigates to url and returns the outer HTML of the document.
func (b *Browser) Fetch(ctx context.Context, url string) (string, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	if len(html) > MaxBodySize {
		return "", ErrTooLarge
	}
	return html, nil
}
