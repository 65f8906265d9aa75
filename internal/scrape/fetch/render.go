package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/shalom-dev-bot/astremina/internal/scrape/util"
)

// Renderer loads a page in headless Chrome and returns the settled DOM.
type Renderer struct {
	Timeout   time.Duration
	UserAgent string
	// ExecPath overrides the browser binary; empty uses chromedp's lookup.
	ExecPath string
	// Limiter is shared with the plain Fetcher so both paths respect
	// the same per-host rate.
	Limiter *util.HostLimiter
}

func (r *Renderer) Get(ctx context.Context, rawURL string, opts Options) (Page, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = r.UserAgent
	}
	if ua == "" {
		ua = BrowserUserAgent
	}
	if err := r.Limiter.WaitURL(ctx, rawURL); err != nil {
		return Page{}, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(ua),
	)
	if r.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))
	defer cancelTask()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, fmt.Errorf("render %s: %w", rawURL, err)
	}
	return Page{URL: rawURL, Body: []byte(html), MIME: "text/html; charset=utf-8"}, nil
}
