// Package fetch retrieves source documents over plain HTTP or through a
// headless browser for pages that build their listings client-side.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/shalom-dev-bot/astremina/internal/scrape/util"
)

// BrowserUserAgent is sent to sites that refuse obvious bots.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var ErrUnparseable = errors.New("unparseable document body")

type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

type Page struct {
	URL  string
	Body []byte
	MIME string
}

type Options struct {
	UserAgent string
	Accept    string
}

type Getter interface {
	Get(ctx context.Context, rawURL string, opts Options) (Page, error)
}

type Fetcher struct {
	cfg Config
	hc  *http.Client
	lim *util.HostLimiter
}

func New(cfg Config, lim *util.HostLimiter) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	return &Fetcher{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout},
		lim: lim,
	}
}

func (f *Fetcher) Get(ctx context.Context, rawURL string, opts Options) (Page, error) {
	if err := f.lim.WaitURL(ctx, rawURL); err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = f.cfg.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8")
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}

	resp, err := f.hc.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Page{}, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return Page{}, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return Page{}, fmt.Errorf("read %s: body exceeds %d bytes", rawURL, f.cfg.MaxBodyBytes)
	}

	page := Page{URL: rawURL, Body: body, MIME: mimetype.Detect(body).String()}
	if !Textual(page.MIME) {
		return Page{}, fmt.Errorf("%w: %s served %s", ErrUnparseable, rawURL, page.MIME)
	}
	return page, nil
}

// Textual reports whether a sniffed MIME type is something the adapters can parse.
func Textual(mime string) bool {
	base, _, _ := strings.Cut(mime, ";")
	base = strings.TrimSpace(base)
	if strings.HasPrefix(base, "text/") {
		return true
	}
	switch base {
	case "application/json", "application/xml", "application/xhtml+xml",
		"application/rss+xml", "application/atom+xml", "application/ld+json":
		return true
	}
	return false
}
