// Package html extracts listing cards from HTML pages with CSS selectors.
package html

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/scrape/fetch"
	"github.com/shalom-dev-bot/astremina/internal/scrape/types"
	"github.com/shalom-dev-bot/astremina/internal/scrape/util"
)

// Scraper pulls one source's endpoint and applies its selector map.
type Scraper struct {
	src  domain.Source
	cfg  domain.ExtractionConfig
	get  fetch.Getter
	opts fetch.Options
}

// New expects cfg to already carry the family defaults.
func New(src domain.Source, cfg domain.ExtractionConfig, get fetch.Getter) *Scraper {
	opts := fetch.Options{Accept: "text/html,application/xhtml+xml"}
	switch ua := cfg["user_agent"]; ua {
	case "":
	case "browser":
		opts.UserAgent = fetch.BrowserUserAgent
	default:
		opts.UserAgent = ua
	}
	return &Scraper{src: src, cfg: cfg, get: get, opts: opts}
}

func (s *Scraper) Name() string { return fmt.Sprintf("html:%s:%s", s.src.Family, s.src.Name) }

func (s *Scraper) Fetch(ctx context.Context) (types.ScrapeResult, error) {
	page, err := s.get.Get(ctx, s.src.Endpoint, s.opts)
	if err != nil {
		return types.ScrapeResult{}, err
	}
	recs, err := Parse(page.Body, s.src.Endpoint, s.cfg)
	if err != nil {
		return types.ScrapeResult{}, err
	}
	return types.ScrapeResult{Source: s.Name(), Records: recs}, nil
}

// Parse turns every card in body into a RawListing. Selectors that match
// nothing leave the field empty; only a missing card selector is an error.
func Parse(body []byte, base string, cfg domain.ExtractionConfig) ([]domain.RawListing, error) {
	card := strings.TrimSpace(cfg["card"])
	if card == "" {
		return nil, fmt.Errorf("extraction config has no card selector")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrUnparseable, err)
	}

	var out []domain.RawListing
	doc.Find(card).Each(func(_ int, sel *goquery.Selection) {
		href := pick(sel, cfg["url"], "href")
		rec := domain.RawListing{
			Title:        pick(sel, cfg["title"], ""),
			PriceText:    pick(sel, cfg["price"], ""),
			LocationText: pick(sel, cfg["location"], ""),
			Description:  pick(sel, cfg["description"], ""),
			URL:          util.CanonicalURL(util.ResolveURL(base, href)),
			TypeHint:     pick(sel, cfg["type"], ""),
			BedroomsText: pick(sel, cfg["bedrooms"], ""),
		}
		if fixed := cfg["type_fixed"]; fixed != "" {
			rec.TypeHint = fixed
		}
		out = append(out, rec)
	})
	return out, nil
}

// pick reads "selector" or "selector@attr" relative to the card. An empty
// selector part targets the card itself, so "@data-url" works too.
func pick(card *goquery.Selection, expr, defaultAttr string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ""
	}
	selector, attr, hasAttr := strings.Cut(expr, "@")
	selector = strings.TrimSpace(selector)
	if !hasAttr {
		attr = defaultAttr
	}

	target := card
	if selector != "" {
		target = card.Find(selector).First()
		if target.Length() == 0 && card.Is(selector) {
			target = card
		}
	}
	if target.Length() == 0 {
		return ""
	}

	if attr != "" {
		v, _ := target.Attr(attr)
		return strings.TrimSpace(v)
	}
	return util.CleanText(target.Text())
}
