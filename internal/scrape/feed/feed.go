// Package feed reads listings published as RSS or Atom items.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/scrape/fetch"
	"github.com/shalom-dev-bot/astremina/internal/scrape/types"
	"github.com/shalom-dev-bot/astremina/internal/scrape/util"
)

type Scraper struct {
	src domain.Source
	cfg domain.ExtractionConfig
	get fetch.Getter
}

func New(src domain.Source, cfg domain.ExtractionConfig, get fetch.Getter) *Scraper {
	return &Scraper{src: src, cfg: cfg, get: get}
}

func (s *Scraper) Name() string { return "feed:" + s.src.Name }

func (s *Scraper) Fetch(ctx context.Context) (types.ScrapeResult, error) {
	page, err := s.get.Get(ctx, s.src.Endpoint, fetch.Options{
		Accept: "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5",
	})
	if err != nil {
		return types.ScrapeResult{}, err
	}
	recs, err := Parse(page.Body, s.src.Endpoint, s.cfg)
	if err != nil {
		return types.ScrapeResult{}, err
	}
	return types.ScrapeResult{Source: s.Name(), Records: recs}, nil
}

// Parse maps feed items to listings. Title, link and description come from
// the item itself; the other fields name an element, either a plain custom
// element ("price") or a namespaced one ("g:price").
func Parse(body []byte, base string, cfg domain.ExtractionConfig) ([]domain.RawListing, error) {
	f, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrUnparseable, err)
	}

	out := make([]domain.RawListing, 0, len(f.Items))
	for _, it := range f.Items {
		if it == nil {
			continue
		}
		desc := it.Description
		if desc == "" {
			desc = it.Content
		}
		rec := domain.RawListing{
			Title:        util.CleanText(it.Title),
			Description:  stripTags(desc),
			URL:          util.CanonicalURL(util.ResolveURL(base, it.Link)),
			PriceText:    field(it, cfg["price"]),
			LocationText: field(it, cfg["location"]),
			BedroomsText: field(it, cfg["bedrooms"]),
		}
		if t := cfg["type"]; t == "category" {
			if len(it.Categories) > 0 {
				rec.TypeHint = util.CleanText(it.Categories[0])
			}
		} else {
			rec.TypeHint = field(it, t)
		}
		if fixed := cfg["type_fixed"]; fixed != "" {
			rec.TypeHint = fixed
		}
		out = append(out, rec)
	}
	return out, nil
}

func field(it *gofeed.Item, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if v, ok := it.Custom[name]; ok {
		return util.CleanText(v)
	}
	ns, local, ok := strings.Cut(name, ":")
	if !ok {
		return ""
	}
	return util.CleanText(extValue(it.Extensions, ns, local))
}

func extValue(e ext.Extensions, ns, local string) string {
	if e == nil {
		return ""
	}
	vals := e[ns][local]
	if len(vals) == 0 {
		return ""
	}
	return vals[0].Value
}

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return util.CleanText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return util.CleanText(s)
	}
	return util.CleanText(doc.Text())
}
