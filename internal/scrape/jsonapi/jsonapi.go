// Package jsonapi reads listings from partner endpoints that answer with JSON.
package jsonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

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

func (s *Scraper) Name() string { return "jsonapi:" + s.src.Name }

func (s *Scraper) Fetch(ctx context.Context) (types.ScrapeResult, error) {
	page, err := s.get.Get(ctx, s.src.Endpoint, fetch.Options{Accept: "application/json"})
	if err != nil {
		return types.ScrapeResult{}, err
	}
	recs, err := Parse(page.Body, s.src.Endpoint, s.cfg)
	if err != nil {
		return types.ScrapeResult{}, err
	}
	return types.ScrapeResult{Source: s.Name(), Records: recs}, nil
}

// Parse locates the item array at cfg["items"] (a dotted path, empty for a
// bare top-level array) and reads each field from a dotted key inside it.
func Parse(body []byte, base string, cfg domain.ExtractionConfig) ([]domain.RawListing, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrUnparseable, err)
	}

	node, ok := lookup(doc, cfg["items"])
	if !ok {
		return nil, fmt.Errorf("%w: no value at items path %q", fetch.ErrUnparseable, cfg["items"])
	}
	items, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: items path %q is not an array", fetch.ErrUnparseable, cfg["items"])
	}

	out := make([]domain.RawListing, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		rec := domain.RawListing{
			Title:        str(obj, cfg["title"]),
			PriceText:    str(obj, cfg["price"]),
			LocationText: str(obj, cfg["location"]),
			Description:  str(obj, cfg["description"]),
			URL:          util.CanonicalURL(util.ResolveURL(base, str(obj, cfg["url"]))),
			TypeHint:     str(obj, cfg["type"]),
			BedroomsText: str(obj, cfg["bedrooms"]),
		}
		if fixed := cfg["type_fixed"]; fixed != "" {
			rec.TypeHint = fixed
		}
		out = append(out, rec)
	}
	return out, nil
}

func lookup(v any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return v, true
	}
	for _, key := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, true
}

// str renders scalars as text; price and bedrooms often arrive as numbers.
func str(obj map[string]any, path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	v, ok := lookup(obj, path)
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return util.CleanText(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}
