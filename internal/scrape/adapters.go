// Package scrape binds a registered source to the extraction adapter of its
// family, with the family's default field map underneath the source's own.
package scrape

import (
	"fmt"
	"strconv"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/scrape/feed"
	"github.com/shalom-dev-bot/astremina/internal/scrape/fetch"
	"github.com/shalom-dev-bot/astremina/internal/scrape/html"
	"github.com/shalom-dev-bot/astremina/internal/scrape/jsonapi"
	"github.com/shalom-dev-bot/astremina/internal/scrape/mailbox"
	"github.com/shalom-dev-bot/astremina/internal/scrape/types"
)

const defaultTypeSelector = "span.property-type"

var defaults = map[domain.Family]domain.ExtractionConfig{
	domain.FamilyJumia: {
		"card":        "div.property-card",
		"title":       "h3",
		"price":       "span.price",
		"location":    "span.location",
		"description": "p.description",
		"url":         "a",
		"type":        defaultTypeSelector,
	},
	domain.FamilyBoncoin: {
		"card":        "div.listing-item",
		"title":       "h2.title",
		"price":       "span.price",
		"location":    "span.location",
		"description": "p.description",
		"url":         "a.listing-link",
		"type":        defaultTypeSelector,
	},
	domain.FamilyExpat: {
		"card":        "article.listing",
		"title":       "h2",
		"price":       "span.price",
		"location":    "span.city",
		"description": "p.summary",
		"url":         "a.listing-link",
		"type":        defaultTypeSelector,
	},
	domain.FamilyBooking: {
		"card":        "div.sr_property_block",
		"title":       "span.sr-hotel__name",
		"price":       "div.bui-price-display__value",
		"location":    "span.sr_card_address_line",
		"description": "div.hotel_desc",
		"url":         "a.hotel_name_link",
		"type_fixed":  string(domain.TypeHotel),
		"user_agent":  "browser",
		"render":      "true",
	},
	domain.FamilyGeneric: {
		"card":        "article",
		"title":       "h2",
		"price":       ".price",
		"location":    ".location",
		"description": "p",
		"url":         "a",
		"type":        defaultTypeSelector,
	},
	domain.FamilyFeed: {
		"price":    "price",
		"location": "location",
		"type":     "category",
		"bedrooms": "bedrooms",
	},
	domain.FamilyJSONAPI: {
		"items":       "items",
		"title":       "title",
		"price":       "price",
		"location":    "location",
		"description": "description",
		"url":         "url",
		"type":        "type",
		"bedrooms":    "bedrooms",
	},
	domain.FamilyMailbox: {
		"card":         "article",
		"title":        "h2",
		"price":        ".price",
		"location":     ".location",
		"description":  "p",
		"url":          "a",
		"type":         defaultTypeSelector,
		"folder":       "INBOX",
		"max_messages": "50",
	},
}

// Defaults returns a copy of the family's field map.
func Defaults(f domain.Family) domain.ExtractionConfig {
	return domain.ExtractionConfig(nil).Merge(defaults[f])
}

// ConfigFor is the effective extraction config of a source: its own
// non-empty keys over the family defaults.
func ConfigFor(src domain.Source) domain.ExtractionConfig {
	fam := src.Family
	if fam == "" {
		fam = domain.InferFamily(src.Endpoint)
	}
	return src.Extraction.Merge(defaults[fam])
}

// Deps are the shared clients adapters are built on.
type Deps struct {
	HTTP fetch.Getter
	// Render serves sources whose config sets render=true. Nil falls back
	// to HTTP.
	Render   fetch.Getter
	Dial     mailbox.Dialer
	Password mailbox.PasswordFunc
}

// ForSource builds the adapter for one source.
func ForSource(src domain.Source, deps Deps) (types.Fetcher, error) {
	fam := src.Family
	if fam == "" {
		fam = domain.InferFamily(src.Endpoint)
		src.Family = fam
	}
	if !fam.Valid() {
		return nil, fmt.Errorf("source %q: unknown family %q", src.Name, fam)
	}
	cfg := ConfigFor(src)

	get := deps.HTTP
	if render, _ := strconv.ParseBool(cfg["render"]); render && deps.Render != nil {
		get = deps.Render
	}

	switch fam {
	case domain.FamilyFeed:
		return feed.New(src, cfg, get), nil
	case domain.FamilyJSONAPI:
		return jsonapi.New(src, cfg, get), nil
	case domain.FamilyMailbox:
		return mailbox.New(src, cfg, deps.Dial, deps.Password)
	default:
		return html.New(src, cfg, get), nil
	}
}
