package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/scrape/fetch"
)

type recordingGetter struct {
	name string
	body string
	hits int
	opts fetch.Options
}

func (g *recordingGetter) Get(_ context.Context, rawURL string, opts fetch.Options) (fetch.Page, error) {
	g.hits++
	g.opts = opts
	return fetch.Page{URL: rawURL, Body: []byte(g.body)}, nil
}

const bookingPage = `<html><body>
<div class="sr_property_block">
  <span class="sr-hotel__name">Hôtel La Falaise</span>
  <div class="bui-price-display__value">XAF 65 000</div>
  <span class="sr_card_address_line">Bonanjo, Douala</span>
  <a class="hotel_name_link" href="/hotel/cm/falaise.html?aid=304142&amp;label=x">voir</a>
</div>
</body></html>`

func TestConfigForOverridesDefaults(t *testing.T) {
	src := domain.Source{
		Family:     domain.FamilyJumia,
		Extraction: domain.ExtractionConfig{"title": "h2.name", "price": "", "bedrooms": "span.beds"},
	}
	cfg := ConfigFor(src)
	assert.Equal(t, "h2.name", cfg["title"])
	assert.Equal(t, "span.price", cfg["price"], "empty override keeps the default")
	assert.Equal(t, "span.beds", cfg["bedrooms"])
	assert.Equal(t, "div.property-card", cfg["card"])

	// Defaults hands out copies.
	d := Defaults(domain.FamilyJumia)
	d["card"] = "mutated"
	assert.Equal(t, "div.property-card", Defaults(domain.FamilyJumia)["card"])
}

func TestForSourceBookingUsesRendererAndForcesHotel(t *testing.T) {
	httpGet := &recordingGetter{name: "http"}
	render := &recordingGetter{name: "render", body: bookingPage}

	src := domain.Source{Name: "booking-douala", Endpoint: "https://www.booking.com/searchresults.html?ss=Douala"}
	f, err := ForSource(src, Deps{HTTP: httpGet, Render: render})
	require.NoError(t, err)
	assert.Equal(t, "html:booking:booking-douala", f.Name())

	res, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, httpGet.hits)
	assert.Equal(t, 1, render.hits)
	assert.Equal(t, fetch.BrowserUserAgent, render.opts.UserAgent)

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, "Hôtel La Falaise", rec.Title)
	assert.Equal(t, "hotel", rec.TypeHint)
	assert.Equal(t, "https://www.booking.com/hotel/cm/falaise.html?label=x", rec.URL)
}

func TestForSourceFamilies(t *testing.T) {
	get := &recordingGetter{}
	deps := Deps{HTTP: get, Password: func(string) (string, error) { return "pw", nil }}

	cases := []struct {
		src  domain.Source
		name string
	}{
		{domain.Source{Name: "a", Endpoint: "https://deals.jumia.cm/immobilier"}, "html:jumia:a"},
		{domain.Source{Name: "b", Endpoint: "https://cm.coinafrique.com/categorie/immobilier"}, "html:boncoin:b"},
		{domain.Source{Name: "c", Endpoint: "https://agence.cm", Family: domain.FamilyGeneric}, "html:generic:c"},
		{domain.Source{Name: "d", Endpoint: "https://agence.cm/rss", Family: domain.FamilyFeed}, "feed:d"},
		{domain.Source{Name: "e", Endpoint: "https://partner.cm/api", Family: domain.FamilyJSONAPI}, "jsonapi:e"},
		{domain.Source{Name: "f", Endpoint: "imaps://bot@imap.partner.cm/INBOX", Family: domain.FamilyMailbox}, "mailbox:f"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ForSource(tc.src, deps)
			require.NoError(t, err)
			assert.Equal(t, tc.name, f.Name())
		})
	}

	_, err := ForSource(domain.Source{Name: "x", Endpoint: "https://x.cm", Family: "carrier-pigeon"}, deps)
	assert.Error(t, err)
}
