package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/scrape/fetch"
)

const page = `<html><body>
<div class="property-card">
  <h3> Villa  à Bonapriso </h3>
  <span class="price">1,200,000 XAF</span>
  <span class="location">Bonapriso, Douala</span>
  <p class="description">Belle villa</p>
  <span class="property-type">Maison</span>
  <span class="beds">4 chambres</span>
  <a href="/listing/1?utm_source=feed">voir</a>
</div>
<div class="property-card">
  <h3>Terrain</h3>
  <a href="https://other.cm/t/9#photos">voir</a>
</div>
<div class="property-card"></div>
</body></html>`

var jumiaLike = domain.ExtractionConfig{
	"card": "div.property-card", "title": "h3", "price": "span.price", "location": "span.location",
	"description": "p.description", "url": "a", "type": "span.property-type", "bedrooms": "span.beds",
}

func TestParse(t *testing.T) {
	recs, err := Parse([]byte(page), "https://house.jumia.cm/", jumiaLike)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, domain.RawListing{
		Title:        "Villa à Bonapriso",
		PriceText:    "1,200,000 XAF",
		LocationText: "Bonapriso, Douala",
		Description:  "Belle villa",
		URL:          "https://house.jumia.cm/listing/1",
		TypeHint:     "Maison",
		BedroomsText: "4 chambres",
	}, recs[0])

	// missing selectors give empty fields, not errors
	assert.Equal(t, "Terrain", recs[1].Title)
	assert.Equal(t, "", recs[1].PriceText)
	assert.Equal(t, "https://other.cm/t/9", recs[1].URL)
	assert.Equal(t, domain.RawListing{}, recs[2])
}

func TestParseAttributesAndFixedType(t *testing.T) {
	body := `<ul><li class="hotel" data-url="/h/1"><img alt="Hotel Akwa" src="x.png"><b>45 000 FCFA</b></li></ul>`
	recs, err := Parse([]byte(body), "https://www.booking.com", domain.ExtractionConfig{
		"card": "li.hotel", "title": "img@alt", "price": "b", "url": "@data-url", "type_fixed": "hotel",
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Hotel Akwa", recs[0].Title)
	assert.Equal(t, "45 000 FCFA", recs[0].PriceText)
	assert.Equal(t, "https://www.booking.com/h/1", recs[0].URL)
	assert.Equal(t, "hotel", recs[0].TypeHint)
}

func TestParseRequiresCard(t *testing.T) {
	_, err := Parse([]byte(page), "https://x.cm", domain.ExtractionConfig{"title": "h3"})
	assert.Error(t, err)
}

type stubGetter struct {
	body []byte
	opts fetch.Options
	err  error
}

func (s *stubGetter) Get(_ context.Context, _ string, opts fetch.Options) (fetch.Page, error) {
	s.opts = opts
	return fetch.Page{Body: s.body}, s.err
}

func TestScraperFetch(t *testing.T) {
	get := &stubGetter{body: []byte(page)}
	cfg := jumiaLike.Merge(nil)
	cfg["user_agent"] = "browser"
	s := New(domain.Source{Name: "j", Family: domain.FamilyJumia, Endpoint: "https://house.jumia.cm"}, cfg, get)

	res, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, "html:jumia:j", res.Source)
	assert.Equal(t, fetch.BrowserUserAgent, get.opts.UserAgent)
}
