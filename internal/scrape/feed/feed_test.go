package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

const rss = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:g="http://base.google.com/ns/1.0">
<channel>
  <title>Annonces</title>
  <item>
    <title>Appartement meublé Bastos</title>
    <link>https://annonces.cm/a/17?utm_medium=rss</link>
    <description><![CDATA[<p>3 pièces, <b>vue</b> dégagée</p>]]></description>
    <category>Appartement</category>
    <price>350 000 FCFA</price>
    <location>Bastos, Yaoundé</location>
    <g:bedrooms>2</g:bedrooms>
  </item>
  <item>
    <title>Terrain titré</title>
    <link>/a/18</link>
  </item>
</channel>
</rss>`

func TestParse(t *testing.T) {
	cfg := domain.ExtractionConfig{"price": "price", "location": "location", "type": "category", "bedrooms": "g:bedrooms"}

	recs, err := Parse([]byte(rss), "https://annonces.cm/feed.xml", cfg)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, domain.RawListing{
		Title:        "Appartement meublé Bastos",
		PriceText:    "350 000 FCFA",
		LocationText: "Bastos, Yaoundé",
		Description:  "3 pièces, vue dégagée",
		URL:          "https://annonces.cm/a/17",
		TypeHint:     "Appartement",
		BedroomsText: "2",
	}, recs[0])

	assert.Equal(t, "https://annonces.cm/a/18", recs[1].URL)
	assert.Empty(t, recs[1].PriceText)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("definitely not a feed"), "https://x.cm", domain.ExtractionConfig{})
	assert.Error(t, err)
}
