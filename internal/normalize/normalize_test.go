package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

var gazetteer = []string{"Douala", "Yaoundé", "Bamenda", "Bafoussam", "Garoua", "Maroua", "Ngaoundéré"}

func TestPrice(t *testing.T) {
	cases := []struct {
		in   string
		want *int64
	}{
		{"1,200,000 XAF", ptr(1200000)},
		{"Price on request", nil},
		{"", nil},
		{"350 000 FCFA", ptr(350000)},
		{"350 000 FCFA / mois", ptr(350000)},
		{"1.200.000 F", ptr(1200000)},
		{"XAF 65 000.", ptr(65000)},
		{"45.5 M", ptr(45)},
		{"2 chambres, 150 000", ptr(2)},
		{"99999999999999999999999", nil},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Price(tc.in))
		})
	}
}

func TestCity(t *testing.T) {
	assert.Equal(t, "Douala", City("Bonapriso, Douala", gazetteer))
	assert.Equal(t, "Somewhere Unknown", City("Somewhere Unknown", gazetteer))
	assert.Equal(t, "Bastos", City(" Bastos , Centre", gazetteer))
	assert.Equal(t, "Yaoundé", City("quartier Omnisport, YAOUNDE", gazetteer))
	assert.Equal(t, "", City("   ", gazetteer))
	assert.Equal(t, "Kribi", City("Kribi", nil))
}

func TestPropertyType(t *testing.T) {
	cases := map[string]domain.PropertyType{
		"Maison à vendre":    domain.TypeHouse,
		"Villa duplex":       domain.TypeHouse,
		"APPARTEMENT meublé": domain.TypeApartment,
		"Studio moderne":     domain.TypeApartment,
		"Terrain titré":      domain.TypeLand,
		"Hôtel":              domain.TypeHotel,
		"Bureau open space":  domain.TypeOffice,
		"Local commercial":   domain.TypeCommercial,
		"Boutique":           domain.TypeCommercial,
		"something else":     domain.TypeUnknown,
		"":                   domain.TypeUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, PropertyType(in), in)
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "appartement-meuble-a-bastos", Slugify("  Appartement meublé à Bastos!! "))
	assert.Equal(t, "villa-4-chambres", Slugify("Villa -- 4 chambres"))
	assert.Equal(t, "", Slugify("¡¿"))
}

func TestFingerprintIgnoresDescriptionAndURL(t *testing.T) {
	src := domain.Source{ID: 3}
	opts := Options{Currency: "XAF", Gazetteer: gazetteer}

	a := Listing(domain.RawListing{
		Title: "Villa Bonapriso", PriceText: "450 000", LocationText: "Bonapriso, Douala",
		Description: "first wording", URL: "https://a.cm/1",
	}, src, opts)
	b := Listing(domain.RawListing{
		Title: "Villa  Bonapriso", PriceText: "450000 XAF", LocationText: "Bonapriso, Douala",
		Description: "completely different", URL: "https://a.cm/2",
	}, src, opts)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)

	c := Listing(domain.RawListing{Title: "Villa Bonapriso", PriceText: "460 000", LocationText: "Bonapriso, Douala"}, src, opts)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)

	// Null price still hashes deterministically.
	assert.Equal(t, Fingerprint("x", nil, "y"), Fingerprint("x", nil, "y"))
	assert.NotEqual(t, Fingerprint("x", nil, "y"), Fingerprint("x", ptr(0), "y"))
}

func TestListing(t *testing.T) {
	n := Listing(domain.RawListing{
		Title:        " Appartement  3 pièces ",
		PriceText:    "1,200,000 XAF",
		LocationText: "Bonapriso,  Douala, douala",
		Description:  "Belle vue\n\n sur le fleuve",
		URL:          "https://Annonces.cm/a/1?utm_source=x#photos",
		TypeHint:     "Appartement",
		BedroomsText: "3 ch.",
	}, domain.Source{ID: 7}, Options{Currency: "XAF", Gazetteer: gazetteer})

	assert.Equal(t, int64(7), n.SourceID)
	assert.Equal(t, "Appartement 3 pièces", n.Title)
	assert.Equal(t, "Belle vue sur le fleuve", n.Description)
	require.NotNil(t, n.Price)
	assert.Equal(t, int64(1200000), *n.Price)
	assert.Equal(t, "XAF", n.Currency)
	assert.Equal(t, "Douala", n.City)
	assert.Equal(t, "Bonapriso, Douala", n.Address)
	assert.Equal(t, domain.TypeApartment, n.PropertyType)
	require.NotNil(t, n.Bedrooms)
	assert.Equal(t, 3, *n.Bedrooms)
	assert.Equal(t, "https://annonces.cm/a/1", n.URL)
	assert.Len(t, n.Fingerprint, 64)
}

func TestListingDegradesMalformedInput(t *testing.T) {
	n := Listing(domain.RawListing{}, domain.Source{ID: 1}, Options{Currency: "XAF"})
	assert.Nil(t, n.Price)
	assert.Nil(t, n.Bedrooms)
	assert.Equal(t, domain.TypeUnknown, n.PropertyType)
	assert.Empty(t, n.City)
	assert.NotEmpty(t, n.Fingerprint)
}

func ptr(v int64) *int64 { return &v }
