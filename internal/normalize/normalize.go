// Package normalize turns raw adapter output into comparable listings. Nothing
// in here returns an error: malformed input degrades to null or unknown.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/scrape/util"
)

// Options are the deployment-wide inputs to normalization.
type Options struct {
	Currency  string
	Gazetteer []string
}

// Listing normalizes one record for src.
func Listing(raw domain.RawListing, src domain.Source, opts Options) domain.NormalizedListing {
	title := util.CleanText(raw.Title)
	location := util.NormalizeLocation(raw.LocationText)
	price := Price(raw.PriceText)

	var bedrooms *int
	if n, ok := util.FirstInt(raw.BedroomsText); ok {
		bedrooms = &n
	}

	return domain.NormalizedListing{
		SourceID:     src.ID,
		Title:        title,
		Description:  util.CleanText(raw.Description),
		Price:        price,
		Currency:     opts.Currency,
		City:         City(location, opts.Gazetteer),
		Address:      location,
		PropertyType: PropertyType(raw.TypeHint),
		Bedrooms:     bedrooms,
		URL:          util.CanonicalURL(raw.URL),
		Fingerprint:  Fingerprint(title, price, location),
	}
}

var (
	reSpaces = regexp.MustCompile(`[\s\x{00a0}\x{202f}]+`)
	reNumber = regexp.MustCompile(`\d[\d,.]*`)
	reDotted = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
)

// Price reads the first number in text. Spaces and commas are thousands
// separators; dots are too when they group by three ("1.200.000"),
// otherwise they start a fraction that is dropped.
func Price(text string) *int64 {
	s := reSpaces.ReplaceAllString(text, "")
	m := reNumber.FindString(s)
	if m == "" {
		return nil
	}
	m = strings.ReplaceAll(strings.TrimRight(m, ",."), ",", "")
	if reDotted.MatchString(m) {
		m = strings.ReplaceAll(m, ".", "")
	} else if i := strings.IndexByte(m, '.'); i >= 0 {
		m = m[:i]
	}
	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// City returns the first gazetteer city found in location, comparing
// case- and accent-insensitively, else the text before the first comma.
func City(location string, gazetteer []string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}
	folded := fold(location)
	for _, c := range gazetteer {
		if c = strings.TrimSpace(c); c != "" && strings.Contains(folded, fold(c)) {
			return c
		}
	}
	before, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(before)
}

type typeKeyword struct {
	word string
	kind domain.PropertyType
}

// typeKeywords is scanned in order; the first keyword contained in the
// folded hint wins.
var typeKeywords = []typeKeyword{
	{"house", domain.TypeHouse},
	{"apartment", domain.TypeApartment},
	{"land", domain.TypeLand},
	{"hotel", domain.TypeHotel},
	{"office", domain.TypeOffice},
	{"commercial", domain.TypeCommercial},
	{"maison", domain.TypeHouse},
	{"villa", domain.TypeHouse},
	{"duplex", domain.TypeHouse},
	{"appartement", domain.TypeApartment},
	{"studio", domain.TypeApartment},
	{"terrain", domain.TypeLand},
	{"parcelle", domain.TypeLand},
	{"auberge", domain.TypeHotel},
	{"bureau", domain.TypeOffice},
	{"boutique", domain.TypeCommercial},
	{"magasin", domain.TypeCommercial},
	{"entrepot", domain.TypeCommercial},
	{"commerce", domain.TypeCommercial},
}

// PropertyType maps a free-text hint in English or French to the enum.
// "Hôtel" matches through accent folding.
func PropertyType(hint string) domain.PropertyType {
	h := fold(hint)
	if h == "" {
		return domain.TypeUnknown
	}
	for _, kw := range typeKeywords {
		if strings.Contains(h, kw.word) {
			return kw.kind
		}
	}
	return domain.TypeUnknown
}

// Slugify lowercases, strips accents and joins alphanumeric runs with "-".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range fold(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Fingerprint hashes the slugified title, the parsed price (empty when
// null) and the location text. Description and URL do not take part, so
// cosmetic edits elsewhere on a card keep the same fingerprint.
func Fingerprint(title string, price *int64, location string) string {
	p := ""
	if price != nil {
		p = strconv.FormatInt(*price, 10)
	}
	sum := sha256.Sum256([]byte(Slugify(title) + "|" + p + "|" + strings.ToLower(util.CleanText(location))))
	return hex.EncodeToString(sum[:])
}

func fold(s string) string {
	// Transformers keep state, so each call builds its own chain.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
