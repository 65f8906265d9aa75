package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

const DefaultSubject = "New Properties Matching Your Alert"

// Composer renders the plain-text notification for one subscription.
type Composer struct {
	Subject string
	SiteURL string
}

func (c Composer) Compose(entries []domain.CatalogEntry) (subject, body string) {
	subject = c.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	var b strings.Builder
	b.WriteString("Hello,\n\n")
	b.WriteString("New properties matching your alert were published:\n\n")
	for _, e := range entries {
		b.WriteString(Line(e))
		b.WriteByte('\n')
	}
	if c.SiteURL != "" {
		fmt.Fprintf(&b, "\nView more details at %s\n", c.SiteURL)
	}
	return subject, b.String()
}

// Line is "- {title} ({city}, {price} {currency})". An unknown price reads
// "price on request".
func Line(e domain.CatalogEntry) string {
	price := "price on request"
	if e.Price != nil {
		price = strconv.FormatInt(*e.Price, 10) + " " + e.Currency
	}
	return fmt.Sprintf("- %s (%s, %s)", e.Title, e.City, price)
}
