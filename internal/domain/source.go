package domain

import (
	"net/url"
	"strings"
	"time"
)

// Family selects the extraction adapter and its default selector map.
type Family string

const (
	FamilyJumia   Family = "jumia"
	FamilyBoncoin Family = "boncoin"
	FamilyExpat   Family = "expat"
	FamilyBooking Family = "booking"
	FamilyGeneric Family = "generic"
	FamilyFeed    Family = "feed"
	FamilyMailbox Family = "mailbox"
	FamilyJSONAPI Family = "jsonapi"
)

func (f Family) Valid() bool {
	switch f {
	case FamilyJumia, FamilyBoncoin, FamilyExpat, FamilyBooking,
		FamilyGeneric, FamilyFeed, FamilyMailbox, FamilyJSONAPI:
		return true
	}
	return false
}

// InferFamily guesses a family from the endpoint host when a source has no tag.
func InferFamily(endpoint string) Family {
	host := strings.ToLower(endpoint)
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}
	switch {
	case strings.Contains(host, "jumia"):
		return FamilyJumia
	case strings.Contains(host, "boncoin"), strings.Contains(host, "coinafrique"):
		return FamilyBoncoin
	case strings.Contains(host, "expat"):
		return FamilyExpat
	case strings.Contains(host, "booking"):
		return FamilyBooking
	}
	return FamilyGeneric
}

// ExtractionConfig maps a logical field ("card", "title", "price", ...) to a
// selector or key. Values set here override the family defaults.
type ExtractionConfig map[string]string

// Merge returns defaults overlaid with non-empty values from c.
func (c ExtractionConfig) Merge(defaults ExtractionConfig) ExtractionConfig {
	out := make(ExtractionConfig, len(defaults)+len(c))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range c {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

type Source struct {
	ID         int64
	Name       string
	Endpoint   string
	Family     Family
	Extraction ExtractionConfig
	Active     bool
	// Interval overrides the scheduler default when > 0.
	Interval  time.Duration
	LastRunAt *time.Time
	CreatedAt time.Time
}

// Due reports whether the source should be picked up at now.
func (s Source) Due(now time.Time, defaultInterval time.Duration) bool {
	if !s.Active {
		return false
	}
	if s.LastRunAt == nil {
		return true
	}
	every := s.Interval
	if every <= 0 {
		every = defaultInterval
	}
	return now.Sub(*s.LastRunAt) >= every
}
