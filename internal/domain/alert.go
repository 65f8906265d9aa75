package domain

import (
	"strings"
	"time"
)

type AlertSubscription struct {
	ID             int64
	OwnerID        string
	OwnerEmail     string
	City           string
	PropertyType   PropertyType
	MinPrice       *int64
	MaxPrice       *int64
	MinBedrooms    *int
	Active         bool
	LastNotifiedAt *time.Time
}

// Matches applies every non-empty filter. Entries with an unknown price or
// bedroom count fail the corresponding filter.
func (s AlertSubscription) Matches(e CatalogEntry) bool {
	if s.City != "" && !strings.Contains(strings.ToLower(e.City), strings.ToLower(s.City)) {
		return false
	}
	if s.PropertyType != "" && e.PropertyType != s.PropertyType {
		return false
	}
	if s.MinPrice != nil && (e.Price == nil || *e.Price < *s.MinPrice) {
		return false
	}
	if s.MaxPrice != nil && (e.Price == nil || *e.Price > *s.MaxPrice) {
		return false
	}
	if s.MinBedrooms != nil && (e.Bedrooms == nil || *e.Bedrooms < *s.MinBedrooms) {
		return false
	}
	return true
}
