package domain

import "time"

type PropertyType string

const (
	TypeHouse      PropertyType = "house"
	TypeApartment  PropertyType = "apartment"
	TypeLand       PropertyType = "land"
	TypeHotel      PropertyType = "hotel"
	TypeOffice     PropertyType = "office"
	TypeCommercial PropertyType = "commercial"
	TypeUnknown    PropertyType = "unknown"
)

type Status string

const (
	StatusPublished Status = "published"
	StatusDraft     Status = "draft"
	StatusDisabled  Status = "disabled"
)

// IngestionActor owns every scraped entry. It is never a real account.
const IngestionActor = "system:ingestion"

// RawListing is what an adapter pulls out of one card. Missing fields are "".
type RawListing struct {
	Title        string
	PriceText    string
	LocationText string
	Description  string
	URL          string
	TypeHint     string
	BedroomsText string
}

type NormalizedListing struct {
	SourceID     int64
	Title        string
	Description  string
	Price        *int64
	Currency     string
	City         string
	Address      string
	PropertyType PropertyType
	Bedrooms     *int
	URL          string
	Fingerprint  string
}

type CatalogEntry struct {
	ID           string
	Slug         string
	Title        string
	Description  string
	PropertyType PropertyType
	Price        *int64
	Currency     string
	City         string
	Address      string
	Bedrooms     *int
	Latitude     *float64
	Longitude    *float64
	Status       Status
	OwnerID      string
	SourceID     *int64
	ExternalURL  string
	Fingerprint  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e CatalogEntry) Geocoded() bool { return e.Latitude != nil && e.Longitude != nil }

// ApplyListing overwrites every mutable field from n. Identity, slug,
// created-at, owner, status and coordinates are left alone.
func (e *CatalogEntry) ApplyListing(n NormalizedListing) {
	e.Title = n.Title
	e.Description = n.Description
	e.PropertyType = n.PropertyType
	e.Price = n.Price
	e.Currency = n.Currency
	e.City = n.City
	e.Address = n.Address
	e.Bedrooms = n.Bedrooms
	e.ExternalURL = n.URL
	e.Fingerprint = n.Fingerprint
	sid := n.SourceID
	e.SourceID = &sid
}
