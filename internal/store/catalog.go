package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

const entryCols = `id, slug, title, description, property_type, price, currency, city, address, bedrooms,
latitude, longitude, status, owner_id, source_id, external_url, fingerprint, created_at, updated_at`

func FindBySourceAndURL(ctx context.Context, q Querier, sourceID int64, url string) (domain.CatalogEntry, error) {
	if strings.TrimSpace(url) == "" {
		return domain.CatalogEntry{}, ErrNotFound
	}
	return getEntry(ctx, q, `WHERE source_id = ? AND external_url = ? LIMIT 1`, sourceID, url)
}

// FindBySourceAndFingerprint returns the oldest entry carrying fp for the source.
func FindBySourceAndFingerprint(ctx context.Context, q Querier, sourceID int64, fp string) (domain.CatalogEntry, error) {
	if fp == "" {
		return domain.CatalogEntry{}, ErrNotFound
	}
	return getEntry(ctx, q, `WHERE source_id = ? AND fingerprint = ? ORDER BY created_at, id LIMIT 1`, sourceID, fp)
}

func GetEntry(ctx context.Context, q Querier, id string) (domain.CatalogEntry, error) {
	return getEntry(ctx, q, `WHERE id = ?`, id)
}

// UpsertEntry writes e by id. On conflict every mutable column is replaced;
// id, slug, created_at and owner_id keep their stored values.
func UpsertEntry(ctx context.Context, q Querier, e domain.CatalogEntry) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO catalog_entries(`+entryCols+`)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  title = excluded.title,
  description = excluded.description,
  property_type = excluded.property_type,
  price = excluded.price,
  currency = excluded.currency,
  city = excluded.city,
  address = excluded.address,
  bedrooms = excluded.bedrooms,
  latitude = excluded.latitude,
  longitude = excluded.longitude,
  status = excluded.status,
  source_id = excluded.source_id,
  external_url = excluded.external_url,
  fingerprint = excluded.fingerprint,
  updated_at = excluded.updated_at;
`,
		e.ID, e.Slug, e.Title, e.Description, string(e.PropertyType), nullInt64(e.Price), e.Currency,
		e.City, e.Address, nullInt(e.Bedrooms), nullFloat(e.Latitude), nullFloat(e.Longitude),
		string(e.Status), e.OwnerID, nullInt64(e.SourceID), e.ExternalURL, e.Fingerprint,
		fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert entry %s: %w", e.ID, err)
	}
	return nil
}

type CatalogFilter struct {
	City         string
	PropertyType domain.PropertyType
	MinPrice     *int64
	MaxPrice     *int64
	MinBedrooms  *int
	// Limit caps the result after every filter; 0 means no cap.
	Limit int
}

func FilterFor(sub domain.AlertSubscription, limit int) CatalogFilter {
	return CatalogFilter{
		City:         sub.City,
		PropertyType: sub.PropertyType,
		MinPrice:     sub.MinPrice,
		MaxPrice:     sub.MaxPrice,
		MinBedrooms:  sub.MinBedrooms,
		Limit:        limit,
	}
}

// ListPublishedSince returns published entries created at or after since,
// newest first. City is a case-insensitive substring match done in Go since
// sqlite's lower() only folds ASCII.
func ListPublishedSince(ctx context.Context, q Querier, since time.Time, f CatalogFilter) ([]domain.CatalogEntry, error) {
	where := []string{`status = ?`, `created_at >= ?`}
	args := []any{string(domain.StatusPublished), fmtTime(since)}

	if f.PropertyType != "" {
		where = append(where, `property_type = ?`)
		args = append(args, string(f.PropertyType))
	}
	if f.MinPrice != nil {
		where = append(where, `price >= ?`)
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, `price <= ?`)
		args = append(args, *f.MaxPrice)
	}
	if f.MinBedrooms != nil {
		where = append(where, `bedrooms >= ?`)
		args = append(args, *f.MinBedrooms)
	}

	all, err := queryEntries(ctx, q,
		`SELECT `+entryCols+` FROM catalog_entries WHERE `+strings.Join(where, " AND ")+
			` ORDER BY created_at DESC, id;`, args...)
	if err != nil {
		return nil, err
	}

	sub := domain.AlertSubscription{City: f.City}
	out := all[:0]
	for _, e := range all {
		if !sub.Matches(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// DisablePublishedForOwner flips every published entry of owner to disabled.
func DisablePublishedForOwner(ctx context.Context, q Querier, ownerID string, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
UPDATE catalog_entries
SET status = ?, updated_at = ?
WHERE owner_id = ? AND status = ?;
`, string(domain.StatusDisabled), fmtTime(now), ownerID, string(domain.StatusPublished))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetCoordinatesIfMissing stores coordinates unless some earlier call already did.
func SetCoordinatesIfMissing(ctx context.Context, q Querier, id string, lat, lon float64, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `
UPDATE catalog_entries
SET latitude = ?, longitude = ?, updated_at = ?
WHERE id = ? AND latitude IS NULL AND longitude IS NULL;
`, lat, lon, fmtTime(now), id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func CountEntries(ctx context.Context, q Querier, sourceID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_entries WHERE source_id = ?;`, sourceID).Scan(&n)
	return n, err
}

func getEntry(ctx context.Context, q Querier, where string, args ...any) (domain.CatalogEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entryCols+` FROM catalog_entries `+where+`;`, args...)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CatalogEntry{}, ErrNotFound
	}
	return e, err
}

func queryEntries(ctx context.Context, q Querier, query string, args ...any) ([]domain.CatalogEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CatalogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(s scanner) (domain.CatalogEntry, error) {
	var (
		e                domain.CatalogEntry
		ptype, status    string
		price, sourceID  sql.NullInt64
		bedrooms         sql.NullInt64
		lat, lon         sql.NullFloat64
		created, updated string
	)
	err := s.Scan(&e.ID, &e.Slug, &e.Title, &e.Description, &ptype, &price, &e.Currency, &e.City, &e.Address,
		&bedrooms, &lat, &lon, &status, &e.OwnerID, &sourceID, &e.ExternalURL, &e.Fingerprint, &created, &updated)
	if err != nil {
		return e, err
	}
	e.PropertyType = domain.PropertyType(ptype)
	e.Status = domain.Status(status)
	if price.Valid {
		e.Price = &price.Int64
	}
	if sourceID.Valid {
		e.SourceID = &sourceID.Int64
	}
	if bedrooms.Valid {
		b := int(bedrooms.Int64)
		e.Bedrooms = &b
	}
	if lat.Valid {
		e.Latitude = &lat.Float64
	}
	if lon.Valid {
		e.Longitude = &lon.Float64
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return e, err
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return e, err
	}
	return e, nil
}
