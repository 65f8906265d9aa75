package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

// InsertSubscription is used by the account side of the marketplace and by
// fixtures; the pipeline itself only reads subscriptions.
func InsertSubscription(ctx context.Context, q Querier, s domain.AlertSubscription) (int64, error) {
	res, err := q.ExecContext(ctx, `
INSERT INTO alert_subscriptions(owner_id, owner_email, city, property_type, min_price, max_price, min_bedrooms, active, last_notified_at)
VALUES(?,?,?,?,?,?,?,?,?);
`, s.OwnerID, s.OwnerEmail, s.City, string(s.PropertyType), nullInt64(s.MinPrice), nullInt64(s.MaxPrice),
		nullInt(s.MinBedrooms), boolInt(s.Active), nullTime(s.LastNotifiedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func ListActiveSubscriptions(ctx context.Context, q Querier) ([]domain.AlertSubscription, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, owner_id, owner_email, city, property_type, min_price, max_price, min_bedrooms, active, last_notified_at
FROM alert_subscriptions
WHERE active = 1
ORDER BY id;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AlertSubscription
	for rows.Next() {
		var (
			s                  domain.AlertSubscription
			ptype              string
			minPrice, maxPrice sql.NullInt64
			minBeds            sql.NullInt64
			active             int
			notified           sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.OwnerEmail, &s.City, &ptype,
			&minPrice, &maxPrice, &minBeds, &active, &notified); err != nil {
			return nil, err
		}
		s.PropertyType = domain.PropertyType(ptype)
		s.Active = active == 1
		if minPrice.Valid {
			v := minPrice.Int64
			s.MinPrice = &v
		}
		if maxPrice.Valid {
			v := maxPrice.Int64
			s.MaxPrice = &v
		}
		if minBeds.Valid {
			v := int(minBeds.Int64)
			s.MinBedrooms = &v
		}
		if s.LastNotifiedAt, err = scanNullTime(notified); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func StampNotified(ctx context.Context, q Querier, id int64, at time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE alert_subscriptions SET last_notified_at = ? WHERE id = ?;`, fmtTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func GetSubscriptionNotifiedAt(ctx context.Context, q Querier, id int64) (*time.Time, error) {
	var ns sql.NullString
	if err := q.QueryRowContext(ctx, `SELECT last_notified_at FROM alert_subscriptions WHERE id = ?;`, id).Scan(&ns); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return scanNullTime(ns)
}
