package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

func InsertContract(ctx context.Context, q Querier, c domain.Contract) (int64, error) {
	res, err := q.ExecContext(ctx, `
INSERT INTO contracts(partner_id, start_date, end_date, status, max_publications)
VALUES(?,?,?,?,?);
`, c.PartnerID, c.StartDate.Format(domain.DateLayout), c.EndDate.Format(domain.DateLayout),
		string(c.Status), nullInt(c.MaxPublications))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListActiveExpiredAsOf returns active contracts whose end date is strictly before day.
func ListActiveExpiredAsOf(ctx context.Context, q Querier, day time.Time) ([]domain.Contract, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, partner_id, start_date, end_date, status, max_publications
FROM contracts
WHERE status = ? AND end_date < ?
ORDER BY end_date, id;
`, string(domain.ContractActive), day.Format(domain.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func GetContract(ctx context.Context, q Querier, id int64) (domain.Contract, error) {
	row := q.QueryRowContext(ctx, `
SELECT id, partner_id, start_date, end_date, status, max_publications
FROM contracts WHERE id = ?;`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// MarkExpired reports false when the contract was no longer active.
func MarkExpired(ctx context.Context, q Querier, id int64) (bool, error) {
	res, err := q.ExecContext(ctx, `UPDATE contracts SET status = ? WHERE id = ? AND status = ?;`,
		string(domain.ContractExpired), id, string(domain.ContractActive))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanContract(s scanner) (domain.Contract, error) {
	var (
		c          domain.Contract
		start, end string
		status     string
		maxPub     sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.PartnerID, &start, &end, &status, &maxPub); err != nil {
		return c, err
	}
	c.Status = domain.ContractStatus(status)
	var err error
	if c.StartDate, err = time.Parse(domain.DateLayout, start); err != nil {
		return c, err
	}
	if c.EndDate, err = time.Parse(domain.DateLayout, end); err != nil {
		return c, err
	}
	if maxPub.Valid {
		v := int(maxPub.Int64)
		c.MaxPublications = &v
	}
	return c, nil
}
