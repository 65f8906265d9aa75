package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

const sourceCols = `id, name, endpoint, family, extraction, active, interval_seconds, last_run_at, created_at`

// UpsertSource inserts or refreshes a source keyed by name. last_run_at is never touched.
func UpsertSource(ctx context.Context, q Querier, src domain.Source, now time.Time) (int64, error) {
	ext, err := json.Marshal(src.Extraction)
	if err != nil {
		return 0, err
	}
	if src.Extraction == nil {
		ext = []byte("{}")
	}

	var id int64
	err = q.QueryRowContext(ctx, `
INSERT INTO sources(name, endpoint, family, extraction, active, interval_seconds, created_at)
VALUES(?,?,?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET
  endpoint = excluded.endpoint,
  family = excluded.family,
  extraction = excluded.extraction,
  active = excluded.active,
  interval_seconds = excluded.interval_seconds
RETURNING id;
`, src.Name, src.Endpoint, string(src.Family), string(ext), boolInt(src.Active),
		int64(src.Interval/time.Second), fmtTime(now)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert source %q: %w", src.Name, err)
	}
	return id, nil
}

func GetSource(ctx context.Context, q Querier, id int64) (domain.Source, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sourceCols+` FROM sources WHERE id = ?;`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, ErrNotFound
	}
	return src, err
}

func ListSources(ctx context.Context, q Querier) ([]domain.Source, error) {
	return querySources(ctx, q, `SELECT `+sourceCols+` FROM sources ORDER BY id;`)
}

func ListActiveSources(ctx context.Context, q Querier) ([]domain.Source, error) {
	return querySources(ctx, q, `SELECT `+sourceCols+` FROM sources WHERE active = 1 ORDER BY id;`)
}

func RecordLastRun(ctx context.Context, q Querier, sourceID int64, at time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE sources SET last_run_at = ? WHERE id = ?;`, fmtTime(at), sourceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func querySources(ctx context.Context, q Querier, query string, args ...any) ([]domain.Source, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(s scanner) (domain.Source, error) {
	var (
		src      domain.Source
		family   string
		ext      string
		active   int
		interval int64
		lastRun  sql.NullString
		created  string
	)
	if err := s.Scan(&src.ID, &src.Name, &src.Endpoint, &family, &ext, &active, &interval, &lastRun, &created); err != nil {
		return src, err
	}
	src.Family = domain.Family(family)
	src.Active = active == 1
	src.Interval = time.Duration(interval) * time.Second
	if ext != "" {
		if err := json.Unmarshal([]byte(ext), &src.Extraction); err != nil {
			return src, fmt.Errorf("source %d extraction: %w", src.ID, err)
		}
	}
	var err error
	if src.LastRunAt, err = scanNullTime(lastRun); err != nil {
		return src, err
	}
	if src.CreatedAt, err = parseTime(created); err != nil {
		return src, err
	}
	return src, nil
}
