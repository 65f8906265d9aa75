package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

const runCols = `id, source_id, started_at, finished_at, status, items_extracted, items_created, items_updated, error`

func InsertRun(ctx context.Context, q Querier, r domain.IngestionRun) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO ingestion_runs(id, source_id, started_at, status)
VALUES(?,?,?,?);
`, r.ID, r.SourceID, fmtTime(r.StartedAt), string(r.Status))
	return err
}

// FinishRun applies the terminal state of r. It reports false when the run
// was already terminal, leaving the stored row untouched.
func FinishRun(ctx context.Context, q Querier, r domain.IngestionRun) (bool, error) {
	res, err := q.ExecContext(ctx, `
UPDATE ingestion_runs
SET finished_at = ?, status = ?, items_extracted = ?, items_created = ?, items_updated = ?, error = ?
WHERE id = ? AND status = ?;
`, nullTime(r.FinishedAt), string(r.Status), r.ItemsExtracted, r.ItemsCreated, r.ItemsUpdated, r.Error,
		r.ID, string(domain.RunRunning))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func GetRun(ctx context.Context, q Querier, id string) (domain.IngestionRun, error) {
	row := q.QueryRowContext(ctx, `SELECT `+runCols+` FROM ingestion_runs WHERE id = ?;`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func HasOpenRun(ctx context.Context, q Querier, sourceID int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM ingestion_runs WHERE source_id = ? AND status = ? LIMIT 1;`,
		sourceID, string(domain.RunRunning)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ListRuns returns the newest runs first. sourceID 0 lists every source.
func ListRuns(ctx context.Context, q Querier, sourceID int64, limit int) ([]domain.IngestionRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + runCols + ` FROM ingestion_runs`
	args := []any{}
	if sourceID > 0 {
		query += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IngestionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CloseStaleRuns fails every run still running that started before cutoff.
func CloseStaleRuns(ctx context.Context, q Querier, cutoff, now time.Time, reason string) (int64, error) {
	res, err := q.ExecContext(ctx, `
UPDATE ingestion_runs
SET status = ?, finished_at = ?, error = ?
WHERE status = ? AND started_at < ?;
`, string(domain.RunFailed), fmtTime(now), reason, string(domain.RunRunning), fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRun(s scanner) (domain.IngestionRun, error) {
	var (
		r        domain.IngestionRun
		started  string
		finished sql.NullString
		status   string
	)
	err := s.Scan(&r.ID, &r.SourceID, &started, &finished, &status,
		&r.ItemsExtracted, &r.ItemsCreated, &r.ItemsUpdated, &r.Error)
	if err != nil {
		return r, err
	}
	r.Status = domain.RunStatus(status)
	if r.StartedAt, err = parseTime(started); err != nil {
		return r, err
	}
	r.FinishedAt, err = scanNullTime(finished)
	return r, err
}
