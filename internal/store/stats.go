package store

import (
	"context"
	"time"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

// ComputeDailyStats counts the catalog, registry and ledger as of now.
func ComputeDailyStats(ctx context.Context, q Querier, day string, now time.Time) (domain.DailyStats, error) {
	since := fmtTime(now.Add(-24 * time.Hour))
	s := domain.DailyStats{Day: day}

	err := q.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM catalog_entries),
  (SELECT COUNT(*) FROM catalog_entries WHERE status = ?),
  (SELECT COUNT(*) FROM catalog_entries WHERE created_at >= ?),
  (SELECT COUNT(*) FROM sources WHERE active = 1),
  (SELECT COUNT(*) FROM contracts WHERE status = ?),
  (SELECT COUNT(*) FROM ingestion_runs WHERE started_at >= ?),
  (SELECT COUNT(*) FROM ingestion_runs WHERE started_at >= ? AND status = ?);
`, string(domain.StatusPublished), since, string(domain.ContractActive), since, since, string(domain.RunFailed)).Scan(
		&s.TotalEntries, &s.PublishedEntries, &s.NewEntries, &s.ActiveSources,
		&s.ActiveContracts, &s.Runs, &s.FailedRuns,
	)
	return s, err
}

func UpsertDailyStats(ctx context.Context, q Querier, s domain.DailyStats, now time.Time) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO daily_stats(day, total_entries, published_entries, new_entries, active_sources, active_contracts, runs, failed_runs, computed_at)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT(day) DO UPDATE SET
  total_entries = excluded.total_entries,
  published_entries = excluded.published_entries,
  new_entries = excluded.new_entries,
  active_sources = excluded.active_sources,
  active_contracts = excluded.active_contracts,
  runs = excluded.runs,
  failed_runs = excluded.failed_runs,
  computed_at = excluded.computed_at;
`, s.Day, s.TotalEntries, s.PublishedEntries, s.NewEntries, s.ActiveSources, s.ActiveContracts,
		s.Runs, s.FailedRuns, fmtTime(now))
	return err
}

func ListDailyStats(ctx context.Context, q Querier, days int) ([]domain.DailyStats, error) {
	if days <= 0 || days > 366 {
		days = 30
	}
	rows, err := q.QueryContext(ctx, `
SELECT day, total_entries, published_entries, new_entries, active_sources, active_contracts, runs, failed_runs
FROM daily_stats
ORDER BY day DESC
LIMIT ?;
`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailyStats
	for rows.Next() {
		var s domain.DailyStats
		if err := rows.Scan(&s.Day, &s.TotalEntries, &s.PublishedEntries, &s.NewEntries,
			&s.ActiveSources, &s.ActiveContracts, &s.Runs, &s.FailedRuns); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
