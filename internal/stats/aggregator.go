// Package stats snapshots catalog and ledger counts once per day.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

type Aggregator struct {
	db    *sql.DB
	clock clock.Clock
	loc   *time.Location
}

func NewAggregator(db *sql.DB, clk clock.Clock, loc *time.Location) *Aggregator {
	if clk == nil {
		clk = clock.System()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{db: db, clock: clk, loc: loc}
}

// Run computes today's row and upserts it. Running twice on one day
// overwrites the row with fresher counts.
func (a *Aggregator) Run(ctx context.Context) (domain.DailyStats, error) {
	now := a.clock.Now()
	day := now.In(a.loc).Format(domain.DateLayout)

	var s domain.DailyStats
	err := store.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		var err error
		if s, err = store.ComputeDailyStats(ctx, tx, day, now); err != nil {
			return fmt.Errorf("compute stats for %s: %w", day, err)
		}
		return store.UpsertDailyStats(ctx, tx, s, now)
	})
	if err != nil {
		return s, err
	}

	logger.Info("[stats] daily snapshot",
		zap.String("day", day),
		zap.Int("total_entries", s.TotalEntries),
		zap.Int("new_entries", s.NewEntries),
		zap.Int("runs", s.Runs),
		zap.Int("failed_runs", s.FailedRuns),
	)
	return s, nil
}
