// Package ledger records ingestion runs. A run is opened once, closed once,
// and never reopened or deleted.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

var ErrAlreadyClosed = errors.New("run already closed")

const (
	ReasonRestarted = "abandoned: engine restarted"
	ReasonStale     = "abandoned: exceeded stale window"
	ReasonCanceled  = "canceled"
)

// Counts are the record tallies a run reports when it closes.
type Counts struct {
	Extracted int
	Created   int
	Updated   int
}

type Ledger struct {
	db    *sql.DB
	clock clock.Clock
}

func New(db *sql.DB, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.System()
	}
	return &Ledger{db: db, clock: clk}
}

// Open inserts a running run. Ids are ULIDs so they sort by start time.
func (l *Ledger) Open(ctx context.Context, sourceID int64) (domain.IngestionRun, error) {
	now := l.clock.Now()
	r := domain.IngestionRun{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SourceID:  sourceID,
		StartedAt: now,
		Status:    domain.RunRunning,
	}
	if err := store.InsertRun(ctx, l.db, r); err != nil {
		return domain.IngestionRun{}, fmt.Errorf("open run for source %d: %w", sourceID, err)
	}
	return r, nil
}

func (l *Ledger) Succeed(ctx context.Context, r domain.IngestionRun, c Counts) (domain.IngestionRun, error) {
	return l.close(ctx, r, domain.RunSuccess, c, "")
}

// Fail closes r as failed. Counts describe whatever was reconciled before
// the failure; nothing is rolled back.
func (l *Ledger) Fail(ctx context.Context, r domain.IngestionRun, c Counts, reason string) (domain.IngestionRun, error) {
	if reason == "" {
		reason = "failed"
	}
	return l.close(ctx, r, domain.RunFailed, c, reason)
}

func (l *Ledger) close(ctx context.Context, r domain.IngestionRun, status domain.RunStatus, c Counts, reason string) (domain.IngestionRun, error) {
	if c.Created+c.Updated > c.Extracted {
		return r, fmt.Errorf("close run %s: created %d + updated %d exceeds extracted %d", r.ID, c.Created, c.Updated, c.Extracted)
	}
	now := l.clock.Now()
	r.Status = status
	r.FinishedAt = &now
	r.ItemsExtracted, r.ItemsCreated, r.ItemsUpdated = c.Extracted, c.Created, c.Updated
	r.Error = reason

	ok, err := store.FinishRun(ctx, l.db, r)
	if err != nil {
		return r, fmt.Errorf("close run %s: %w", r.ID, err)
	}
	if !ok {
		return r, fmt.Errorf("close run %s: %w", r.ID, ErrAlreadyClosed)
	}
	return r, nil
}

// CloseStale fails runs that have been running longer than after.
func (l *Ledger) CloseStale(ctx context.Context, after time.Duration) (int64, error) {
	now := l.clock.Now()
	n, err := store.CloseStaleRuns(ctx, l.db, now.Add(-after), now, ReasonStale)
	if err != nil {
		return 0, fmt.Errorf("close stale runs: %w", err)
	}
	if n > 0 {
		logger.Warn("[ledger] closed stale runs", zap.Int64("count", n), zap.Duration("after", after))
	}
	return n, nil
}

// CloseAllOpen fails every running run. Only safe while no worker can be
// holding one, i.e. at startup under the data-dir lock.
func (l *Ledger) CloseAllOpen(ctx context.Context) (int64, error) {
	now := l.clock.Now()
	// cutoff just past now so runs started this instant are included
	n, err := store.CloseStaleRuns(ctx, l.db, now.Add(time.Nanosecond), now, ReasonRestarted)
	if err != nil {
		return 0, fmt.Errorf("close abandoned runs: %w", err)
	}
	if n > 0 {
		logger.Warn("[ledger] closed runs abandoned by a previous process", zap.Int64("count", n))
	}
	return n, nil
}

func (l *Ledger) HasOpen(ctx context.Context, sourceID int64) (bool, error) {
	return store.HasOpenRun(ctx, l.db, sourceID)
}

func (l *Ledger) Recent(ctx context.Context, sourceID int64, limit int) ([]domain.IngestionRun, error) {
	return store.ListRuns(ctx, l.db, sourceID, limit)
}
