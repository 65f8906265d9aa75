// Package poll turns the source registry into runs: every tick it computes
// the due set and enqueues one run per due source.
package poll

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/dispatch"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/scrape/types"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, sourceID int64) error
}

type Poller struct {
	db              *sql.DB
	enq             Enqueuer
	clock           clock.Clock
	defaultInterval time.Duration
	status          atomic.Value // types.ScrapeStatus
}

func New(db *sql.DB, enq Enqueuer, clk clock.Clock, defaultInterval time.Duration) *Poller {
	if clk == nil {
		clk = clock.System()
	}
	if defaultInterval <= 0 {
		defaultInterval = 24 * time.Hour
	}
	p := &Poller{db: db, enq: enq, clock: clk, defaultInterval: defaultInterval}
	p.status.Store(types.ScrapeStatus{})
	return p
}

func (p *Poller) Status() types.ScrapeStatus {
	return p.status.Load().(types.ScrapeStatus)
}

// Due returns the active sources whose interval has elapsed at now.
func (p *Poller) Due(ctx context.Context, now time.Time) ([]domain.Source, error) {
	active, err := store.ListActiveSources(ctx, p.db)
	if err != nil {
		return nil, err
	}
	due := active[:0]
	for _, src := range active {
		if src.Due(now, p.defaultInterval) {
			due = append(due, src)
		}
	}
	return due, nil
}

// Tick enqueues every due source. A source that is already running or does
// not fit in the queue is left for the next tick.
func (p *Poller) Tick(ctx context.Context) (queued int, err error) {
	st := p.Status()
	st.Running = true
	st.LastTickAt = p.clock.Now().Format(time.RFC3339)
	p.status.Store(st)

	defer func() {
		st := p.Status()
		st.Running = false
		st.LastQueued = queued
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
		p.status.Store(st)
	}()

	due, err := p.Due(ctx, p.clock.Now())
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	var n atomic.Int64
	var g errgroup.Group
	g.SetLimit(4)
	for _, src := range due {
		src := src
		g.Go(func() error {
			err := p.enq.Enqueue(ctx, src.ID)
			switch {
			case err == nil:
				n.Add(1)
			case errors.Is(err, dispatch.ErrAlreadyRunning):
				logger.Debug("[poll] still running", zap.String("source", src.Name))
			case errors.Is(err, dispatch.ErrQueueFull):
				logger.Warn("[poll] queue full, retrying next tick", zap.String("source", src.Name))
			default:
				logger.Warn("[poll] enqueue failed", zap.String("source", src.Name), zap.Error(err))
			}
			// best-effort: one source never blocks the others
			return nil
		})
	}
	_ = g.Wait()

	queued = int(n.Load())
	logger.Info("[poll] tick", zap.Int("due", len(due)), zap.Int("queued", queued))
	return queued, nil
}

// Start ticks every interval until ctx is done. It returns immediately.
func (p *Poller) Start(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("[poll] tick failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}
