// Package ingest runs one source end to end: fetch, normalize, reconcile,
// and record the run in the ledger.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/dispatch"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/events"
	"github.com/shalom-dev-bot/astremina/internal/ledger"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/normalize"
	"github.com/shalom-dev-bot/astremina/internal/reconcile"
	"github.com/shalom-dev-bot/astremina/internal/scrape/types"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

var (
	ErrSourceInactive = errors.New("source is inactive")
	ErrNotRunning     = errors.New("source has no run in flight")
)

// FetcherFactory builds the adapter for a source; scrape.ForSource in
// production.
type FetcherFactory func(src domain.Source) (types.Fetcher, error)

// Submitter is the part of dispatch.Queue the service uses.
type Submitter interface {
	Submit(fn func()) error
}

// Geocoder receives ids of entries created with an address.
type Geocoder interface {
	Enqueue(entryID string)
}

type Deps struct {
	Ledger     *ledger.Ledger
	Reconciler *reconcile.Reconciler
	Queue      Submitter
	Tokens     dispatch.Tokens
	Build      FetcherFactory
	// Geocoder may be nil when geocoding is disabled.
	Geocoder Geocoder
	Clock    clock.Clock
	Events   events.Publisher
}

type Options struct {
	FetchTimeout time.Duration
	// CloseTimeout bounds ledger and cleanup writes made after a run was
	// canceled.
	CloseTimeout time.Duration
	Normalize    normalize.Options
}

type Service struct {
	db   *sql.DB
	deps Deps
	opts Options

	base     context.Context
	stopBase context.CancelFunc

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

func New(db *sql.DB, deps Deps, opts Options) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Events == nil {
		deps.Events = events.Discard
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = 10 * time.Second
	}
	base, stop := context.WithCancel(context.Background())
	return &Service{
		db: db, deps: deps, opts: opts,
		base: base, stopBase: stop,
		cancels: map[int64]context.CancelFunc{},
	}
}

type queuedEvent struct {
	SourceID int64  `json:"source_id"`
	Source   string `json:"source"`
}

// Enqueue validates the source, takes its run token and queues one run.
// It returns as soon as the run is queued.
func (s *Service) Enqueue(ctx context.Context, sourceID int64) error {
	src, err := store.GetSource(ctx, s.db, sourceID)
	if err != nil {
		return fmt.Errorf("source %d: %w", sourceID, err)
	}
	if !src.Active {
		return fmt.Errorf("source %d: %w", sourceID, ErrSourceInactive)
	}

	release, err := s.deps.Tokens.Acquire(ctx, sourceID)
	if err != nil {
		return err
	}
	releaseNow := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CloseTimeout)
		defer cancel()
		if err := release(rctx); err != nil {
			logger.Warn("[ingest] release token", zap.Int64("source_id", sourceID), zap.Error(err))
		}
	}

	// A run left open by another process still counts as in flight.
	open, err := s.deps.Ledger.HasOpen(ctx, sourceID)
	if err != nil {
		releaseNow()
		return err
	}
	if open {
		releaseNow()
		return fmt.Errorf("source %d: %w", sourceID, dispatch.ErrAlreadyRunning)
	}

	runCtx, cancel := context.WithCancel(s.base)
	s.mu.Lock()
	s.cancels[sourceID] = cancel
	s.mu.Unlock()

	err = s.deps.Queue.Submit(func() {
		defer releaseNow()
		defer s.forget(sourceID)
		_, _ = s.Run(runCtx, src)
	})
	if err != nil {
		s.forget(sourceID)
		releaseNow()
		return err
	}

	logger.Info("[ingest] run queued", zap.Int64("source_id", sourceID), zap.String("source", src.Name))
	s.deps.Events.Emit(events.TypeRunQueued, queuedEvent{SourceID: src.ID, Source: src.Name})
	return nil
}

// Cancel stops the in-flight or queued run of a source. The run is closed
// as failed with the cancellation marker.
func (s *Service) Cancel(sourceID int64) error {
	s.mu.Lock()
	cancel, ok := s.cancels[sourceID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("source %d: %w", sourceID, ErrNotRunning)
	}
	cancel()
	return nil
}

// CancelAll cancels every run and refuses to start queued ones. Used on
// shutdown.
func (s *Service) CancelAll() {
	s.stopBase()
}

// InFlight lists the sources with a queued or running run.
func (s *Service) InFlight() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.cancels))
	for id := range s.cancels {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) forget(sourceID int64) {
	s.mu.Lock()
	cancel, ok := s.cancels[sourceID]
	delete(s.cancels, sourceID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}
