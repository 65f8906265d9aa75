package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/events"
	"github.com/shalom-dev-bot/astremina/internal/ledger"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/normalize"
	"github.com/shalom-dev-bot/astremina/internal/reconcile"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

type startedEvent struct {
	RunID    string `json:"run_id"`
	SourceID int64  `json:"source_id"`
	Source   string `json:"source"`
}

type createdEvent struct {
	EntryID  string `json:"entry_id"`
	Slug     string `json:"slug"`
	SourceID int64  `json:"source_id"`
	Title    string `json:"title"`
	City     string `json:"city"`
}

// tally is what one pass over the records produced.
type tally struct {
	ledger.Counts
	Skipped   int
	Conflicts int
}

// Run executes one run of src synchronously. The run is opened in the
// ledger first and always closed, whatever happens in between.
func (s *Service) Run(ctx context.Context, src domain.Source) (domain.IngestionRun, error) {
	// A run canceled while still queued is recorded all the same.
	openCtx, cancelOpen := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CloseTimeout)
	run, err := s.deps.Ledger.Open(openCtx, src.ID)
	cancelOpen()
	if err != nil {
		logger.Error(err, zap.Int64("source_id", src.ID))
		return run, err
	}
	log := logger.Named("ingest").With(zap.String("run_id", run.ID), zap.String("source", src.Name))
	log.Info("[ingest] run started", zap.String("family", string(src.Family)))
	s.deps.Events.Emit(events.TypeRunStarted, startedEvent{RunID: run.ID, SourceID: src.ID, Source: src.Name})

	started := time.Now()
	t, runErr := s.execute(ctx, src, log)

	// The run context may be canceled by now; the ledger still has to close.
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CloseTimeout)
	defer cancel()

	var closeErr error
	if runErr == nil {
		run, closeErr = s.deps.Ledger.Succeed(closeCtx, run, t.Counts)
	} else {
		run, closeErr = s.deps.Ledger.Fail(closeCtx, run, t.Counts, failureReason(ctx, runErr))
	}
	if closeErr != nil {
		log.Error("[ingest] close run", zap.Error(closeErr))
	}
	if err := store.RecordLastRun(closeCtx, s.db, src.ID, s.deps.Clock.Now()); err != nil {
		log.Warn("[ingest] record last run", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("extracted", t.Extracted),
		zap.Int("created", t.Created),
		zap.Int("updated", t.Updated),
		zap.Int("skipped", t.Skipped),
		zap.Int("conflicts", t.Conflicts),
		zap.Duration("took", time.Since(started)),
	}
	if runErr != nil {
		log.Warn("[ingest] run failed", append(fields, zap.Error(runErr))...)
	} else {
		log.Info("[ingest] run finished", fields...)
	}
	s.deps.Events.Emit(events.TypeRunFinished, run)

	if runErr == nil {
		runErr = closeErr
	}
	return run, runErr
}

func failureReason(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ledger.ReasonCanceled
	}
	return err.Error()
}

func (s *Service) execute(ctx context.Context, src domain.Source, log *zap.Logger) (tally, error) {
	var t tally
	if err := ctx.Err(); err != nil {
		return t, err
	}

	fetcher, err := s.deps.Build(src)
	if err != nil {
		return t, fmt.Errorf("build adapter: %w", err)
	}

	fctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	res, err := fetcher.Fetch(fctx)
	cancel()
	if err != nil {
		return t, fmt.Errorf("%s: %w", fetcher.Name(), err)
	}

	complete := false
	if res.Finalize != nil {
		defer func() {
			fin, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CloseTimeout)
			defer cancel()
			if err := res.Finalize(fin, complete); err != nil {
				log.Warn("[ingest] finalize", zap.Error(err))
			}
		}()
	}

	t.Extracted = len(res.Records)
	for i, raw := range res.Records {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		if raw.Title == "" && raw.URL == "" {
			t.Skipped++
			log.Debug("[ingest] empty record skipped", zap.Int("index", i))
			continue
		}

		n := normalize.Listing(raw, src, s.opts.Normalize)
		out, err := s.deps.Reconciler.Reconcile(ctx, n)
		if err != nil {
			if errors.Is(err, reconcile.ErrConflict) {
				t.Conflicts++
				logger.Error(err,
					zap.String("kind", "data_quality"),
					zap.Int64("source_id", src.ID),
					zap.String("url", n.URL),
					zap.String("title", n.Title),
				)
				continue
			}
			if ctx.Err() != nil {
				return t, ctx.Err()
			}
			return t, fmt.Errorf("reconcile record %d: %w", i, err)
		}

		if !out.Created {
			t.Updated++
			continue
		}
		t.Created++
		s.deps.Events.Emit(events.TypeEntryCreated, createdEvent{
			EntryID: out.Entry.ID, Slug: out.Entry.Slug, SourceID: src.ID,
			Title: out.Entry.Title, City: out.Entry.City,
		})
		if s.deps.Geocoder != nil && out.Entry.Address != "" {
			s.deps.Geocoder.Enqueue(out.Entry.ID)
		}
	}

	complete = t.Conflicts == 0
	return t, nil
}
