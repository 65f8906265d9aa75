package geocode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

// Submitter is the slice of dispatch.Queue the enricher needs.
type Submitter interface {
	Submit(fn func()) error
}

// Enricher geocodes newly created entries in the background. Failures are
// logged and never retried; the entry simply keeps null coordinates.
type Enricher struct {
	db       *sql.DB
	resolver Resolver
	queue    Submitter
	clock    clock.Clock
	country  string
	timeout  time.Duration
}

func NewEnricher(db *sql.DB, r Resolver, q Submitter, clk clock.Clock, country string, timeout time.Duration) *Enricher {
	if clk == nil {
		clk = clock.System()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Enricher{db: db, resolver: r, queue: q, clock: clk, country: country, timeout: timeout}
}

// Enqueue schedules Enrich for one entry. A full queue drops the request.
func (e *Enricher) Enqueue(entryID string) {
	err := e.queue.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.Enrich(ctx, entryID); err != nil {
			logger.Warn("[geocode] lookup failed", zap.String("entry_id", entryID), zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("[geocode] request dropped", zap.String("entry_id", entryID), zap.Error(err))
	}
}

// Enrich sets coordinates when the entry has an address and a city and is
// not geocoded yet. Calling it again on a geocoded entry does nothing.
func (e *Enricher) Enrich(ctx context.Context, entryID string) error {
	entry, err := store.GetEntry(ctx, e.db, entryID)
	if err != nil {
		return fmt.Errorf("load entry %s: %w", entryID, err)
	}
	if entry.Geocoded() || strings.TrimSpace(entry.Address) == "" || strings.TrimSpace(entry.City) == "" {
		return nil
	}

	pt, err := e.resolver.Resolve(ctx, e.query(entry))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			logger.Debug("[geocode] no match", zap.String("entry_id", entryID), zap.String("address", entry.Address))
			return nil
		}
		return err
	}

	set, err := store.SetCoordinatesIfMissing(ctx, e.db, entryID, pt.Lat, pt.Lon, e.clock.Now())
	if err != nil {
		return fmt.Errorf("store coordinates for %s: %w", entryID, err)
	}
	if set {
		logger.Debug("[geocode] coordinates set", zap.String("entry_id", entryID),
			zap.Float64("lat", pt.Lat), zap.Float64("lon", pt.Lon))
	}
	return nil
}

func (e *Enricher) query(entry domain.CatalogEntry) string {
	parts := []string{entry.Address}
	if !strings.Contains(strings.ToLower(entry.Address), strings.ToLower(entry.City)) {
		parts = append(parts, entry.City)
	}
	if e.country != "" {
		parts = append(parts, e.country)
	}
	return strings.Join(parts, ", ")
}
