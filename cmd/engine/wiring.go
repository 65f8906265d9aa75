package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/alerts"
	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/config"
	"github.com/shalom-dev-bot/astremina/internal/contracts"
	"github.com/shalom-dev-bot/astremina/internal/dispatch"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/events"
	"github.com/shalom-dev-bot/astremina/internal/geocode"
	"github.com/shalom-dev-bot/astremina/internal/ingest"
	"github.com/shalom-dev-bot/astremina/internal/ledger"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/normalize"
	"github.com/shalom-dev-bot/astremina/internal/notify"
	"github.com/shalom-dev-bot/astremina/internal/reconcile"
	"github.com/shalom-dev-bot/astremina/internal/scheduler"
	"github.com/shalom-dev-bot/astremina/internal/scrape"
	"github.com/shalom-dev-bot/astremina/internal/scrape/fetch"
	"github.com/shalom-dev-bot/astremina/internal/scrape/types"
	"github.com/shalom-dev-bot/astremina/internal/scrape/util"
	"github.com/shalom-dev-bot/astremina/internal/secrets"
	"github.com/shalom-dev-bot/astremina/internal/stats"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

// engine holds the long-lived components main wires together.
type engine struct {
	db     *store.DB
	clock  clock.Clock
	loc    *time.Location
	hub    *events.Hub
	ledger *ledger.Ledger
	ingest *ingest.Service

	ingestQ *dispatch.Queue
	geoQ    *dispatch.Queue
	redis   *redis.Client

	matcher    *alerts.Matcher
	sweeper    *contracts.Sweeper
	aggregator *stats.Aggregator
}

func buildEngine(ctx context.Context, cfg config.Config, dataDir string) (*engine, error) {
	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.App.Timezone, err)
	}

	db, err := store.Open(filepath.Join(dataDir, "astremina.db"))
	if err != nil {
		return nil, err
	}
	e := &engine{db: db, clock: clock.System(), loc: loc, hub: events.NewHub()}

	if err := store.Migrate(db.Pool); err != nil {
		e.close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	e.ledger = ledger.New(db.Pool, e.clock)
	if _, err := e.ledger.CloseAllOpen(ctx); err != nil {
		e.close()
		return nil, err
	}

	if err := seedSources(ctx, db.Pool, config.SourcesPath(dataDir), e.clock.Now()); err != nil {
		e.close()
		return nil, err
	}

	tokens, err := e.buildTokens(ctx, cfg)
	if err != nil {
		e.close()
		return nil, err
	}

	sender, err := buildSender(ctx, cfg.Notify)
	if err != nil {
		e.close()
		return nil, err
	}

	e.ingestQ = dispatch.NewQueue("ingest", cfg.Dispatch.PoolSize, cfg.Dispatch.QueueSize)
	e.geoQ = dispatch.NewQueue("geocode", cfg.Dispatch.GeocodePoolSize, cfg.Dispatch.GeocodeQueueSize)

	lim := util.NewHostLimiter(cfg.Fetch.PerHostRPS, 1)
	httpGet := fetch.New(fetch.Config{
		Timeout:      cfg.Fetch.Timeout,
		UserAgent:    cfg.Fetch.UserAgent,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	}, lim)
	render := &fetch.Renderer{Timeout: cfg.Fetch.RenderTimeout, Limiter: lim}

	deps := ingest.Deps{
		Ledger:     e.ledger,
		Reconciler: reconcile.New(db.Pool, e.clock),
		Queue:      e.ingestQ,
		Tokens:     tokens,
		Build: func(src domain.Source) (types.Fetcher, error) {
			return scrape.ForSource(src, scrape.Deps{HTTP: httpGet, Render: render, Password: secrets.GetIMAPPassword})
		},
		Clock:  e.clock,
		Events: e.hub,
	}
	if cfg.Geocode.Enabled {
		// Nominatim asks for at most one request per second.
		nom := geocode.NewNominatim(geocode.Config{
			BaseURL:   cfg.Geocode.BaseURL,
			UserAgent: cfg.Fetch.UserAgent,
			Email:     cfg.Geocode.Email,
			Timeout:   cfg.Geocode.Timeout,
		}, util.NewHostLimiter(1, 1))
		deps.Geocoder = geocode.NewEnricher(db.Pool, nom, e.geoQ, e.clock, cfg.App.Country, cfg.Geocode.Timeout)
	}

	e.ingest = ingest.New(db.Pool, deps, ingest.Options{
		FetchTimeout: max(cfg.Fetch.Timeout, cfg.Fetch.RenderTimeout),
		Normalize:    normalize.Options{Currency: cfg.App.Currency, Gazetteer: cfg.Normalize.Gazetteer},
	})

	e.matcher = alerts.NewMatcher(db.Pool, sender, e.clock, e.hub, alerts.Options{
		Window:  cfg.Alerts.Window,
		Cap:     cfg.Alerts.Cap,
		Workers: cfg.Alerts.Workers,
		Subject: cfg.Alerts.Subject,
		SiteURL: cfg.App.SiteURL,
	})
	e.sweeper = contracts.NewSweeper(db.Pool, e.clock, loc, e.hub)
	e.aggregator = stats.NewAggregator(db.Pool, e.clock, loc)
	return e, nil
}

func (e *engine) buildTokens(ctx context.Context, cfg config.Config) (dispatch.Tokens, error) {
	if cfg.Dispatch.TokenBackend != "redis" {
		return dispatch.NewMemoryTokens(), nil
	}
	client, err := dispatch.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	e.redis = client
	logger.Info("[engine] run tokens in redis", zap.String("addr", cfg.Redis.Addr))
	return dispatch.NewRedisTokens(client, cfg.Redis.TokenTTL), nil
}

func buildSender(ctx context.Context, n config.NotifyConfig) (notify.Sender, error) {
	if n.Driver != "ses" {
		return notify.LogSender{}, nil
	}
	secret := n.SecretAccessKey
	if secret == "" && n.AccessKeyID != "" {
		s, err := secrets.GetSESSecret(n.AccessKeyID)
		if err != nil && !errors.Is(err, secrets.ErrNotFound) {
			return nil, err
		}
		secret = s
	}
	return notify.NewSES(ctx, notify.SESConfig{
		From:            n.From,
		Region:          n.Region,
		AccessKeyID:     n.AccessKeyID,
		SecretAccessKey: secret,
		Timeout:         n.Timeout,
	})
}

// seedSources upserts sources.yml into the registry. Sources already in the
// registry but absent from the file are left alone.
func seedSources(ctx context.Context, db *sql.DB, path string, now time.Time) error {
	sf, err := config.LoadSources(path)
	if err != nil {
		return err
	}
	if len(sf.Sources) == 0 {
		return nil
	}
	if err := config.ValidateSources(sf); err != nil {
		return err
	}
	err = store.WithTx(ctx, db, func(tx *sql.Tx) error {
		for _, seed := range sf.Sources {
			src, err := seed.ToDomain()
			if err != nil {
				return err
			}
			if _, err := store.UpsertSource(ctx, tx, src, now); err != nil {
				return fmt.Errorf("seed source %q: %w", src.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("[engine] sources seeded", zap.Int("count", len(sf.Sources)), zap.String("path", path))
	return nil
}

func (e *engine) jobs(cfg config.Config) []scheduler.Job {
	return []scheduler.Job{
		{Name: "alerts", Interval: cfg.Scheduler.AlertsInterval, Task: func(ctx context.Context) error {
			_, err := e.matcher.Run(ctx)
			return err
		}},
		{Name: "contracts", Interval: cfg.Scheduler.ContractsInterval, Immediate: true, Task: func(ctx context.Context) error {
			_, err := e.sweeper.Run(ctx)
			return err
		}},
		{Name: "stats", Interval: cfg.Scheduler.StatsInterval, Task: func(ctx context.Context) error {
			_, err := e.aggregator.Run(ctx)
			return err
		}},
		{Name: "stale-runs", Interval: cfg.Scheduler.StaleRunAfter, Task: func(ctx context.Context) error {
			_, err := e.ledger.CloseStale(ctx, cfg.Scheduler.StaleRunAfter)
			return err
		}},
	}
}

func (e *engine) queueStats() []func() dispatch.QueueStats {
	return []func() dispatch.QueueStats{e.ingestQ.Stats, e.geoQ.Stats}
}

// stopQueues drains ingestion before geocoding: finishing runs may still
// submit geocode requests.
func (e *engine) stopQueues(ctx context.Context) {
	for _, q := range []*dispatch.Queue{e.ingestQ, e.geoQ} {
		if q == nil {
			continue
		}
		if err := q.Stop(ctx); err != nil {
			logger.Warn("[engine] queue did not drain", zap.Error(err))
		}
	}
}

func (e *engine) close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if err := e.db.Close(); err != nil {
		logger.Warn("[engine] close db", zap.Error(err))
	}
}
