// Package alerts notifies subscribers about entries published in the last
// window that match their saved filters.
package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/events"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/notify"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

type Options struct {
	Window  time.Duration
	Cap     int
	Workers int
	Subject string
	SiteURL string
}

type Matcher struct {
	db       *sql.DB
	sender   notify.Sender
	clock    clock.Clock
	pub      events.Publisher
	opts     Options
	composer Composer
}

func NewMatcher(db *sql.DB, sender notify.Sender, clk clock.Clock, pub events.Publisher, opts Options) *Matcher {
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Cap <= 0 {
		opts.Cap = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if clk == nil {
		clk = clock.System()
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Matcher{
		db: db, sender: sender, clock: clk, pub: pub, opts: opts,
		composer: Composer{Subject: opts.Subject, SiteURL: opts.SiteURL},
	}
}

type Result struct {
	Subscriptions int `json:"subscriptions"`
	Matched       int `json:"matched"`
	Notified      int `json:"notified"`
	Failed        int `json:"failed"`
}

type pending struct {
	sub     domain.AlertSubscription
	entries []domain.CatalogEntry
}

// Run matches every active subscription against one snapshot of the catalog,
// then sends one notification per subscription with at least one match.
// A subscription is stamped only after its notification went out.
func (m *Matcher) Run(ctx context.Context) (Result, error) {
	now := m.clock.Now()
	since := now.Add(-m.opts.Window)

	var (
		res  Result
		work []pending
	)
	err := store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		subs, err := store.ListActiveSubscriptions(ctx, tx)
		if err != nil {
			return fmt.Errorf("list subscriptions: %w", err)
		}
		res.Subscriptions = len(subs)
		for _, sub := range subs {
			entries, err := store.ListPublishedSince(ctx, tx, since, store.FilterFor(sub, m.opts.Cap))
			if err != nil {
				return fmt.Errorf("match subscription %d: %w", sub.ID, err)
			}
			if len(entries) > 0 {
				work = append(work, pending{sub: sub, entries: entries})
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Matched = len(work)

	var notified, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for _, p := range work {
		p := p
		g.Go(func() error {
			if err := m.deliver(gctx, p, now); err != nil {
				failed.Add(1)
				logger.Warn("[alerts] notification failed",
					zap.Int64("subscription_id", p.sub.ID), zap.Error(err))
				return nil
			}
			notified.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res.Notified = int(notified.Load())
	res.Failed = int(failed.Load())
	logger.Info("[alerts] cycle done",
		zap.Int("subscriptions", res.Subscriptions),
		zap.Int("matched", res.Matched),
		zap.Int("notified", res.Notified),
		zap.Int("failed", res.Failed),
	)
	m.pub.Emit(events.TypeAlertsSent, res)
	return res, ctx.Err()
}

func (m *Matcher) deliver(ctx context.Context, p pending, now time.Time) error {
	subject, body := m.composer.Compose(p.entries)
	if err := m.sender.Send(ctx, p.sub.OwnerEmail, subject, body); err != nil {
		return err
	}
	if err := store.StampNotified(ctx, m.db, p.sub.ID, now); err != nil {
		return fmt.Errorf("stamp subscription %d: %w", p.sub.ID, err)
	}
	return nil
}
