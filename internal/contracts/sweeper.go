// Package contracts expires partner contracts past their end date and takes
// the partner's listings offline with them.
package contracts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/events"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

var ErrInverted = errors.New("contract ends before it starts")

type Sweeper struct {
	db    *sql.DB
	clock clock.Clock
	loc   *time.Location
	pub   events.Publisher
}

// NewSweeper evaluates "today" in loc. A nil loc means UTC.
func NewSweeper(db *sql.DB, clk clock.Clock, loc *time.Location, pub events.Publisher) *Sweeper {
	if clk == nil {
		clk = clock.System()
	}
	if loc == nil {
		loc = time.UTC
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Sweeper{db: db, clock: clk, loc: loc, pub: pub}
}

type Result struct {
	Expired  int   `json:"expired"`
	Disabled int64 `json:"disabled"`
	Skipped  int   `json:"skipped"`
}

// Today is the current calendar date in the sweeper's zone.
func (s *Sweeper) Today() time.Time {
	y, m, d := s.clock.Now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Run expires every active contract whose end date is before today. Each
// contract and its partner's entries change in one transaction.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	var res Result
	today := s.Today()

	due, err := store.ListActiveExpiredAsOf(ctx, s.db, today)
	if err != nil {
		return res, fmt.Errorf("list expired contracts: %w", err)
	}

	for _, c := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if c.Inverted() {
			res.Skipped++
			logger.Error(ErrInverted,
				zap.Int64("contract_id", c.ID),
				zap.String("partner_id", c.PartnerID),
				zap.String("start", c.StartDate.Format(domain.DateLayout)),
				zap.String("end", c.EndDate.Format(domain.DateLayout)),
			)
			continue
		}

		disabled, expired, err := s.expire(ctx, c)
		if err != nil {
			res.Skipped++
			logger.Warn("[contracts] expire failed", zap.Int64("contract_id", c.ID), zap.Error(err))
			continue
		}
		if !expired {
			continue
		}
		res.Expired++
		res.Disabled += disabled
		logger.Info("[contracts] expired",
			zap.Int64("contract_id", c.ID),
			zap.String("partner_id", c.PartnerID),
			zap.Int64("entries_disabled", disabled),
		)
	}

	if res.Expired > 0 {
		s.pub.Emit(events.TypeContractsExpired, res)
	}
	return res, nil
}

func (s *Sweeper) expire(ctx context.Context, c domain.Contract) (disabled int64, expired bool, err error) {
	err = store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		ok, err := store.MarkExpired(ctx, tx, c.ID)
		if err != nil || !ok {
			return err
		}
		expired = true
		disabled, err = store.DisablePublishedForOwner(ctx, tx, c.PartnerID, s.clock.Now())
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return disabled, expired, nil
}
