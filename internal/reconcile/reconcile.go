// Package reconcile resolves a normalized listing against the catalog and
// creates or fully replaces the matching entry.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/normalize"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

// ErrConflict marks a record whose write hit a uniqueness constraint. The
// caller skips it as a data-quality problem and carries on with the run.
var ErrConflict = errors.New("catalog key conflict")

type Outcome struct {
	Entry   domain.CatalogEntry
	Created bool
	// MatchedBy is "url", "fingerprint" or "" for a new entry.
	MatchedBy string
}

type Reconciler struct {
	db    *sql.DB
	clock clock.Clock
	newID func() string
}

func New(db *sql.DB, clk clock.Clock) *Reconciler {
	if clk == nil {
		clk = clock.System()
	}
	return &Reconciler{db: db, clock: clk, newID: uuid.NewString}
}

// Reconcile looks the listing up by (source, URL) when it has a URL, then by
// (source, fingerprint). A match is overwritten in place; no match creates a
// published entry owned by the ingestion actor. Each call is one transaction.
func (r *Reconciler) Reconcile(ctx context.Context, n domain.NormalizedListing) (Outcome, error) {
	var out Outcome
	err := store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		out, err = r.reconcileTx(ctx, tx, n)
		return err
	})
	if err != nil {
		if store.IsConstraint(err) {
			return Outcome{}, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return Outcome{}, err
	}
	return out, nil
}

func (r *Reconciler) reconcileTx(ctx context.Context, tx *sql.Tx, n domain.NormalizedListing) (Outcome, error) {
	now := r.clock.Now()

	existing, matchedBy, err := r.lookup(ctx, tx, n)
	switch {
	case err == nil:
		existing.ApplyListing(n)
		// a scrape republishes its own entries; partner entries keep the
		// status the contract sweep gave them
		if existing.OwnerID == domain.IngestionActor {
			existing.Status = domain.StatusPublished
		}
		existing.UpdatedAt = now
		if err := store.UpsertEntry(ctx, tx, existing); err != nil {
			return Outcome{}, err
		}
		return Outcome{Entry: existing, MatchedBy: matchedBy}, nil
	case !errors.Is(err, store.ErrNotFound):
		return Outcome{}, err
	}

	id := r.newID()
	e := domain.CatalogEntry{
		ID:        id,
		Slug:      slugFor(n.Title, id),
		Status:    domain.StatusPublished,
		OwnerID:   domain.IngestionActor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.ApplyListing(n)
	if err := store.UpsertEntry(ctx, tx, e); err != nil {
		return Outcome{}, err
	}
	return Outcome{Entry: e, Created: true}, nil
}

func (r *Reconciler) lookup(ctx context.Context, q store.Querier, n domain.NormalizedListing) (domain.CatalogEntry, string, error) {
	if n.URL != "" {
		e, err := store.FindBySourceAndURL(ctx, q, n.SourceID, n.URL)
		if err == nil {
			return e, "url", nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.CatalogEntry{}, "", err
		}
	}
	e, err := store.FindBySourceAndFingerprint(ctx, q, n.SourceID, n.Fingerprint)
	if err != nil {
		return domain.CatalogEntry{}, "", err
	}
	return e, "fingerprint", nil
}

const maxSlugBase = 80

func slugFor(title, id string) string {
	base := normalize.Slugify(title)
	if len(base) > maxSlugBase {
		base = strings.TrimRight(base[:maxSlugBase], "-")
	}
	if base == "" {
		base = "listing"
	}
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return base + "-" + suffix
}
