package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/store"
	"github.com/shalom-dev-bot/astremina/internal/store/storetest"
)

var now = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type sent struct{ to, subject, body string }

type recordingSender struct {
	mu   sync.Mutex
	out  []sent
	fail map[string]bool
}

func (r *recordingSender) Send(_ context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[to] {
		return errors.New("mailbox unavailable")
	}
	r.out = append(r.out, sent{to, subject, body})
	return nil
}

func (r *recordingSender) to(addr string) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.out {
		if s.to == addr {
			out = append(out, s)
		}
	}
	return out
}

func addEntry(t *testing.T, db *sql.DB, src domain.Source, id, city string, price *int64, created time.Time) {
	t.Helper()
	require.NoError(t, store.UpsertEntry(context.Background(), db, domain.CatalogEntry{
		ID: id, Slug: id, Title: "Listing " + id, PropertyType: domain.TypeApartment,
		Price: price, Currency: "XAF", City: city, Status: domain.StatusPublished,
		OwnerID: domain.IngestionActor, SourceID: &src.ID, CreatedAt: created, UpdatedAt: created,
	}))
}

func addSub(t *testing.T, db *sql.DB, sub domain.AlertSubscription) int64 {
	t.Helper()
	sub.Active = true
	id, err := store.InsertSubscription(context.Background(), db, sub)
	require.NoError(t, err)
	return id
}

func TestPriceCeilingFilter(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "s", domain.FamilyGeneric, "https://s.cm")

	addEntry(t, db, src, "cheap", "Douala", storetest.Int64(900000), now.Add(-time.Hour))
	addEntry(t, db, src, "dear", "Douala", storetest.Int64(1100000), now.Add(-time.Hour))
	id := addSub(t, db, domain.AlertSubscription{OwnerID: "u1", OwnerEmail: "u1@example.cm", City: "Douala", MaxPrice: storetest.Int64(1000000)})

	sender := &recordingSender{}
	res, err := NewMatcher(db, sender, clock.NewFixed(now), nil, Options{SiteURL: "https://astremina.cm"}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Subscriptions: 1, Matched: 1, Notified: 1}, res)

	msgs := sender.to("u1@example.cm")
	require.Len(t, msgs, 1)
	assert.Equal(t, DefaultSubject, msgs[0].subject)
	assert.Contains(t, msgs[0].body, "- Listing cheap (Douala, 900000 XAF)\n")
	assert.NotContains(t, msgs[0].body, "dear")
	assert.Contains(t, msgs[0].body, "View more details at https://astremina.cm")

	stamped, err := store.GetSubscriptionNotifiedAt(ctx, db, id)
	require.NoError(t, err)
	require.NotNil(t, stamped)
	assert.True(t, stamped.Equal(now))
}

func TestNoMatchLeavesSubscriptionAlone(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "s", domain.FamilyGeneric, "https://s.cm")

	addEntry(t, db, src, "old", "Douala", storetest.Int64(500000), now.Add(-25*time.Hour))
	addEntry(t, db, src, "elsewhere", "Yaoundé", storetest.Int64(500000), now.Add(-time.Hour))
	id := addSub(t, db, domain.AlertSubscription{OwnerID: "u", OwnerEmail: "u@example.cm", City: "douala"})

	sender := &recordingSender{}
	res, err := NewMatcher(db, sender, clock.NewFixed(now), nil, Options{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
	assert.Empty(t, sender.out)

	stamped, err := store.GetSubscriptionNotifiedAt(ctx, db, id)
	require.NoError(t, err)
	assert.Nil(t, stamped)
}

func TestCapAndFailureIsolation(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "s", domain.FamilyGeneric, "https://s.cm")

	for i := 0; i < 14; i++ {
		addEntry(t, db, src, fmt.Sprintf("e%02d", i), "Douala", storetest.Int64(int64(100000+i)), now.Add(-time.Duration(i+1)*time.Minute))
	}
	ok := addSub(t, db, domain.AlertSubscription{OwnerID: "a", OwnerEmail: "a@example.cm"})
	broken := addSub(t, db, domain.AlertSubscription{OwnerID: "b", OwnerEmail: "b@example.cm", City: "Douala"})

	sender := &recordingSender{fail: map[string]bool{"b@example.cm": true}}
	res, err := NewMatcher(db, sender, clock.NewFixed(now), nil, Options{Workers: 2}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Notified)
	assert.Equal(t, 1, res.Failed)

	msgs := sender.to("a@example.cm")
	require.Len(t, msgs, 1)
	assert.Equal(t, 10, listingLines(msgs[0].body))
	assert.Contains(t, msgs[0].body, "Listing e00", "newest first")
	assert.NotContains(t, msgs[0].body, "Listing e13")

	stamped, err := store.GetSubscriptionNotifiedAt(ctx, db, ok)
	require.NoError(t, err)
	assert.NotNil(t, stamped)
	stamped, err = store.GetSubscriptionNotifiedAt(ctx, db, broken)
	require.NoError(t, err)
	assert.Nil(t, stamped, "a failed send is not stamped")
}

func listingLines(body string) int {
	n := 0
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "- ") {
			n++
		}
	}
	return n
}

func TestLine(t *testing.T) {
	e := domain.CatalogEntry{Title: "Studio meublé", City: "Yaoundé", Currency: "XAF"}
	assert.Equal(t, "- Studio meublé (Yaoundé, price on request)", Line(e))

	e.Price = storetest.Int64(150000)
	assert.Equal(t, "- Studio meublé (Yaoundé, 150000 XAF)", Line(e))
}
