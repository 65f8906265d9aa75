package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/normalize"
	"github.com/shalom-dev-bot/astremina/internal/store"
	"github.com/shalom-dev-bot/astremina/internal/store/storetest"
)

var (
	t0   = time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	opts = normalize.Options{Currency: "XAF", Gazetteer: []string{"Douala", "Yaoundé"}}
)

func listing(src domain.Source, title, price, loc, url string) domain.NormalizedListing {
	return normalize.Listing(domain.RawListing{
		Title: title, PriceText: price, LocationText: loc, URL: url, TypeHint: "villa",
	}, src, opts)
}

func TestCreateThenUpdateByURL(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "jumia", domain.FamilyJumia, "https://jumia.cm")
	clk := clock.NewFixed(t0)
	r := New(db, clk)

	first, err := r.Reconcile(ctx, listing(src, "Villa Bonapriso", "450 000", "Bonapriso, Douala", "https://jumia.cm/v/1"))
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, domain.StatusPublished, first.Entry.Status)
	assert.Equal(t, domain.IngestionActor, first.Entry.OwnerID)
	assert.Equal(t, "Douala", first.Entry.City)
	assert.Regexp(t, `^villa-bonapriso-[0-9a-f]{8}$`, first.Entry.Slug)

	clk.Advance(time.Hour)
	// Same URL, new content: the fingerprint changes but the URL wins.
	second, err := r.Reconcile(ctx, listing(src, "Villa Bonapriso rénovée", "500 000", "Bonapriso, Douala", "https://jumia.cm/v/1"))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, "url", second.MatchedBy)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.NotEqual(t, first.Entry.Fingerprint, second.Entry.Fingerprint)

	got, err := store.GetEntry(ctx, db, first.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Villa Bonapriso rénovée", got.Title)
	assert.Equal(t, int64(500000), *got.Price)
	assert.Equal(t, first.Entry.Slug, got.Slug)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Hour)))

	n, err := store.CountEntries(ctx, db, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFingerprintFallbackWithoutURL(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "feed", domain.FamilyFeed, "https://a.cm/rss")
	r := New(db, clock.NewFixed(t0))

	a := listing(src, "Terrain 500m2", "12 000 000", "Kribi", "")
	a.Description = "v1"
	first, err := r.Reconcile(ctx, a)
	require.NoError(t, err)
	require.True(t, first.Created)

	b := listing(src, "Terrain 500m2", "12,000,000 FCFA", "Kribi", "")
	b.Description = "v2"
	second, err := r.Reconcile(ctx, b)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, "fingerprint", second.MatchedBy)
	assert.Equal(t, "v2", second.Entry.Description)

	// Another source never matches, even with the same fingerprint.
	other := storetest.Source(t, db, "other", domain.FamilyGeneric, "https://b.cm")
	third, err := r.Reconcile(ctx, listing(other, "Terrain 500m2", "12 000 000", "Kribi", ""))
	require.NoError(t, err)
	assert.True(t, third.Created)
}

func TestRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "expat", domain.FamilyExpat, "https://expat.cm")
	r := New(db, clock.NewFixed(t0))

	batch := []domain.NormalizedListing{
		listing(src, "Studio Bastos", "150 000", "Bastos, Yaoundé", "https://expat.cm/1"),
		listing(src, "Duplex Akwa", "800 000", "Akwa, Douala", "https://expat.cm/2"),
		listing(src, "Chambre", "", "Douala", ""),
	}
	for round := 0; round < 2; round++ {
		created := 0
		for _, n := range batch {
			out, err := r.Reconcile(ctx, n)
			require.NoError(t, err)
			if out.Created {
				created++
			}
		}
		if round == 0 {
			assert.Equal(t, 3, created)
		} else {
			assert.Zero(t, created)
		}
	}
	n, err := store.CountEntries(ctx, db, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpdateKeepsPartnerOwnerStatusAndCoordinates(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "jumia", domain.FamilyJumia, "https://jumia.cm")
	r := New(db, clock.NewFixed(t0))

	n := listing(src, "Villa", "1", "Douala", "https://jumia.cm/v/9")
	first, err := r.Reconcile(ctx, n)
	require.NoError(t, err)

	_, err = store.SetCoordinatesIfMissing(ctx, db, first.Entry.ID, 4.05, 9.7, t0)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE catalog_entries SET status = 'disabled', owner_id = 'partner:7' WHERE id = ?`, first.Entry.ID)
	require.NoError(t, err)

	_, err = r.Reconcile(ctx, n)
	require.NoError(t, err)

	got, err := store.GetEntry(ctx, db, first.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisabled, got.Status)
	assert.Equal(t, "partner:7", got.OwnerID)
	require.True(t, got.Geocoded())
	assert.InDelta(t, 4.05, *got.Latitude, 1e-9)
}

func TestUpdateRepublishesIngestionEntries(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "jumia", domain.FamilyJumia, "https://jumia.cm")
	r := New(db, clock.NewFixed(t0))

	n := listing(src, "Villa", "1", "Douala", "https://jumia.cm/v/10")
	first, err := r.Reconcile(ctx, n)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE catalog_entries SET status = 'draft' WHERE id = ?`, first.Entry.ID)
	require.NoError(t, err)

	again, err := r.Reconcile(ctx, n)
	require.NoError(t, err)
	assert.False(t, again.Created)

	got, err := store.GetEntry(ctx, db, first.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, got.Status)
	assert.Equal(t, domain.IngestionActor, got.OwnerID)
}

func TestSlugCollisionIsAConflict(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "jumia", domain.FamilyJumia, "https://jumia.cm")
	r := New(db, clock.NewFixed(t0))

	ids := []string{"aaaaaaaa-0000-0000-0000-000000000001", "aaaaaaaa-0000-0000-0000-000000000002"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	_, err := r.Reconcile(ctx, listing(src, "Villa", "1", "Douala", "https://jumia.cm/v/1"))
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, listing(src, "Villa", "2", "Douala", "https://jumia.cm/v/2"))
	assert.ErrorIs(t, err, ErrConflict)

	n, err := store.CountEntries(ctx, db, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSlugFor(t *testing.T) {
	assert.Equal(t, "listing-12345678", slugFor("!!!", "12345678-aaaa"))
	long := slugFor("a very long title that keeps going and going well past the limit of eighty characters total", "abcdef12")
	assert.LessOrEqual(t, len(long), maxSlugBase+9)
}
