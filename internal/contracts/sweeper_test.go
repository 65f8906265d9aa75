package contracts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/store"
	"github.com/shalom-dev-bot/astremina/internal/store/storetest"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func partnerEntry(t *testing.T, db *sql.DB, id, owner string, status domain.Status) {
	t.Helper()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertEntry(context.Background(), db, domain.CatalogEntry{
		ID: id, Slug: id, Title: id, PropertyType: domain.TypeOffice, Currency: "XAF",
		Status: status, OwnerID: owner, CreatedAt: at, UpdatedAt: at,
	}))
}

func status(t *testing.T, db *sql.DB, id string) domain.Status {
	t.Helper()
	e, err := store.GetEntry(context.Background(), db, id)
	require.NoError(t, err)
	return e.Status
}

func TestExpiryCascadesToPartnerEntries(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)

	expiredID, err := store.InsertContract(ctx, db, domain.Contract{
		PartnerID: "partner-a", StartDate: day("2025-06-01"), EndDate: day("2026-05-03"), Status: domain.ContractActive,
	})
	require.NoError(t, err)
	currentID, err := store.InsertContract(ctx, db, domain.Contract{
		PartnerID: "partner-b", StartDate: day("2025-06-01"), EndDate: day("2026-05-04"), Status: domain.ContractActive,
	})
	require.NoError(t, err)

	partnerEntry(t, db, "a1", "partner-a", domain.StatusPublished)
	partnerEntry(t, db, "a2", "partner-a", domain.StatusDraft)
	partnerEntry(t, db, "b1", "partner-b", domain.StatusPublished)

	// 08:00 in Douala on May 4th is still May 4th; the contract ending on
	// the 3rd is past, the one ending today is not.
	clk := clock.NewFixed(time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC))
	s := NewSweeper(db, clk, time.FixedZone("WAT", 3600), nil)

	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Expired: 1, Disabled: 1}, res)

	c, err := store.GetContract(ctx, db, expiredID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractExpired, c.Status)
	c, err = store.GetContract(ctx, db, currentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractActive, c.Status)

	assert.Equal(t, domain.StatusDisabled, status(t, db, "a1"))
	assert.Equal(t, domain.StatusDraft, status(t, db, "a2"))
	assert.Equal(t, domain.StatusPublished, status(t, db, "b1"))

	res, err = s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res, "a second sweep finds nothing")
}

func TestInvertedContractIsSkipped(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)

	id, err := store.InsertContract(ctx, db, domain.Contract{
		PartnerID: "p", StartDate: day("2026-04-01"), EndDate: day("2026-03-01"), Status: domain.ContractActive,
	})
	require.NoError(t, err)
	partnerEntry(t, db, "p1", "p", domain.StatusPublished)

	res, err := NewSweeper(db, clock.NewFixed(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)), nil, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)

	c, err := store.GetContract(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractActive, c.Status)
	assert.Equal(t, domain.StatusPublished, status(t, db, "p1"))
}

func TestTodayUsesZone(t *testing.T) {
	// 23:30 UTC on the 3rd is already the 4th at UTC+1.
	clk := clock.NewFixed(time.Date(2026, 5, 3, 23, 30, 0, 0, time.UTC))
	s := NewSweeper(nil, clk, time.FixedZone("WAT", 3600), nil)
	assert.Equal(t, "2026-05-04", s.Today().Format(domain.DateLayout))
}
