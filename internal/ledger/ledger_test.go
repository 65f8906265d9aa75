package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/clock"
	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/store"
	"github.com/shalom-dev-bot/astremina/internal/store/storetest"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestOpenAndCloseExactlyOnce(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "jumia", domain.FamilyJumia, "https://jumia.cm")
	clk := clock.NewFixed(t0)
	l := New(db, clk)

	run, err := l.Open(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, run.Status)
	assert.Len(t, run.ID, 26)

	open, err := l.HasOpen(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, open)

	clk.Advance(3 * time.Minute)
	done, err := l.Succeed(ctx, run, Counts{Extracted: 5, Created: 2, Updated: 3})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, done.Status)

	_, err = l.Fail(ctx, run, Counts{}, "late failure")
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	got, err := store.GetRun(ctx, db, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, got.Status)
	assert.Equal(t, 5, got.ItemsExtracted)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(t0.Add(3*time.Minute)))

	open, err = l.HasOpen(ctx, src.ID)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestCloseRejectsImpossibleCounts(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "jumia", domain.FamilyJumia, "https://jumia.cm")
	l := New(db, clock.NewFixed(t0))

	run, err := l.Open(ctx, src.ID)
	require.NoError(t, err)
	_, err = l.Succeed(ctx, run, Counts{Extracted: 1, Created: 1, Updated: 1})
	assert.Error(t, err)

	// The run is still open and can be closed properly.
	_, err = l.Fail(ctx, run, Counts{Extracted: 1}, "")
	require.NoError(t, err)
	got, err := store.GetRun(ctx, db, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Error)
}

func TestStaleSweeps(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	src := storetest.Source(t, db, "jumia", domain.FamilyJumia, "https://jumia.cm")
	other := storetest.Source(t, db, "expat", domain.FamilyExpat, "https://expat.cm")
	clk := clock.NewFixed(t0)
	l := New(db, clk)

	old, err := l.Open(ctx, src.ID)
	require.NoError(t, err)
	clk.Advance(90 * time.Minute)
	fresh, err := l.Open(ctx, other.ID)
	require.NoError(t, err)
	clk.Advance(time.Hour)

	n, err := l.CloseStale(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.GetRun(ctx, db, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, got.Status)
	assert.Equal(t, ReasonStale, got.Error)

	n, err = l.CloseAllOpen(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err = store.GetRun(ctx, db, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonRestarted, got.Error)

	runs, err := l.Recent(ctx, 0, 10)
	require.NoError(t, err)
	for _, r := range runs {
		assert.True(t, r.Status.Terminal(), r.ID)
	}
}
