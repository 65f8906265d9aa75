// Package storetest opens migrated throwaway databases for tests.
package storetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/store"
)

func New(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db.Pool))
	return db.Pool
}

// Source inserts an active source and returns it as stored.
func Source(t *testing.T, db *sql.DB, name string, family domain.Family, endpoint string) domain.Source {
	t.Helper()
	ctx := context.Background()
	id, err := store.UpsertSource(ctx, db, domain.Source{
		Name: name, Endpoint: endpoint, Family: family, Active: true,
	}, time.Now())
	require.NoError(t, err)
	src, err := store.GetSource(ctx, db, id)
	require.NoError(t, err)
	return src
}

func Int64(v int64) *int64 { return &v }
func Int(v int) *int       { return &v }
