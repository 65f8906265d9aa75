package store

import (
	"database/sql"
	"fmt"
)

// migrations[i] moves the schema from user_version i to i+1.
var migrations = [][]string{
	{
		`
CREATE TABLE IF NOT EXISTS sources (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  endpoint TEXT NOT NULL,
  family TEXT NOT NULL,
  extraction TEXT NOT NULL DEFAULT '{}',
  active INTEGER NOT NULL DEFAULT 1,
  interval_seconds INTEGER NOT NULL DEFAULT 0,
  last_run_at TEXT,
  created_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS catalog_entries (
  id TEXT PRIMARY KEY,
  slug TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  property_type TEXT NOT NULL DEFAULT 'unknown',
  price INTEGER,
  currency TEXT NOT NULL,
  city TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  bedrooms INTEGER,
  latitude REAL,
  longitude REAL,
  status TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  source_id INTEGER REFERENCES sources(id),
  external_url TEXT NOT NULL DEFAULT '',
  fingerprint TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`
CREATE UNIQUE INDEX IF NOT EXISTS idx_catalog_source_url
ON catalog_entries(source_id, external_url)
WHERE source_id IS NOT NULL AND external_url != '';`,
		`
CREATE INDEX IF NOT EXISTS idx_catalog_source_fingerprint
ON catalog_entries(source_id, fingerprint);`,
		`
CREATE INDEX IF NOT EXISTS idx_catalog_owner_status
ON catalog_entries(owner_id, status);`,
		`
CREATE INDEX IF NOT EXISTS idx_catalog_status_created
ON catalog_entries(status, created_at);`,
		`
CREATE TABLE IF NOT EXISTS ingestion_runs (
  id TEXT PRIMARY KEY,
  source_id INTEGER NOT NULL REFERENCES sources(id),
  started_at TEXT NOT NULL,
  finished_at TEXT,
  status TEXT NOT NULL,
  items_extracted INTEGER NOT NULL DEFAULT 0,
  items_created INTEGER NOT NULL DEFAULT 0,
  items_updated INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT '',
  CHECK (items_created + items_updated <= items_extracted)
);`,
		`
CREATE INDEX IF NOT EXISTS idx_runs_source_started
ON ingestion_runs(source_id, started_at);`,
		`
CREATE INDEX IF NOT EXISTS idx_runs_status
ON ingestion_runs(status);`,
		`
CREATE TABLE IF NOT EXISTS alert_subscriptions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  owner_id TEXT NOT NULL,
  owner_email TEXT NOT NULL,
  city TEXT NOT NULL DEFAULT '',
  property_type TEXT NOT NULL DEFAULT '',
  min_price INTEGER,
  max_price INTEGER,
  min_bedrooms INTEGER,
  active INTEGER NOT NULL DEFAULT 1,
  last_notified_at TEXT
);`,
		`
CREATE TABLE IF NOT EXISTS contracts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  partner_id TEXT NOT NULL,
  start_date TEXT NOT NULL,
  end_date TEXT NOT NULL,
  status TEXT NOT NULL,
  max_publications INTEGER
);`,
		`
CREATE INDEX IF NOT EXISTS idx_contracts_status_end
ON contracts(status, end_date);`,
	},
	{
		`
CREATE TABLE IF NOT EXISTS daily_stats (
  day TEXT PRIMARY KEY,
  total_entries INTEGER NOT NULL,
  published_entries INTEGER NOT NULL,
  new_entries INTEGER NOT NULL,
  active_sources INTEGER NOT NULL,
  active_contracts INTEGER NOT NULL,
  runs INTEGER NOT NULL,
  failed_runs INTEGER NOT NULL,
  computed_at TEXT NOT NULL
);`,
	},
}

// SchemaVersion is the user_version Migrate leaves behind.
func SchemaVersion() int { return len(migrations) }

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	for ; v < len(migrations); v++ {
		for _, stmt := range migrations[v] {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("migrate v%d: %w", v+1, err)
			}
		}
		// PRAGMA does not accept bound parameters
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d;`, v+1)); err != nil {
			return err
		}
	}

	return tx.Commit()
}
