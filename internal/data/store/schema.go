package store

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the newest migration version this build understands.
const SchemaVersion = 1

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS summaries (
  package TEXT NOT NULL,
  version TEXT NOT NULL,
  entity_count INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
  PRIMARY KEY (package, version)
);
CREATE TABLE IF NOT EXISTS change_records (
  package TEXT NOT NULL,
  old_version TEXT NOT NULL,
  new_version TEXT NOT NULL,
  qualified_name TEXT NOT NULL,
  change_kind TEXT NOT NULL,
  is_breaking INTEGER NOT NULL,
  payload TEXT NOT NULL,
  PRIMARY KEY (package, old_version, new_version, qualified_name)
);
CREATE INDEX IF NOT EXISTS idx_change_records_breaking ON change_records(package, is_breaking);
CREATE TABLE IF NOT EXISTS usage_records (
  package TEXT NOT NULL,
  version TEXT NOT NULL,
  client_file TEXT NOT NULL,
  line INTEGER NOT NULL,
  col INTEGER NOT NULL,
  qualified_name TEXT NOT NULL,
  call_arity INTEGER NOT NULL,
  confidence TEXT NOT NULL,
  call_issue TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_usage_records_key ON usage_records(package, version);
`,
	},
}

func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
