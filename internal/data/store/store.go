package store

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Asdf0717/Py4A/internal/core/errors"
	"github.com/Asdf0717/Py4A/internal/engine/api"
	"github.com/Asdf0717/Py4A/internal/engine/diff"
	"github.com/Asdf0717/Py4A/internal/engine/usage"
	"github.com/Asdf0717/Py4A/internal/shared/observability"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Store is the knowledge base: summaries keyed by (package, version), plus
// change sets and usage records derived from them. Summaries are written
// atomically and superseded, never mutated.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("store path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when extractions for several
	// versions persist concurrently.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SaveSummary upserts one version's summary as a single atomic write.
func (s *Store) SaveSummary(summary *api.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary %s@%s: %w", summary.PackageName, summary.Version, err)
	}

	start := time.Now()
	defer func() {
		observability.StoreWriteDuration.WithLabelValues("summaries").Observe(time.Since(start).Seconds())
	}()

	query := `
INSERT INTO summaries (package, version, entity_count, payload)
VALUES (?, ?, ?, ?)
ON CONFLICT(package, version) DO UPDATE SET
  entity_count=excluded.entity_count,
  payload=excluded.payload
`
	return s.withRetry("save summary", func() error {
		_, err := s.db.Exec(query, summary.PackageName, summary.Version, len(summary.Entities), string(payload))
		return err
	})
}

func (s *Store) LoadSummary(pkg, version string) (*api.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.withRetry("load summary", func() error {
		return s.db.QueryRow(
			`SELECT payload FROM summaries WHERE package = ? AND version = ?`,
			pkg, version,
		).Scan(&payload)
	})
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.AddContext(errors.AddContext(
				errors.New(errors.CodeNotFound, "summary not found"),
				errors.CtxPackage, pkg), errors.CtxVersion, version)
		}
		return nil, err
	}

	var summary api.Summary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("decode summary %s@%s: %w", pkg, version, err)
	}
	return &summary, nil
}

func (s *Store) ListVersions(pkg string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("list versions", func() error {
		var qErr error
		rows, qErr = s.db.Query(
			`SELECT version FROM summaries WHERE package = ? ORDER BY created_at_utc ASC, version ASC`, pkg)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version row: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version rows: %w", err)
	}
	return versions, nil
}

// SaveChangeSet replaces the change set for one ordered version pair in a
// single transaction.
func (s *Store) SaveChangeSet(pkg, oldVersion, newVersion string, records []diff.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		observability.StoreWriteDuration.WithLabelValues("change_records").Observe(time.Since(start).Seconds())
	}()

	return s.withRetry("save change set", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(
			`DELETE FROM change_records WHERE package = ? AND old_version = ? AND new_version = ?`,
			pkg, oldVersion, newVersion,
		); err != nil {
			return err
		}
		for _, rec := range records {
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode change record %s: %w", rec.QualifiedName, err)
			}
			if _, err := tx.Exec(`
INSERT INTO change_records (package, old_version, new_version, qualified_name, change_kind, is_breaking, payload)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
				pkg, oldVersion, newVersion, rec.QualifiedName, string(rec.ChangeKind), boolToInt(rec.IsBreaking), string(payload),
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *Store) LoadChangeSet(pkg, oldVersion, newVersion string) ([]diff.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load change set", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT payload FROM change_records
WHERE package = ? AND old_version = ? AND new_version = ?
ORDER BY qualified_name ASC`,
			pkg, oldVersion, newVersion)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]diff.Record, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan change record row: %w", err)
		}
		var rec diff.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode change record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change record rows: %w", err)
	}
	return records, nil
}

// SaveUsage replaces the usage records for one (package, version) pair;
// re-runs regenerate, never append.
func (s *Store) SaveUsage(pkg, version string, records []usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		observability.StoreWriteDuration.WithLabelValues("usage_records").Observe(time.Since(start).Seconds())
	}()

	return s.withRetry("save usage records", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(
			`DELETE FROM usage_records WHERE package = ? AND version = ?`, pkg, version,
		); err != nil {
			return err
		}
		for _, rec := range records {
			if _, err := tx.Exec(`
INSERT INTO usage_records (package, version, client_file, line, col, qualified_name, call_arity, confidence, call_issue)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				pkg, version,
				rec.ClientLocation.File, rec.ClientLocation.Line, rec.ClientLocation.Column,
				rec.QualifiedName, rec.CallArity, string(rec.ResolutionConfidence), rec.CallIssue,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *Store) LoadUsage(pkg, version string) ([]usage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load usage records", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT client_file, line, col, qualified_name, call_arity, confidence, call_issue
FROM usage_records
WHERE package = ? AND version = ?
ORDER BY client_file ASC, line ASC, col ASC, qualified_name ASC`,
			pkg, version)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]usage.Record, 0)
	for rows.Next() {
		var rec usage.Record
		var confidence string
		if err := rows.Scan(
			&rec.ClientLocation.File, &rec.ClientLocation.Line, &rec.ClientLocation.Column,
			&rec.QualifiedName, &rec.CallArity, &confidence, &rec.CallIssue,
		); err != nil {
			return nil, fmt.Errorf("scan usage record row: %w", err)
		}
		rec.ResolutionConfidence = usage.Confidence(confidence)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage record rows: %w", err)
	}
	return records, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
