// Package metrics implements the SQLite-backed sink used by the log-metric
// built-in and by the scheduler's fire-audit log, with a retention sweep
// (Retention) that trims samples and audit rows past a given window.
// Nothing in the module runs that sweep on a schedule.
package metrics

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"utms/internal/logger"
)

// Sink persists point-in-time metric samples and scheduler fire-audit
// records to a SQLite database.
type Sink struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// its schema exists.
func Open(path string) (*Sink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("metrics: opening %s: %w", path, err)
	}
	s := &Sink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metric_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_samples_category_name ON metric_samples(category, name)`,
		`CREATE TABLE IF NOT EXISTS fire_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_identifier TEXT NOT NULL,
			attribute TEXT NOT NULL,
			fired_at INTEGER NOT NULL,
			cursor_value INTEGER NOT NULL,
			hook_error TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("metrics: migrating schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Sink) Close() error {
	return s.db.Close()
}

// LogMetric records one sample, backing the "log-metric" built-in.
func (s *Sink) LogMetric(category, name string, value float64) error {
	_, err := s.db.Exec(
		`INSERT INTO metric_samples (category, name, value, recorded_at) VALUES (?, ?, ?, ?)`,
		category, name, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("metrics: logging %s/%s: %w", category, name, err)
	}
	return nil
}

// RecordFire appends one scheduler fire-audit row: which entity attribute
// fired, the cursor value it advanced to, and any hook error (logged, not
// propagated, per the scheduler's at-least-once firing policy).
func (s *Sink) RecordFire(entityIdentifier, attribute string, firedAt, cursorValue int64, hookErr error) {
	var errText sql.NullString
	if hookErr != nil {
		errText = sql.NullString{String: hookErr.Error(), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO fire_audit (entity_identifier, attribute, fired_at, cursor_value, hook_error) VALUES (?, ?, ?, ?, ?)`,
		entityIdentifier, attribute, firedAt, cursorValue, errText,
	)
	if err != nil {
		logger.Error("metrics: recording fire audit for %s.%s: %v", entityIdentifier, attribute, err)
	}
}

// Retention trims samples and audit rows older than window, at a scale
// appropriate for a single-process personal scheduler rather than a
// multi-tenant database.
func (s *Sink) Retention(window time.Duration) error {
	cutoff := time.Now().Add(-window).UnixNano()
	if _, err := s.db.Exec(`DELETE FROM metric_samples WHERE recorded_at < ?`, cutoff); err != nil {
		return fmt.Errorf("metrics: trimming samples: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM fire_audit WHERE fired_at < ?`, cutoff); err != nil {
		return fmt.Errorf("metrics: trimming fire audit: %w", err)
	}
	return nil
}

// Sample is one row returned by RecentSamples.
type Sample struct {
	Category   string
	Name       string
	Value      float64
	RecordedAt int64
}

// AllRecent returns up to limit most recent samples across every
// category/name pair, newest first; used by the ambient /metrics HTTP
// surface to render one Prometheus gauge per category/name pair without the
// caller first needing to know which categories were logged.
func (s *Sink) AllRecent(limit int) ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT category, name, value, recorded_at FROM metric_samples ORDER BY recorded_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: querying recent samples: %w", err)
	}
	defer rows.Close()
	var out []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.Category, &smp.Name, &smp.Value, &smp.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

// RecentSamples returns up to limit most recent samples for category/name,
// newest first.
func (s *Sink) RecentSamples(category, name string, limit int) ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT category, name, value, recorded_at FROM metric_samples
		 WHERE category = ? AND name = ? ORDER BY recorded_at DESC LIMIT ?`,
		category, name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: querying %s/%s: %w", category, name, err)
	}
	defer rows.Close()
	var out []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.Category, &smp.Name, &smp.Value, &smp.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}
