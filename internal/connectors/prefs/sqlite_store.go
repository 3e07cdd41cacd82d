// Package prefs persists per-user UI preferences and a small activity log
// in a local SQLite database. Sessions are keyed by a hashed subject, never
// by the raw credential.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Prefs is what the UI restores for a returning user.
type Prefs struct {
	Subject    string `json:"subject"`
	Username   string `json:"username,omitempty"`
	ActiveView string `json:"active_view"`
	DatasetID  int64  `json:"dataset_id,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

// Activity is one recorded user action.
type Activity struct {
	ID        int64  `json:"id"`
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ErrNotFound is returned when no preferences exist for a subject.
var ErrNotFound = errors.New("prefs: not found")

// SQLiteStore persists preferences and activity in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the preferences database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("prefs: empty sqlite path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_prefs (
			subject     TEXT PRIMARY KEY,
			username    TEXT NOT NULL DEFAULT '',
			active_view TEXT NOT NULL DEFAULT 'dashboard',
			dataset_id  INTEGER NOT NULL DEFAULT 0,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS activity_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			subject    TEXT NOT NULL,
			action     TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activity_subject ON activity_log(subject, id DESC);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable, for the status endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SavePrefs upserts the preferences row for a subject.
func (s *SQLiteStore) SavePrefs(ctx context.Context, p Prefs) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_prefs (subject, username, active_view, dataset_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject) DO UPDATE SET
			username    = excluded.username,
			active_view = excluded.active_view,
			dataset_id  = excluded.dataset_id,
			updated_at  = excluded.updated_at
	`, p.Subject, p.Username, p.ActiveView, p.DatasetID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("prefs: save: %w", err)
	}
	return nil
}

// GetPrefs loads the preferences row for a subject.
func (s *SQLiteStore) GetPrefs(ctx context.Context, subject string) (Prefs, error) {
	var p Prefs
	err := s.db.QueryRowContext(ctx, `
		SELECT subject, username, active_view, dataset_id, updated_at
		FROM user_prefs WHERE subject = ?
	`, subject).Scan(&p.Subject, &p.Username, &p.ActiveView, &p.DatasetID, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Prefs{}, ErrNotFound
	}
	if err != nil {
		return Prefs{}, fmt.Errorf("prefs: get: %w", err)
	}
	return p, nil
}

// RecordActivity appends one action to the activity log.
func (s *SQLiteStore) RecordActivity(ctx context.Context, subject, action, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (subject, action, detail, created_at)
		VALUES (?, ?, ?, ?)
	`, subject, action, detail, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("prefs: record activity: %w", err)
	}
	return nil
}

// ListActivity returns the most recent actions for a subject, newest first.
func (s *SQLiteStore) ListActivity(ctx context.Context, subject string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, action, detail, created_at
		FROM activity_log WHERE subject = ?
		ORDER BY id DESC LIMIT ?
	`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("prefs: list activity: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Subject, &a.Action, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("prefs: scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prefs: iterate activity: %w", err)
	}
	return out, nil
}
