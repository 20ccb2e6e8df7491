// Package store persists match results in SQLite so a run can be resumed
// without reusing controls that were already assigned.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/codeGROOVE-dev/cohortmatch/pkg/cohort"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// Store is a SQLite-backed result sink.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			diagnosed_user TEXT PRIMARY KEY,
			diagnosed_post_count INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS controls (
			username TEXT PRIMARY KEY,
			diagnosed_user TEXT NOT NULL,
			post_count INTEGER NOT NULL,
			posts_json JSON
		);`,
		`CREATE INDEX IF NOT EXISTS idx_controls_diagnosed ON controls(diagnosed_user);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

// Add upserts a result and its controls in one transaction. Controls
// previously stored for the same diagnosed user are replaced.
func (s *Store) Add(ctx context.Context, result cohort.MatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO matches (diagnosed_user, diagnosed_post_count) VALUES (?, ?)
		ON CONFLICT(diagnosed_user) DO UPDATE SET diagnosed_post_count=excluded.diagnosed_post_count
	`, result.DiagnosedUser, result.DiagnosedPostCount); err != nil {
		return fmt.Errorf("save match %s: %w", result.DiagnosedUser, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM controls WHERE diagnosed_user = ?`, result.DiagnosedUser); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO controls (username, diagnosed_user, post_count, posts_json) VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			diagnosed_user=excluded.diagnosed_user,
			post_count=excluded.post_count,
			posts_json=excluded.posts_json
	`)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck // closed with the transaction

	for _, c := range result.Controls {
		posts, err := json.Marshal(c.Posts)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.Username, result.DiagnosedUser, c.PostCount, string(posts)); err != nil {
			return fmt.Errorf("save control %s: %w", c.Username, err)
		}
	}
	return tx.Commit()
}

// UsedControls returns every stored control username, sorted.
func (s *Store) UsedControls(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM controls ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only query

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Result loads the stored result for a diagnosed user.
func (s *Store) Result(ctx context.Context, diagnosed string) (cohort.MatchResult, error) {
	r := cohort.MatchResult{DiagnosedUser: diagnosed, Controls: []cohort.ControlCandidate{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT diagnosed_post_count FROM matches WHERE diagnosed_user = ?`, diagnosed).Scan(&r.DiagnosedPostCount)
	if err != nil {
		return r, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT username, post_count, posts_json FROM controls WHERE diagnosed_user = ? ORDER BY rowid`, diagnosed)
	if err != nil {
		return r, err
	}
	defer rows.Close() //nolint:errcheck // read-only query

	for rows.Next() {
		var c cohort.ControlCandidate
		var posts string
		if err := rows.Scan(&c.Username, &c.PostCount, &posts); err != nil {
			return r, err
		}
		if err := json.Unmarshal([]byte(posts), &c.Posts); err != nil {
			return r, fmt.Errorf("decode posts for %s: %w", c.Username, err)
		}
		r.Controls = append(r.Controls, c)
	}
	return r, rows.Err()
}
