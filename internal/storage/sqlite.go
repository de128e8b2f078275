package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
)

// SQLiteArchive stores terminal snapshots in a single-file SQLite database.
type SQLiteArchive struct {
	db *sql.DB
}

// OpenSQLiteArchive opens (creating if needed) the database at path.
func OpenSQLiteArchive(ctx context.Context, path string) (*SQLiteArchive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// One writer at a time; readers wait on the same connection.
	db.SetMaxOpenConns(1)

	a := &SQLiteArchive{db: db}
	if err := a.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS debate_archive (
			session_id TEXT PRIMARY KEY,
			team_key TEXT NOT NULL,
			team_id TEXT NOT NULL,
			status TEXT NOT NULL,
			integrity_hash TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			ended_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_debate_archive_team ON debate_archive(team_key, ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_debate_archive_ended ON debate_archive(ended_at);`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: sqlite schema: %w", err)
		}
	}
	return nil
}

func (a *SQLiteArchive) Save(ctx context.Context, snap debate.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}
	err = WithRetry(ctx, defaultMaxRetries, defaultBaseDelay, func() error {
		_, err := a.db.ExecContext(ctx, `
			INSERT INTO debate_archive (session_id, team_key, team_id, status, integrity_hash, snapshot, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				status = excluded.status,
				integrity_hash = excluded.integrity_hash,
				snapshot = excluded.snapshot,
				ended_at = excluded.ended_at`,
			snap.SessionID, snap.TeamKey, snap.TeamID, string(snap.Status),
			snap.IntegrityHash, string(payload), endedAt(snap).UnixNano(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: save snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

func (a *SQLiteArchive) Latest(ctx context.Context, teamKey string) (debate.Snapshot, error) {
	var payload string
	err := a.db.QueryRowContext(ctx, `
		SELECT snapshot FROM debate_archive
		WHERE team_key = ?
		ORDER BY ended_at DESC
		LIMIT 1`, teamKey,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return debate.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return debate.Snapshot{}, fmt.Errorf("storage: latest snapshot: %w", err)
	}
	return decodeSnapshot([]byte(payload))
}

func (a *SQLiteArchive) Recent(ctx context.Context, limit int) ([]debate.Snapshot, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT snapshot FROM debate_archive ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: recent snapshots: %w", err)
	}
	defer rows.Close()

	var out []debate.Snapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage: scan snapshot: %w", err)
		}
		snap, err := decodeSnapshot([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Ping checks that the database file is reachable.
func (a *SQLiteArchive) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.db.PingContext(ctx)
}

// Close closes the database.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
