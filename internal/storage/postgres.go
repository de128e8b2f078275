package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
)

// PostgresArchive stores terminal snapshots in the debate_archive table.
// Run migrations.FS through DB.RunMigrations before first use.
type PostgresArchive struct {
	db *DB
}

// NewPostgresArchive returns an archive backed by db.
func NewPostgresArchive(db *DB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

// Save upserts snap by session id.
func (a *PostgresArchive) Save(ctx context.Context, snap debate.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}
	var total *int
	if snap.Evaluation != nil {
		total = &snap.Evaluation.Total
	}
	endedAt := endedAt(snap)

	err = WithRetry(ctx, defaultMaxRetries, defaultBaseDelay, func() error {
		_, err := a.db.pool.Exec(ctx, `
			INSERT INTO debate_archive
				(session_id, team_key, team_id, course_code, status, end_reason,
				 total_score, integrity_hash, snapshot, ended_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (session_id) DO UPDATE SET
				status = EXCLUDED.status,
				end_reason = EXCLUDED.end_reason,
				total_score = EXCLUDED.total_score,
				integrity_hash = EXCLUDED.integrity_hash,
				snapshot = EXCLUDED.snapshot,
				ended_at = EXCLUDED.ended_at,
				archived_at = now()`,
			snap.SessionID, snap.TeamKey, snap.TeamID, snap.CourseCode, string(snap.Status),
			snap.EndReason, total, snap.IntegrityHash, payload, endedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: save snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

// Latest returns the most recently ended snapshot for teamKey.
func (a *PostgresArchive) Latest(ctx context.Context, teamKey string) (debate.Snapshot, error) {
	var payload []byte
	err := a.db.pool.QueryRow(ctx, `
		SELECT snapshot FROM debate_archive
		WHERE team_key = $1
		ORDER BY ended_at DESC
		LIMIT 1`, teamKey,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return debate.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return debate.Snapshot{}, fmt.Errorf("storage: latest snapshot: %w", err)
	}
	return decodeSnapshot(payload)
}

// Recent returns up to limit snapshots, newest first. limit <= 0 returns all.
func (a *PostgresArchive) Recent(ctx context.Context, limit int) ([]debate.Snapshot, error) {
	query := `SELECT snapshot FROM debate_archive ORDER BY ended_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := a.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: recent snapshots: %w", err)
	}
	defer rows.Close()

	var out []debate.Snapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage: scan snapshot: %w", err)
		}
		snap, err := decodeSnapshot(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Ping checks the underlying pool.
func (a *PostgresArchive) Ping(ctx context.Context) error {
	return a.db.Ping(ctx)
}

func decodeSnapshot(payload []byte) (debate.Snapshot, error) {
	var snap debate.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return debate.Snapshot{}, fmt.Errorf("storage: decode snapshot: %w", err)
	}
	return snap, nil
}
