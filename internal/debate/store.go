package debate

import "context"

// SessionStore holds active sessions keyed by the normalized team id.
// The engine normalizes every key with NormalizeTeamID before calling it.
type SessionStore interface {
	// Add stores s under key. It returns an error wrapping
	// ErrDuplicateSession if key is already present.
	Add(ctx context.Context, key string, s *Session) error
	// Put stores s under key, replacing any existing entry.
	Put(ctx context.Context, key string, s *Session) error
	// Get returns ErrSessionNotFound when key is absent.
	Get(ctx context.Context, key string) (*Session, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every active session in no particular order.
	List(ctx context.Context) ([]*Session, error)
}

// Archive retains terminal snapshots for later export and reporting.
type Archive interface {
	Save(ctx context.Context, snap Snapshot) error
	// Latest returns the most recent terminal snapshot for a team key, or
	// ErrSessionNotFound.
	Latest(ctx context.Context, teamKey string) (Snapshot, error)
	// Recent returns up to limit terminal snapshots, newest first. A limit
	// <= 0 returns all of them.
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
}
