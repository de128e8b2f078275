package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
)

// DefaultCleanupInterval is how often expired sessions are swept.
const DefaultCleanupInterval = time.Minute

// MemoryStore keeps active sessions in process memory. With a positive idle
// TTL every write refreshes the session's deadline; a session that is not
// written for the whole TTL is evicted and handed to the expiry callback.
type MemoryStore struct {
	cache    *gocache.Cache
	ttl      time.Duration
	onExpire func(*debate.Session)
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithIdleTTL enables idle expiry. onExpire runs on its own goroutine for
// every session the sweeper evicts, so it may take session locks freely.
func WithIdleTTL(ttl, cleanup time.Duration, onExpire func(*debate.Session)) MemoryStoreOption {
	return func(m *MemoryStore) {
		m.ttl = ttl
		m.onExpire = onExpire
		m.cache = gocache.New(ttl, cleanup)
	}
}

// NewMemoryStore creates an empty store. Without WithIdleTTL sessions never expire.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 0),
		ttl:   gocache.NoExpiration,
	}
	for _, o := range opts {
		o(m)
	}
	if m.ttl > 0 && m.onExpire != nil {
		m.cache.OnEvicted(m.evicted)
	}
	return m
}

// evicted is called by go-cache for both explicit deletes and TTL sweeps.
// Only sweeps matter here; an explicitly deleted session is no longer active
// by the time the callback observes it, and Expire ignores those.
func (m *MemoryStore) evicted(_ string, v any) {
	s, ok := v.(*debate.Session)
	if !ok {
		return
	}
	go m.onExpire(s)
}

// Add stores s unless key is taken. go-cache's Add replaces an expired but
// unswept item without calling OnEvicted, so expired items are swept first
// and reach the expiry callback.
func (m *MemoryStore) Add(_ context.Context, key string, s *debate.Session) error {
	if m.onExpire != nil {
		m.cache.DeleteExpired()
	}
	if err := m.cache.Add(key, s, m.ttl); err != nil {
		return &debate.DuplicateSessionError{TeamID: key}
	}
	return nil
}

func (m *MemoryStore) Put(_ context.Context, key string, s *debate.Session) error {
	m.cache.Set(key, s, m.ttl)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*debate.Session, error) {
	v, found := m.cache.Get(key)
	if !found {
		return nil, ErrNotFound
	}
	s, ok := v.(*debate.Session)
	if !ok {
		return nil, fmt.Errorf("storage: unexpected value %T for %q", v, key)
	}
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*debate.Session, error) {
	items := m.cache.Items()
	out := make([]*debate.Session, 0, len(items))
	for _, it := range items {
		if s, ok := it.Object.(*debate.Session); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Len reports the number of live entries.
func (m *MemoryStore) Len() int {
	return m.cache.ItemCount()
}

// MemoryArchive keeps terminal snapshots in memory. The latest snapshot per
// team lives in a go-cache keyed by team key; a session-id index preserves
// every snapshot for Recent.
type MemoryArchive struct {
	mu      sync.RWMutex
	latest  *gocache.Cache
	bySID   map[string]debate.Snapshot
	ordered []string
}

// NewMemoryArchive creates an empty archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		latest: gocache.New(gocache.NoExpiration, 0),
		bySID:  make(map[string]debate.Snapshot),
	}
}

func (a *MemoryArchive) Save(_ context.Context, snap debate.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, seen := a.bySID[snap.SessionID]; !seen {
		a.ordered = append(a.ordered, snap.SessionID)
	}
	a.bySID[snap.SessionID] = snap
	a.latest.Set(snap.TeamKey, snap, gocache.NoExpiration)
	return nil
}

func (a *MemoryArchive) Latest(_ context.Context, teamKey string) (debate.Snapshot, error) {
	v, found := a.latest.Get(teamKey)
	if !found {
		return debate.Snapshot{}, ErrNotFound
	}
	return v.(debate.Snapshot), nil
}

func (a *MemoryArchive) Recent(_ context.Context, limit int) ([]debate.Snapshot, error) {
	a.mu.RLock()
	out := make([]debate.Snapshot, 0, len(a.ordered))
	for _, id := range a.ordered {
		out = append(out, a.bySID[id])
	}
	a.mu.RUnlock()
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortNewestFirst orders by EndedAt (falling back to UpdatedAt), newest first.
func sortNewestFirst(snaps []debate.Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return endedAt(snaps[i]).After(endedAt(snaps[j]))
	})
}

func endedAt(s debate.Snapshot) time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return s.UpdatedAt
}
