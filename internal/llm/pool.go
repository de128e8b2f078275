package llm

import (
	"encoding/hex"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/crypto/blake2b"
)

// DefaultResetInterval is how long a quota-failed credential stays ineligible.
const DefaultResetInterval = time.Hour

// CredentialPool holds an ordered set of upstream credentials and tracks
// which ones are currently exhausted. All methods are safe for concurrent use.
type CredentialPool struct {
	credentials   []string
	resetInterval time.Duration
	clock         clock.Clock

	mu        sync.Mutex
	current   int
	failed    map[int]struct{}
	lastReset time.Time
}

// PoolStatus is a point-in-time view of the pool. It never carries credentials.
type PoolStatus struct {
	Size         int       `json:"size"`
	CurrentIndex int       `json:"current_index"`
	Failed       []int     `json:"failed"`
	LastReset    time.Time `json:"last_reset"`
	Fingerprints []string  `json:"fingerprints,omitempty"`
}

// NewCredentialPool creates a pool over credentials. Blank entries and
// duplicates are dropped; order is preserved. A nil clock uses wall time.
func NewCredentialPool(credentials []string, resetInterval time.Duration, clk clock.Clock) (*CredentialPool, error) {
	if clk == nil {
		clk = clock.New()
	}
	if resetInterval <= 0 {
		resetInterval = DefaultResetInterval
	}
	var creds []string
	for _, c := range credentials {
		if c == "" || slices.Contains(creds, c) {
			continue
		}
		creds = append(creds, c)
	}
	if len(creds) == 0 {
		return nil, errors.New("llm: credential pool requires at least one credential")
	}
	return &CredentialPool{
		credentials:   creds,
		resetInterval: resetInterval,
		clock:         clk,
		failed:        make(map[int]struct{}),
		lastReset:     clk.Now(),
	}, nil
}

// Size returns the number of credentials in the pool.
func (p *CredentialPool) Size() int {
	return len(p.credentials)
}

// Acquire returns the first eligible credential at or after the current
// index, scanning circularly, and makes it current. It returns
// ErrAllCredentialsExhausted when every credential is marked failed.
func (p *CredentialPool) Acquire() (int, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.maybeResetLocked()
	idx, ok := p.nextEligibleLocked(p.current)
	if !ok {
		return -1, "", ErrAllCredentialsExhausted
	}
	p.current = idx
	return idx, p.credentials[idx], nil
}

// MarkFailed records index as quota-exhausted and, if it was current,
// advances to the next eligible credential. It returns the new current
// index or ErrAllCredentialsExhausted when none remain.
func (p *CredentialPool) MarkFailed(index int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index >= 0 && index < len(p.credentials) {
		p.failed[index] = struct{}{}
	}
	next, ok := p.nextEligibleLocked(p.current)
	if !ok {
		return -1, ErrAllCredentialsExhausted
	}
	p.current = next
	return next, nil
}

// Status returns a snapshot of the pool state.
func (p *CredentialPool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.maybeResetLocked()
	failed := make([]int, 0, len(p.failed))
	for i := range p.failed {
		failed = append(failed, i)
	}
	slices.Sort(failed)
	fps := make([]string, len(p.credentials))
	for i, c := range p.credentials {
		fps[i] = Fingerprint(c)
	}
	return PoolStatus{
		Size:         len(p.credentials),
		CurrentIndex: p.current,
		Failed:       failed,
		LastReset:    p.lastReset,
		Fingerprints: fps,
	}
}

// maybeResetLocked clears the failed set once the reset interval has passed.
func (p *CredentialPool) maybeResetLocked() {
	now := p.clock.Now()
	if now.Sub(p.lastReset) > p.resetInterval {
		clear(p.failed)
		p.lastReset = now
	}
}

func (p *CredentialPool) nextEligibleLocked(start int) (int, bool) {
	n := len(p.credentials)
	for i := range n {
		idx := (start + i) % n
		if _, bad := p.failed[idx]; !bad {
			return idx, true
		}
	}
	return -1, false
}

// Fingerprint returns a short, non-reversible identifier for a credential,
// suitable for logs.
func Fingerprint(credential string) string {
	sum := blake2b.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:4])
}
