package storage

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
)

// MultiArchive writes every snapshot to all of its archives and reads from
// the first one. A Save succeeds only if every archive accepted the snapshot.
type MultiArchive struct {
	archives []debate.Archive
}

// NewMultiArchive fans out to archives. The first archive is the read side.
func NewMultiArchive(primary debate.Archive, others ...debate.Archive) *MultiArchive {
	return &MultiArchive{archives: append([]debate.Archive{primary}, others...)}
}

func (m *MultiArchive) Save(ctx context.Context, snap debate.Snapshot) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range m.archives {
		g.Go(func() error {
			return a.Save(gctx, snap)
		})
	}
	return g.Wait()
}

func (m *MultiArchive) Latest(ctx context.Context, teamKey string) (debate.Snapshot, error) {
	return m.archives[0].Latest(ctx, teamKey)
}

func (m *MultiArchive) Recent(ctx context.Context, limit int) ([]debate.Snapshot, error) {
	return m.archives[0].Recent(ctx, limit)
}

// Pinger is implemented by archives with a remote or file-backed dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks every archive that supports it.
func (m *MultiArchive) Ping(ctx context.Context) error {
	var errs []error
	for _, a := range m.archives {
		if p, ok := a.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
