package pubcache

import (
	"context"
	"iter"
	"sync"
)

// Snapshot is a reader pinned to one committed generation of a store. Every
// lookup through it sees the tree exactly as it was when the snapshot was taken.
// Release must be called when done; a released snapshot must not be used.
type Snapshot struct {
	store *ContentStore
	gen   int64
	once  sync.Once
}

var _ Reader = (*Snapshot)(nil)

// Snapshot pins the current committed generation.
func (s *ContentStore) Snapshot() *Snapshot {
	s.genMu.Lock()
	gen := s.liveGen
	s.pins[gen]++
	s.genMu.Unlock()
	return &Snapshot{store: s, gen: gen}
}

// Generation returns the pinned generation.
func (sn *Snapshot) Generation() int64 {
	return sn.gen
}

// Get returns the node as of the pinned generation.
func (sn *Snapshot) Get(id int) *ContentNode {
	if id == RootID {
		return nil
	}
	return sn.store.get(id, sn.gen)
}

// Children yields the children of a node as of the pinned generation.
func (sn *Snapshot) Children(id int) iter.Seq[*ContentNode] {
	return sn.store.children(id, sn.gen)
}

// Roots yields the top-level nodes as of the pinned generation.
func (sn *Snapshot) Roots() iter.Seq[*ContentNode] {
	return sn.store.children(RootID, sn.gen)
}

// Content returns the model of a node for the given mode, or nil.
func (sn *Snapshot) Content(id int, preview bool) *PublishedContent {
	n := sn.Get(id)
	if n == nil {
		return nil
	}
	return n.Content(preview)
}

// Release unpins the generation. It is safe to call more than once.
func (sn *Snapshot) Release() {
	sn.once.Do(func() {
		s := sn.store
		s.genMu.Lock()
		s.pins[sn.gen]--
		if s.pins[sn.gen] <= 0 {
			delete(s.pins, sn.gen)
		}
		s.genMu.Unlock()
		s.collect()
	})
}

type snapshotKey struct{}

// WithSnapshot binds a snapshot to ctx so models navigate through it.
func WithSnapshot(ctx context.Context, sn *Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, sn)
}

// SnapshotFromContext returns the snapshot bound to ctx, or nil.
func SnapshotFromContext(ctx context.Context) *Snapshot {
	if ctx == nil {
		return nil
	}
	sn, _ := ctx.Value(snapshotKey{}).(*Snapshot)
	return sn
}
