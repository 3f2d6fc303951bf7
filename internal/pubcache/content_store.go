package pubcache

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"go-content-cache/internal/logger"
)

// Reader is the read side of the cache: the live store or a pinned snapshot.
type Reader interface {
	Get(id int) *ContentNode
	Children(id int) iter.Seq[*ContentNode]
	Roots() iter.Seq[*ContentNode]
}

// SnapshotAccessor hands models the reader they should navigate through.
type SnapshotAccessor interface {
	Reader(ctx context.Context) Reader
}

// linkedNode is one generation of a map entry. A nil node marks a removal.
type linkedNode struct {
	node *ContentNode
	gen  int64
	next *linkedNode
}

// ContentStore maps node ids to the current ContentNode.
//
// One writer at a time mutates the store through Update; any number of readers
// may call Get, Children and Roots concurrently. Nodes are replaced, never edited,
// so whatever a reader holds stays unchanged.
type ContentStore struct {
	types ContentTypeLookup
	log   logger.Logger

	writeMu sync.Mutex

	mu      sync.RWMutex
	nodes   map[int]*linkedNode
	chained map[int]struct{}

	genMu   sync.Mutex
	liveGen int64
	pins    map[int64]int
}

var (
	_ Reader           = (*ContentStore)(nil)
	_ SnapshotAccessor = (*ContentStore)(nil)
)

// NewContentStore creates an empty store resolving content types through types.
func NewContentStore(types ContentTypeLookup, log logger.Logger) *ContentStore {
	if log == nil {
		log = logger.Nop()
	}
	return &ContentStore{
		types: types,
		log:   log.With(map[string]interface{}{"component": "content_store"}),
		nodes: map[int]*linkedNode{
			RootID: {node: newRootNode([]int{}), gen: 0},
		},
		chained: make(map[int]struct{}),
		pins:    make(map[int64]int),
	}
}

// Get returns the current node, or nil.
func (s *ContentStore) Get(id int) *ContentNode {
	if id == RootID {
		return nil
	}
	return s.get(id, -1)
}

// Children lazily yields the current children of a node in order, skipping
// ids that no longer resolve.
func (s *ContentStore) Children(id int) iter.Seq[*ContentNode] {
	return s.children(id, -1)
}

// Roots yields the top-level nodes.
func (s *ContentStore) Roots() iter.Seq[*ContentNode] {
	return s.children(RootID, -1)
}

// Reader returns the snapshot pinned in ctx for this store, or the store itself.
func (s *ContentStore) Reader(ctx context.Context) Reader {
	if sn := SnapshotFromContext(ctx); sn != nil && sn.store == s {
		return sn
	}
	return s
}

// Generation returns the last committed generation.
func (s *ContentStore) Generation() int64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.liveGen
}

// Len returns the number of nodes currently in the store.
func (s *ContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id, ln := range s.nodes {
		if id != RootID && ln.node != nil {
			n++
		}
	}
	return n
}

// IDs returns the ids of all current nodes in ascending order.
func (s *ContentStore) IDs() []int {
	s.mu.RLock()
	ids := make([]int, 0, len(s.nodes))
	for id, ln := range s.nodes {
		if id != RootID && ln.node != nil {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// get resolves id at a generation; a negative generation means the latest write.
func (s *ContentStore) get(id int, gen int64) *ContentNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ln := s.nodes[id]
	if gen < 0 {
		if ln == nil {
			return nil
		}
		return ln.node
	}
	for ; ln != nil; ln = ln.next {
		if ln.gen <= gen {
			return ln.node
		}
	}
	return nil
}

func (s *ContentStore) children(id int, gen int64) iter.Seq[*ContentNode] {
	return func(yield func(*ContentNode) bool) {
		parent := s.get(id, gen)
		if parent == nil {
			return
		}
		for _, childID := range parent.childIDs {
			child := s.get(childID, gen)
			if child == nil {
				continue
			}
			if !yield(child) {
				return
			}
		}
	}
}

// Update runs one writer pass. Writers are serialized; everything written in
// the pass shares one generation, committed when fn returns or panics. Each
// operation inside the pass is atomic on its own, so a failing operation leaves
// the earlier ones in place.
func (s *ContentStore) Update(fn func(tx *WriteTx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx := &WriteTx{store: s, gen: s.Generation() + 1}
	defer func() {
		tx.done = true
		if tx.dirty {
			s.commit(tx.gen)
		}
		if r := recover(); r != nil {
			s.log.With(map[string]interface{}{"generation": tx.gen}).Error(fmt.Errorf("%v", r), "Writer pass panicked, committing the writes made so far")
			panic(r)
		}
	}()
	return fn(tx)
}

// ApplyKit applies one kit in its own writer pass.
func (s *ContentStore) ApplyKit(ctx context.Context, kit ContentNodeKit) error {
	return s.Update(func(tx *WriteTx) error {
		return tx.ApplyKit(ctx, kit)
	})
}

// RemoveNode removes one node in its own writer pass.
func (s *ContentStore) RemoveNode(id int) bool {
	var removed bool
	_ = s.Update(func(tx *WriteTx) error {
		removed = tx.RemoveNode(id)
		return nil
	})
	return removed
}

// ApplyContentTypeChange re-types affected nodes in its own writer pass.
func (s *ContentStore) ApplyContentTypeChange(ctx context.Context, contentTypeID int) (int, error) {
	var n int
	err := s.Update(func(tx *WriteTx) error {
		var err error
		n, err = tx.ApplyContentTypeChange(ctx, contentTypeID)
		return err
	})
	return n, err
}

func (s *ContentStore) commit(gen int64) {
	s.genMu.Lock()
	s.liveGen = gen
	s.genMu.Unlock()
	s.collect()
}

// minPinned is the oldest generation any reader may still ask for.
func (s *ContentStore) minPinned() int64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	oldest := s.liveGen
	for gen := range s.pins {
		if gen < oldest {
			oldest = gen
		}
	}
	return oldest
}

// collect trims entry chains no snapshot can reach anymore.
func (s *ContentStore) collect() {
	minGen := s.minPinned()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.chained {
		s.trimLocked(id, minGen)
	}
}

func (s *ContentStore) headLocked(id int) *ContentNode {
	if ln := s.nodes[id]; ln != nil {
		return ln.node
	}
	return nil
}

func (s *ContentStore) setLocked(id int, node *ContentNode, gen, minGen int64) {
	head := s.nodes[id]
	if head != nil && head.gen == gen {
		// written earlier in this pass, no snapshot can see it yet
		head.node = node
	} else {
		s.nodes[id] = &linkedNode{node: node, gen: gen, next: head}
	}
	s.trimLocked(id, minGen)
}

// trimLocked keeps every entry newer than minGen plus the newest entry at or
// below it, and drops the id when that entry is a removal.
func (s *ContentStore) trimLocked(id int, minGen int64) {
	head := s.nodes[id]
	if head == nil {
		delete(s.chained, id)
		return
	}
	for ln := head; ln != nil; ln = ln.next {
		if ln.gen <= minGen {
			ln.next = nil
			if ln == head && ln.node == nil {
				delete(s.nodes, id)
				delete(s.chained, id)
				return
			}
			break
		}
	}
	if head.next != nil || head.node == nil {
		s.chained[id] = struct{}{}
	} else {
		delete(s.chained, id)
	}
}

// WriteTx is the handle of one writer pass.
type WriteTx struct {
	store *ContentStore
	gen   int64
	done  bool
	dirty bool
}

// Generation returns the generation this pass writes.
func (tx *WriteTx) Generation() int64 {
	return tx.gen
}

// ApplyKit makes the store reflect the kit. A kit with no content removes the node.
//
// The content type must resolve, else ErrUnresolvedContentType. The parent must be
// in the store, else ErrOrphanKit; kits have to be applied top-down. A parent
// below the node itself is ErrInvalidNodeState.
func (tx *WriteTx) ApplyKit(ctx context.Context, kit ContentNodeKit) error {
	if tx.done {
		return ErrWriterClosed
	}
	id := kit.Node.ID
	if id == RootID {
		return &KitError{NodeID: id, Op: "apply kit", Err: fmt.Errorf("%w: reserved root id", ErrInvalidNodeState)}
	}
	if kit.IsDelete() {
		tx.RemoveNode(id)
		return nil
	}
	if kit.Node.ParentID == id {
		return &KitError{NodeID: id, Op: "apply kit", Err: fmt.Errorf("%w: node is its own parent", ErrInvalidNodeState)}
	}

	s := tx.store
	contentType, err := s.types.ContentType(ctx, kit.ContentTypeID)
	if err == nil && contentType == nil {
		err = errors.New("no definition")
	}
	if err != nil {
		return &KitError{NodeID: id, Op: "apply kit", Err: fmt.Errorf("%w %d: %v", ErrUnresolvedContentType, kit.ContentTypeID, err)}
	}

	minGen := s.minPinned()
	s.mu.Lock()
	defer s.mu.Unlock()

	parentID := kit.Node.ParentID
	parent := s.headLocked(parentID)
	if parent == nil {
		s.log.With(map[string]interface{}{"node_id": id, "parent_id": parentID}).Warn("Skipping kit whose parent is not in the store")
		return &KitError{NodeID: id, Op: "apply kit", Err: ErrOrphanKit}
	}

	if s.isAncestorLocked(id, parentID) {
		return &KitError{NodeID: id, Op: "apply kit", Err: fmt.Errorf("%w: parent %d is a descendant of the node", ErrInvalidNodeState, parentID)}
	}

	existing := s.headLocked(id)
	b := NewNodeBuilder(kit.Node)
	if existing != nil {
		b.WithChildren(existing.childIDs)
	}
	node, err := b.Build(contentType, kit.DraftData, kit.PublishedData, s)
	if err != nil {
		return &KitError{NodeID: id, Op: "apply kit", Err: err}
	}

	relink := existing == nil ||
		existing.ParentID() != parentID ||
		existing.SortOrder() != node.SortOrder() ||
		!slices.Contains(parent.childIDs, id)
	if relink {
		if existing != nil {
			if old := s.headLocked(existing.ParentID()); old != nil && slices.Contains(old.childIDs, id) {
				s.setLocked(old.ID(), old.cloneWithChildren(withoutChild(old.childIDs, id)), tx.gen, minGen)
			}
			parent = s.headLocked(parentID)
		}
		ids := s.insertChildLocked(parent.childIDs, node)
		s.setLocked(parentID, parent.cloneWithChildren(ids), tx.gen, minGen)
	}
	s.setLocked(id, node, tx.gen, minGen)
	tx.dirty = true
	return nil
}

// isAncestorLocked reports whether id is on the parent chain starting at from.
func (s *ContentStore) isAncestorLocked(id, from int) bool {
	seen := make(map[int]bool)
	for cur := from; cur != RootID && !seen[cur]; {
		if cur == id {
			return true
		}
		seen[cur] = true
		n := s.headLocked(cur)
		if n == nil {
			return false
		}
		cur = n.ParentID()
	}
	return false
}

// RemoveNode detaches the node from its parent and drops it from the store.
// Descendants are not removed: they stay in the store with a parent that no
// longer resolves. It reports whether the node was present.
func (tx *WriteTx) RemoveNode(id int) bool {
	if tx.done || id == RootID {
		return false
	}
	s := tx.store
	minGen := s.minPinned()
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.headLocked(id)
	if existing == nil {
		return false
	}
	if parent := s.headLocked(existing.ParentID()); parent != nil && slices.Contains(parent.childIDs, id) {
		s.setLocked(parent.ID(), parent.cloneWithChildren(withoutChild(parent.childIDs, id)), tx.gen, minGen)
	}
	s.setLocked(id, nil, tx.gen, minGen)
	tx.dirty = true
	return true
}

// ApplyContentTypeChange re-resolves a content type and swaps every node using
// it for a clone carrying the new definition. Content data is untouched.
// It returns the number of nodes re-typed.
func (tx *WriteTx) ApplyContentTypeChange(ctx context.Context, contentTypeID int) (int, error) {
	if tx.done {
		return 0, ErrWriterClosed
	}
	s := tx.store
	contentType, err := s.types.ContentType(ctx, contentTypeID)
	if err == nil && contentType == nil {
		err = errors.New("no definition")
	}
	if err != nil {
		return 0, fmt.Errorf("%w %d: %v", ErrUnresolvedContentType, contentTypeID, err)
	}

	minGen := s.minPinned()
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected []*ContentNode
	for id, ln := range s.nodes {
		n := ln.node
		if id == RootID || n == nil || n.contentType == nil {
			continue
		}
		if n.contentType.ID() == contentTypeID && n.contentType != contentType {
			affected = append(affected, n)
		}
	}
	for _, n := range affected {
		s.setLocked(n.ID(), n.cloneWithContentType(contentType), tx.gen, minGen)
	}
	if len(affected) > 0 {
		tx.dirty = true
	}
	return len(affected), nil
}

// ApplyResult summarizes a batch of kits.
type ApplyResult struct {
	Applied int
	Removed int
	Orphans []int
	Failed  []int
}

// ApplyKits applies kits in order. Orphan kits are skipped; other failures are
// collected and returned together once the whole batch has been tried.
func (tx *WriteTx) ApplyKits(ctx context.Context, kits []ContentNodeKit) (ApplyResult, error) {
	var res ApplyResult
	var errs []error
	for _, kit := range kits {
		if kit.IsDelete() {
			if tx.RemoveNode(kit.Node.ID) {
				res.Removed++
			}
			continue
		}
		err := tx.ApplyKit(ctx, kit)
		switch {
		case err == nil:
			res.Applied++
		case errors.Is(err, ErrOrphanKit):
			res.Orphans = append(res.Orphans, kit.Node.ID)
		default:
			res.Failed = append(res.Failed, kit.Node.ID)
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

// insertChildLocked returns a new list with node inserted by (sort order, id).
func (s *ContentStore) insertChildLocked(ids []int, node *ContentNode) []int {
	out := withoutChild(ids, node.ID())
	pos, _ := slices.BinarySearchFunc(out, node, func(childID int, target *ContentNode) int {
		sibling := s.headLocked(childID)
		if sibling == nil {
			return -1
		}
		if c := cmp.Compare(sibling.SortOrder(), target.SortOrder()); c != 0 {
			return c
		}
		return cmp.Compare(sibling.ID(), target.ID())
	})
	return slices.Insert(out, pos, node.ID())
}

// withoutChild always returns a fresh slice.
func withoutChild(ids []int, id int) []int {
	return slices.DeleteFunc(slices.Clone(ids), func(c int) bool { return c == id })
}
