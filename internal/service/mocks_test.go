package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go-content-cache/internal/data"
	"go-content-cache/internal/pubcache"
)

var testDate = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// mockKitRepository serves kits from memory.
type mockKitRepository struct {
	mu          sync.Mutex
	kits        map[int]pubcache.ContentNodeKit
	errToReturn error
	allCalls    int
}

var _ KitRepository = (*mockKitRepository)(nil)

func newMockKitRepository(kits ...pubcache.ContentNodeKit) *mockKitRepository {
	m := &mockKitRepository{kits: make(map[int]pubcache.ContentNodeKit)}
	for _, k := range kits {
		m.kits[k.Node.ID] = k
	}
	return m
}

func (m *mockKitRepository) put(k pubcache.ContentNodeKit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kits[k.Node.ID] = k
}

func (m *mockKitRepository) delete(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kits, id)
}

func (m *mockKitRepository) sorted(keep func(pubcache.ContentNodeKit) bool) []pubcache.ContentNodeKit {
	var out []pubcache.ContentNodeKit
	for _, k := range m.kits {
		if keep(k) {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, func(a, b pubcache.ContentNodeKit) int {
		if c := cmp.Compare(a.Node.Level, b.Node.Level); c != 0 {
			return c
		}
		return cmp.Compare(a.Node.ID, b.Node.ID)
	})
	return out
}

func (m *mockKitRepository) GetAllKits(ctx context.Context) ([]pubcache.ContentNodeKit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allCalls++
	if m.errToReturn != nil {
		return nil, m.errToReturn
	}
	return m.sorted(func(pubcache.ContentNodeKit) bool { return true }), nil
}

func (m *mockKitRepository) GetKit(ctx context.Context, id int) (pubcache.ContentNodeKit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errToReturn != nil {
		return pubcache.ContentNodeKit{}, m.errToReturn
	}
	k, ok := m.kits[id]
	if !ok {
		return pubcache.ContentNodeKit{}, fmt.Errorf("kit %d: %w", id, data.ErrNodeNotFound)
	}
	return k, nil
}

func (m *mockKitRepository) GetBranchKits(ctx context.Context, id int) ([]pubcache.ContentNodeKit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errToReturn != nil {
		return nil, m.errToReturn
	}
	if _, ok := m.kits[id]; !ok {
		return nil, fmt.Errorf("branch %d: %w", id, data.ErrNodeNotFound)
	}
	inBranch := func(k pubcache.ContentNodeKit) bool {
		for cur, seen := k, 0; seen <= len(m.kits); seen++ {
			if cur.Node.ID == id {
				return true
			}
			parent, ok := m.kits[cur.Node.ParentID]
			if !ok {
				return false
			}
			cur = parent
		}
		return false
	}
	return m.sorted(inBranch), nil
}

// mockContentTypeRepository serves content types from memory.
type mockContentTypeRepository struct {
	mu          sync.Mutex
	types       map[int]*pubcache.ContentType
	errToReturn error
	calls       int
	block       chan struct{}
}

var _ ContentTypeRepository = (*mockContentTypeRepository)(nil)

func newMockContentTypeRepository(types ...*pubcache.ContentType) *mockContentTypeRepository {
	m := &mockContentTypeRepository{types: make(map[int]*pubcache.ContentType)}
	for _, ct := range types {
		m.types[ct.ID()] = ct
	}
	return m
}

func (m *mockContentTypeRepository) set(ct *pubcache.ContentType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[ct.ID()] = ct
}

func (m *mockContentTypeRepository) GetContentType(ctx context.Context, id int) (*pubcache.ContentType, error) {
	m.mu.Lock()
	m.calls++
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errToReturn != nil {
		return nil, m.errToReturn
	}
	ct, ok := m.types[id]
	if !ok {
		return nil, fmt.Errorf("content type %d: %w", id, data.ErrContentTypeNotFound)
	}
	return ct, nil
}

func (m *mockContentTypeRepository) GetAllContentTypes(ctx context.Context) ([]*pubcache.ContentType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errToReturn != nil {
		return nil, m.errToReturn
	}
	var out []*pubcache.ContentType
	for _, ct := range m.types {
		out = append(out, ct)
	}
	return out, nil
}

func (m *mockContentTypeRepository) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockLocalKitStore is an in-memory LocalKitStore.
type mockLocalKitStore struct {
	kits        map[int]pubcache.ContentNodeKit
	errToReturn error
	allCalls    int
}

var _ LocalKitStore = (*mockLocalKitStore)(nil)

func newMockLocalKitStore(kits ...pubcache.ContentNodeKit) *mockLocalKitStore {
	m := &mockLocalKitStore{kits: make(map[int]pubcache.ContentNodeKit)}
	for _, k := range kits {
		m.kits[k.Node.ID] = k
	}
	return m
}

func (m *mockLocalKitStore) PutAll(ctx context.Context, kits []pubcache.ContentNodeKit) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	for _, k := range kits {
		if k.IsDelete() {
			delete(m.kits, k.Node.ID)
			continue
		}
		m.kits[k.Node.ID] = k
	}
	return nil
}

func (m *mockLocalKitStore) All(ctx context.Context) ([]pubcache.ContentNodeKit, error) {
	m.allCalls++
	if m.errToReturn != nil {
		return nil, m.errToReturn
	}
	var out []pubcache.ContentNodeKit
	for _, k := range m.kits {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b pubcache.ContentNodeKit) int {
		if c := cmp.Compare(a.Node.Level, b.Node.Level); c != 0 {
			return c
		}
		return cmp.Compare(a.Node.ID, b.Node.ID)
	})
	return out, nil
}

func (m *mockLocalKitStore) Count(ctx context.Context) (int, error) {
	if m.errToReturn != nil {
		return 0, m.errToReturn
	}
	return len(m.kits), nil
}

func (m *mockLocalKitStore) Clear(ctx context.Context) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	clear(m.kits)
	return nil
}

func pageType(id int) *pubcache.ContentType {
	return pubcache.NewContentType(id, fmt.Sprintf("page%d", id), []*pubcache.PropertyType{
		{ID: 10, Alias: "title", EditorAlias: "text"},
	})
}

func kit(id, parentID, level, typeID int, name string) pubcache.ContentNodeKit {
	return pubcache.ContentNodeKit{
		Node: pubcache.NodeInfo{
			ID:         id,
			Level:      level,
			ParentID:   parentID,
			CreateDate: testDate,
		},
		ContentTypeID: typeID,
		PublishedData: pubcache.NewContentData(name, id, testDate, true),
	}
}
