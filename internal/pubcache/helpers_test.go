package pubcache

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testDate = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testTypes is a ContentTypeLookup over an in-memory set of definitions.
type testTypes struct {
	mu    sync.Mutex
	types map[int]*ContentType
	calls int
}

var _ ContentTypeLookup = (*testTypes)(nil)

func newTestTypes(types ...*ContentType) *testTypes {
	tt := &testTypes{types: make(map[int]*ContentType)}
	for _, ct := range types {
		tt.types[ct.ID()] = ct
	}
	return tt
}

func (tt *testTypes) ContentType(ctx context.Context, id int) (*ContentType, error) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.calls++
	ct, ok := tt.types[id]
	if !ok {
		return nil, fmt.Errorf("content type %d not found", id)
	}
	return ct, nil
}

func (tt *testTypes) set(ct *ContentType) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.types[ct.ID()] = ct
}

func pageType(id int) *ContentType {
	return NewContentType(id, "page"+strconv.Itoa(id), []*PropertyType{
		{ID: 10, Alias: "title", EditorAlias: "text"},
		{ID: 11, Alias: "body", EditorAlias: "text", Default: "(empty)"},
	})
}

func published(name string) *ContentData {
	return NewContentData(name, 1, testDate, true)
}

func draft(name string) *ContentData {
	return NewContentData(name, 2, testDate, false)
}

func makeKit(id, parentID, typeID int, draftData, publishedData *ContentData) ContentNodeKit {
	return ContentNodeKit{
		Node: NodeInfo{
			ID:         id,
			UID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(strconv.Itoa(id))),
			Level:      1,
			Path:       fmt.Sprintf("%d,%d", parentID, id),
			ParentID:   parentID,
			CreateDate: testDate,
			CreatorID:  -1,
		},
		ContentTypeID: typeID,
		DraftData:     draftData,
		PublishedData: publishedData,
	}
}

func withSort(kit ContentNodeKit, sortOrder int) ContentNodeKit {
	kit.Node.SortOrder = sortOrder
	return kit
}

func newTestStore(t *testing.T, types ...*ContentType) (*ContentStore, *testTypes) {
	t.Helper()
	if len(types) == 0 {
		types = []*ContentType{pageType(1)}
	}
	tt := newTestTypes(types...)
	return NewContentStore(tt, nil), tt
}

func childIDs(r Reader, id int) []int {
	var ids []int
	for n := range r.Children(id) {
		ids = append(ids, n.ID())
	}
	return ids
}

func rootIDs(r Reader) []int {
	var ids []int
	for n := range r.Roots() {
		ids = append(ids, n.ID())
	}
	return ids
}

// nodeShape is a comparable picture of one node used to compare whole trees.
type nodeShape struct {
	ID        int
	ParentID  int
	SortOrder int
	TypeID    int
	Children  []int
	Draft     *ContentData
	Published *ContentData
}

func shapeOf(n *ContentNode) nodeShape {
	return nodeShape{
		ID:        n.ID(),
		ParentID:  n.ParentID(),
		SortOrder: n.SortOrder(),
		TypeID:    n.ContentType().ID(),
		Children:  n.ChildIDs(),
		Draft:     n.Draft().Data(),
		Published: n.Published().Data(),
	}
}

func treeOf(s *ContentStore) map[int]nodeShape {
	out := make(map[int]nodeShape)
	for _, id := range s.IDs() {
		out[id] = shapeOf(s.Get(id))
	}
	return out
}

func sameTree(a, b map[int]nodeShape) bool {
	if len(a) != len(b) {
		return false
	}
	for id, x := range a {
		y, ok := b[id]
		if !ok {
			return false
		}
		if x.ParentID != y.ParentID || x.SortOrder != y.SortOrder || x.TypeID != y.TypeID ||
			!slices.Equal(x.Children, y.Children) || !x.Draft.Equal(y.Draft) || !x.Published.Equal(y.Published) {
			return false
		}
	}
	return true
}

func chainLen(s *ContentStore, id int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for ln := s.nodes[id]; ln != nil; ln = ln.next {
		n++
	}
	return n
}
