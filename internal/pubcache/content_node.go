package pubcache

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ContentNode is the tree-structural record of a node: identity, position,
// and at most one draft and one published model.
//
// A ContentNode is never modified once built. The store replaces nodes, it
// does not edit them, so a node held by a reader stays as it was.
type ContentNode struct {
	info        NodeInfo
	contentType *ContentType
	childIDs    []int
	accessor    SnapshotAccessor

	draft     *PublishedContent
	published *PublishedContent
}

// NodeBuilder is phase one of node construction. It carries the structural
// fields; Build supplies the content type and data and yields the node.
type NodeBuilder struct {
	info     NodeInfo
	childIDs []int
	built    bool
}

// NewNodeBuilder starts building a node from its structural fields.
func NewNodeBuilder(info NodeInfo) *NodeBuilder {
	return &NodeBuilder{info: info}
}

// WithChildren sets the ordered child ids the node starts with.
func (b *NodeBuilder) WithChildren(ids []int) *NodeBuilder {
	b.childIDs = ids
	return b
}

// Build completes the node. It can be called once; at least one of draft and
// published must be non-nil.
func (b *NodeBuilder) Build(contentType *ContentType, draft, published *ContentData, accessor SnapshotAccessor) (*ContentNode, error) {
	if b.built {
		return nil, fmt.Errorf("%w: node %d already built", ErrInvalidNodeState, b.info.ID)
	}
	if contentType == nil {
		return nil, fmt.Errorf("%w: node %d has no content type", ErrUnresolvedContentType, b.info.ID)
	}
	if draft == nil && published == nil {
		return nil, fmt.Errorf("%w: node %d has neither draft nor published data", ErrInvalidNodeState, b.info.ID)
	}
	b.built = true

	n := &ContentNode{
		info:        b.info,
		contentType: contentType,
		childIDs:    b.childIDs,
		accessor:    accessor,
	}
	if n.childIDs == nil {
		n.childIDs = []int{}
	}
	n.draft = newPublishedContent(n, draft, true)
	n.published = newPublishedContent(n, published, false)
	return n, nil
}

// newRootNode builds the synthetic parent of all top-level nodes. It has no content
// and is never returned to readers.
func newRootNode(childIDs []int) *ContentNode {
	return &ContentNode{
		info:     NodeInfo{ID: RootID, ParentID: RootID},
		childIDs: childIDs,
	}
}

// cloneWithChildren copies the node with a new child id list. Models are rebuilt
// so they point back at the clone; their data is shared.
func (n *ContentNode) cloneWithChildren(childIDs []int) *ContentNode {
	c := &ContentNode{
		info:        n.info,
		contentType: n.contentType,
		childIDs:    childIDs,
		accessor:    n.accessor,
	}
	c.draft = newPublishedContent(c, n.draft.Data(), true)
	c.published = newPublishedContent(c, n.published.Data(), false)
	return c
}

// cloneWithContentType copies the node under a new content type definition.
// The child id list is shared: it is never modified in place.
func (n *ContentNode) cloneWithContentType(contentType *ContentType) *ContentNode {
	c := &ContentNode{
		info:        n.info,
		contentType: contentType,
		childIDs:    n.childIDs,
		accessor:    n.accessor,
	}
	c.draft = newPublishedContent(c, n.draft.Data(), true)
	c.published = newPublishedContent(c, n.published.Data(), false)
	return c
}

func (n *ContentNode) ID() int                   { return n.info.ID }
func (n *ContentNode) UID() uuid.UUID            { return n.info.UID }
func (n *ContentNode) Level() int                { return n.info.Level }
func (n *ContentNode) Path() string              { return n.info.Path }
func (n *ContentNode) SortOrder() int            { return n.info.SortOrder }
func (n *ContentNode) ParentID() int             { return n.info.ParentID }
func (n *ContentNode) CreateDate() time.Time     { return n.info.CreateDate }
func (n *ContentNode) CreatorID() int            { return n.info.CreatorID }
func (n *ContentNode) Info() NodeInfo            { return n.info }
func (n *ContentNode) ContentType() *ContentType { return n.contentType }

// ChildIDs returns a copy of the ordered child id list.
func (n *ContentNode) ChildIDs() []int {
	return slices.Clone(n.childIDs)
}

// ChildCount returns the number of child ids, including ids that may no longer resolve.
func (n *ContentNode) ChildCount() int {
	return len(n.childIDs)
}

// Draft returns the draft model, or nil.
func (n *ContentNode) Draft() *PublishedContent {
	return n.draft
}

// Published returns the published model, or nil.
func (n *ContentNode) Published() *PublishedContent {
	return n.published
}

// Content picks the model a reader should see: in preview the draft when there
// is one, else the published model.
func (n *ContentNode) Content(preview bool) *PublishedContent {
	if preview && n.draft != nil {
		return n.draft
	}
	return n.published
}

// ToKit turns the node back into the kit that would rebuild it.
func (n *ContentNode) ToKit() ContentNodeKit {
	kit := ContentNodeKit{
		Node:          n.info,
		DraftData:     n.draft.Data(),
		PublishedData: n.published.Data(),
	}
	if n.contentType != nil {
		kit.ContentTypeID = n.contentType.ID()
	}
	return kit
}
