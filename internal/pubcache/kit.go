package pubcache

import (
	"time"

	"github.com/google/uuid"
)

// RootID is the parent id of top-level nodes.
const RootID = -1

// NodeInfo carries the structural attributes of a node.
type NodeInfo struct {
	ID         int       `json:"id"`
	UID        uuid.UUID `json:"key"`
	Level      int       `json:"level"`
	Path       string    `json:"path"`
	SortOrder  int       `json:"sortOrder"`
	ParentID   int       `json:"parentId"`
	CreateDate time.Time `json:"createDate"`
	CreatorID  int       `json:"creatorId"`
}

// ContentNodeKit is the unit of change delivered by the persistence layer:
// one node's current structural and content state.
type ContentNodeKit struct {
	Node          NodeInfo     `json:"node"`
	ContentTypeID int          `json:"contentTypeId"`
	DraftData     *ContentData `json:"draft,omitempty"`
	PublishedData *ContentData `json:"published,omitempty"`
}

// IsDelete reports whether the kit carries no content at all, which signals deletion.
func (k ContentNodeKit) IsDelete() bool {
	return k.DraftData == nil && k.PublishedData == nil
}

// DeleteKit returns a kit that removes the given node when applied.
func DeleteKit(id int) ContentNodeKit {
	return ContentNodeKit{Node: NodeInfo{ID: id}}
}
