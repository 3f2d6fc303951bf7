package service

import "fmt"

// ChangeKind says what happened to a node in persistence.
type ChangeKind int

const (
	// RefreshNode reloads one node.
	RefreshNode ChangeKind = iota + 1
	// RefreshBranch reloads a node and everything below it.
	RefreshBranch
	// Remove drops a node and everything below it.
	Remove
	// RefreshAll reloads the whole tree.
	RefreshAll
)

var changeKindNames = map[ChangeKind]string{
	RefreshNode:   "refresh-node",
	RefreshBranch: "refresh-branch",
	Remove:        "remove",
	RefreshAll:    "refresh-all",
}

func (k ChangeKind) String() string {
	if name, ok := changeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k ChangeKind) MarshalText() ([]byte, error) {
	name, ok := changeKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown change kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a kind name.
func (k *ChangeKind) UnmarshalText(b []byte) error {
	for kind, name := range changeKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown change kind %q", string(b))
}

// ContentChange is one change notification for a node.
type ContentChange struct {
	ID   int        `json:"id"`
	Kind ChangeKind `json:"kind"`
}
