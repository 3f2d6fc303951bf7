package pubcache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNodeState is returned when a node would carry neither a draft nor a published version,
	// or when a builder is asked to build twice.
	ErrInvalidNodeState = errors.New("invalid node state")

	// ErrOrphanKit is returned when a kit references a parent that is not in the store.
	ErrOrphanKit = errors.New("orphan kit: parent not in store")

	// ErrUnresolvedContentType is returned when a content type id has no definition.
	ErrUnresolvedContentType = errors.New("unresolved content type")

	// ErrWriterClosed is returned when a write transaction is used after its pass completed.
	ErrWriterClosed = errors.New("write transaction already completed")
)

// KitError describes a kit that could not be applied to the store.
type KitError struct {
	NodeID int
	Op     string
	Err    error
}

func (e *KitError) Error() string {
	return fmt.Sprintf("%s failed for node %d: %v", e.Op, e.NodeID, e.Err)
}

func (e *KitError) Unwrap() error {
	return e.Err
}
