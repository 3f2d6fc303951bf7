package service

import (
	"context"
	"fmt"
	"sync"

	"go-content-cache/internal/pubcache"

	"golang.org/x/sync/singleflight"
)

// ContentTypeRepository loads content type definitions.
type ContentTypeRepository interface {
	GetContentType(ctx context.Context, id int) (*pubcache.ContentType, error)
	GetAllContentTypes(ctx context.Context) ([]*pubcache.ContentType, error)
}

// ContentTypeCache resolves content types from memory, fetching misses from the
// repository. Concurrent misses for the same id share one fetch.
type ContentTypeCache struct {
	repo    ContentTypeRepository
	metrics *Metrics

	mu    sync.RWMutex
	types map[int]*pubcache.ContentType
	epoch uint64

	flight singleflight.Group
}

var _ pubcache.ContentTypeLookup = (*ContentTypeCache)(nil)

// NewContentTypeCache creates an empty cache over repo. metrics may be nil.
func NewContentTypeCache(repo ContentTypeRepository, metrics *Metrics) *ContentTypeCache {
	return &ContentTypeCache{
		repo:    repo,
		metrics: metrics,
		types:   make(map[int]*pubcache.ContentType),
	}
}

// ContentType returns the definition of id.
func (c *ContentTypeCache) ContentType(ctx context.Context, id int) (*pubcache.ContentType, error) {
	c.mu.RLock()
	ct, ok := c.types[id]
	epoch := c.epoch
	c.mu.RUnlock()
	if ok {
		c.metrics.observeTypeLookup("hit")
		return ct, nil
	}

	// the epoch keeps a fetch started before an invalidation from being shared after it
	key := fmt.Sprintf("%d@%d", id, epoch)
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		// shared by every waiting caller, so one caller's cancellation must not end it
		ct, err := c.repo.GetContentType(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.epoch == epoch {
			c.types[id] = ct
		}
		c.mu.Unlock()
		return ct, nil
	})

	select {
	case <-ctx.Done():
		c.metrics.observeTypeLookup("error")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.metrics.observeTypeLookup("error")
			return nil, res.Err
		}
		c.metrics.observeTypeLookup("miss")
		return res.Val.(*pubcache.ContentType), nil
	}
}

// Preload fetches every content type in one go.
func (c *ContentTypeCache) Preload(ctx context.Context) error {
	types, err := c.repo.GetAllContentTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to preload content types: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ct := range types {
		c.types[ct.ID()] = ct
	}
	return nil
}

// Invalidate drops the given ids, or everything when none are given.
func (c *ContentTypeCache) Invalidate(ids ...int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	if len(ids) == 0 {
		clear(c.types)
		return
	}
	for _, id := range ids {
		delete(c.types, id)
	}
}

// Len returns the number of cached definitions.
func (c *ContentTypeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types)
}
