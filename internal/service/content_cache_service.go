package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go-content-cache/internal/data"
	"go-content-cache/internal/logger"
	"go-content-cache/internal/pubcache"
)

// KitRepository loads content node kits from persistence.
type KitRepository interface {
	GetAllKits(ctx context.Context) ([]pubcache.ContentNodeKit, error)
	GetKit(ctx context.Context, id int) (pubcache.ContentNodeKit, error)
	GetBranchKits(ctx context.Context, id int) ([]pubcache.ContentNodeKit, error)
}

// LocalKitStore is the on-disk copy of the kits used for cold starts.
type LocalKitStore interface {
	PutAll(ctx context.Context, kits []pubcache.ContentNodeKit) error
	All(ctx context.Context) ([]pubcache.ContentNodeKit, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Options are the optional collaborators of a ContentCacheService.
type Options struct {
	// Local is the local kit db; nil disables it.
	Local LocalKitStore
	// RehydrateFromLocal makes Rehydrate prefer a non-empty local kit db.
	RehydrateFromLocal bool
	Metrics            *Metrics
	Logger             logger.Logger
}

// ContentCacheService keeps a ContentStore in step with persistence. It is the
// only writer of the store.
type ContentCacheService struct {
	store     *pubcache.ContentStore
	repo      KitRepository
	types     *ContentTypeCache
	local     LocalKitStore
	fromLocal bool
	metrics   *Metrics
	log       logger.Logger
}

// NewContentCacheService creates a service writing to store.
func NewContentCacheService(store *pubcache.ContentStore, repo KitRepository, types *ContentTypeCache, opts Options) *ContentCacheService {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &ContentCacheService{
		store:     store,
		repo:      repo,
		types:     types,
		local:     opts.Local,
		fromLocal: opts.RehydrateFromLocal,
		metrics:   opts.Metrics,
		log:       log.With(map[string]interface{}{"component": "content_cache_service"}),
	}
}

// Store returns the store the service writes to.
func (s *ContentCacheService) Store() *pubcache.ContentStore {
	return s.store
}

// Snapshot pins the current generation of the store.
func (s *ContentCacheService) Snapshot() *pubcache.Snapshot {
	return s.store.Snapshot()
}

// Rehydrate loads every kit and makes the store match it in one writer pass.
// Kits come from the local kit db when enabled and non-empty, else from the
// repository, in which case the local kit db is refilled. Kits that cannot be
// applied are logged; only a failure to load is returned.
func (s *ContentCacheService) Rehydrate(ctx context.Context) (pubcache.ApplyResult, error) {
	start := time.Now()
	kits, source, err := s.loadAll(ctx)
	if err != nil {
		return pubcache.ApplyResult{}, err
	}

	res, applyErr := s.replaceAll(ctx, kits)
	if applyErr != nil {
		s.log.Error(applyErr, "Some kits could not be applied")
	}
	s.metrics.observeRehydrate(source, time.Since(start).Seconds())
	s.log.With(map[string]interface{}{
		"source":   source,
		"kits":     len(kits),
		"applied":  res.Applied,
		"orphans":  len(res.Orphans),
		"failed":   len(res.Failed),
		"duration": time.Since(start).String(),
	}).Info("Content cache rehydrated")
	return res, nil
}

func (s *ContentCacheService) loadAll(ctx context.Context) ([]pubcache.ContentNodeKit, string, error) {
	if s.local != nil && s.fromLocal {
		n, err := s.local.Count(ctx)
		switch {
		case err != nil:
			s.log.Error(err, "Local kit db unreadable, loading from the database")
		case n > 0:
			kits, err := s.local.All(ctx)
			if err == nil {
				return kits, "local", nil
			}
			s.log.Error(err, "Local kit db unreadable, loading from the database")
		}
	}

	kits, err := s.repo.GetAllKits(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load kits: %w", err)
	}
	if s.local != nil {
		if err := s.local.Clear(ctx); err != nil {
			s.log.Error(err, "Failed to clear local kit db")
		} else if err := s.local.PutAll(ctx, kits); err != nil {
			s.log.Error(err, "Failed to refill local kit db")
		}
	}
	return kits, "database", nil
}

// replaceAll applies kits and removes every node they do not mention.
func (s *ContentCacheService) replaceAll(ctx context.Context, kits []pubcache.ContentNodeKit) (pubcache.ApplyResult, error) {
	keep := make(map[int]bool, len(kits))
	for _, k := range kits {
		if !k.IsDelete() {
			keep[k.Node.ID] = true
		}
	}

	var res pubcache.ApplyResult
	err := s.store.Update(func(tx *pubcache.WriteTx) error {
		var err error
		res, err = tx.ApplyKits(ctx, kits)
		for _, id := range s.store.IDs() {
			if !keep[id] && tx.RemoveNode(id) {
				res.Removed++
			}
		}
		return err
	})
	s.metrics.observeApply(res)
	s.metrics.observeStore(s.store)
	return res, err
}

// NotifyContent refreshes the store after content changed in persistence.
// Kits are fetched first, then all changes are applied in one writer pass.
// Errors of individual changes are joined; the other changes still apply.
func (s *ContentCacheService) NotifyContent(ctx context.Context, changes ...ContentChange) error {
	if len(changes) == 0 {
		return nil
	}
	if slices.ContainsFunc(changes, func(c ContentChange) bool { return c.Kind == RefreshAll }) {
		kits, err := s.repo.GetAllKits(ctx)
		if err != nil {
			return fmt.Errorf("failed to load kits: %w", err)
		}
		_, err = s.replaceAll(ctx, kits)
		s.syncLocal(ctx, kits, true)
		return err
	}

	var errs []error
	type step struct {
		change ContentChange
		kits   []pubcache.ContentNodeKit
	}
	steps := make([]step, 0, len(changes))
	for _, c := range changes {
		kits, err := s.fetch(ctx, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		steps = append(steps, step{change: c, kits: kits})
	}

	var changed []pubcache.ContentNodeKit
	err := s.store.Update(func(tx *pubcache.WriteTx) error {
		var txErrs []error
		for _, st := range steps {
			removed := s.removeStale(tx, st.change, st.kits)
			changed = append(changed, removed...)
			s.metrics.observeRemoved(len(removed))

			res, err := tx.ApplyKits(ctx, st.kits)
			s.metrics.observeApply(res)
			if err != nil {
				txErrs = append(txErrs, err)
			}
			changed = append(changed, st.kits...)
		}
		return errors.Join(txErrs...)
	})
	if err != nil {
		errs = append(errs, err)
	}
	s.metrics.observeStore(s.store)
	s.syncLocal(ctx, changed, false)

	s.log.With(map[string]interface{}{
		"changes":    len(changes),
		"generation": s.store.Generation(),
	}).Debug("Content changes applied")
	return errors.Join(errs...)
}

// fetch loads the kits a change needs. A node gone from persistence yields a delete kit.
func (s *ContentCacheService) fetch(ctx context.Context, c ContentChange) ([]pubcache.ContentNodeKit, error) {
	switch c.Kind {
	case Remove:
		return []pubcache.ContentNodeKit{pubcache.DeleteKit(c.ID)}, nil
	case RefreshNode:
		kit, err := s.repo.GetKit(ctx, c.ID)
		if errors.Is(err, data.ErrNodeNotFound) {
			return []pubcache.ContentNodeKit{pubcache.DeleteKit(c.ID)}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to refresh node %d: %w", c.ID, err)
		}
		return []pubcache.ContentNodeKit{kit}, nil
	case RefreshBranch:
		kits, err := s.repo.GetBranchKits(ctx, c.ID)
		if errors.Is(err, data.ErrNodeNotFound) {
			return []pubcache.ContentNodeKit{pubcache.DeleteKit(c.ID)}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to refresh branch %d: %w", c.ID, err)
		}
		return kits, nil
	default:
		return nil, fmt.Errorf("unknown change kind %d for node %d", c.Kind, c.ID)
	}
}

// removeStale drops the cached descendants a change no longer accounts for: all
// of them when the node itself goes away, and those missing from a refreshed
// branch. It returns delete kits for what it removed.
func (s *ContentCacheService) removeStale(tx *pubcache.WriteTx, c ContentChange, kits []pubcache.ContentNodeKit) []pubcache.ContentNodeKit {
	if c.Kind == RefreshNode {
		return nil
	}
	present := make(map[int]bool, len(kits))
	for _, k := range kits {
		if !k.IsDelete() {
			present[k.Node.ID] = true
		}
	}

	var removed []pubcache.ContentNodeKit
	for _, id := range descendants(s.store, c.ID) {
		if !present[id] && tx.RemoveNode(id) {
			removed = append(removed, pubcache.DeleteKit(id))
		}
	}
	return removed
}

// descendants lists the ids below id, deepest first. Each id is visited once.
func descendants(r pubcache.Reader, id int) []int {
	var out []int
	seen := map[int]bool{id: true}
	var walk func(int)
	walk = func(parent int) {
		for child := range r.Children(parent) {
			if seen[child.ID()] {
				continue
			}
			seen[child.ID()] = true
			walk(child.ID())
			out = append(out, child.ID())
		}
	}
	walk(id)
	return out
}

func (s *ContentCacheService) syncLocal(ctx context.Context, kits []pubcache.ContentNodeKit, replace bool) {
	if s.local == nil || len(kits) == 0 {
		return
	}
	if replace {
		if err := s.local.Clear(ctx); err != nil {
			s.log.Error(err, "Failed to clear local kit db")
			return
		}
	}
	if err := s.local.PutAll(ctx, kits); err != nil {
		s.log.Error(err, "Failed to update local kit db")
	}
}

// NotifyContentTypes re-reads changed content types and re-types the nodes
// that use them. Content types that no longer resolve are logged and skipped.
func (s *ContentCacheService) NotifyContentTypes(ctx context.Context, ids ...int) error {
	s.types.Invalidate(ids...)
	if len(ids) == 0 {
		return nil
	}

	var errs []error
	err := s.store.Update(func(tx *pubcache.WriteTx) error {
		for _, id := range ids {
			n, err := tx.ApplyContentTypeChange(ctx, id)
			if errors.Is(err, pubcache.ErrUnresolvedContentType) {
				s.log.With(map[string]interface{}{"content_type_id": id}).Warn("Changed content type no longer resolves")
				continue
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.log.With(map[string]interface{}{"content_type_id": id, "nodes": n}).Debug("Content type change applied")
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	s.metrics.observeStore(s.store)
	return errors.Join(errs...)
}
