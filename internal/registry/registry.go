package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"genrouter/internal/cache"
	"genrouter/internal/core"

	"golang.org/x/sync/singleflight"
)

// Config controls the model registry cache.
type Config struct {
	TTL          time.Duration
	Capacity     int
	FetchTimeout time.Duration
	Logger       core.Logger
	Metrics      core.MetricsCollector
}

// Registry caches model metadata in front of a core.ModelStore.
// Concurrent misses for one id share a single store fetch.
type Registry struct {
	store        core.ModelStore
	cache        *cache.LRUCache[core.Model]
	group        singleflight.Group
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       core.Logger
	metrics      core.MetricsCollector

	mu    sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

// generation identifies the invalidation state of one id.
type generation struct {
	epoch uint64
	id    uint64
}

// New creates a Registry over store.
func New(store core.ModelStore, cfg Config) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = core.ModelCacheTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = core.DefaultModelFetchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &core.NopMetrics{}
	}
	return &Registry{
		store:        store,
		cache:        cache.NewCache[core.Model](cfg.Capacity),
		ttl:          cfg.TTL,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		gens:         make(map[string]uint64),
	}
}

// Resolve returns the model for modelID, reading through the cache.
// Unknown ids yield a model_not_found error and store failures a
// cache_fetch_error. Neither is cached.
func (r *Registry) Resolve(ctx context.Context, modelID string) (core.Model, error) {
	key := cache.ModelCacheKey(modelID)
	if m, ok := r.cache.Get(key); ok {
		r.metrics.RecordCacheHit()
		return m, nil
	}
	r.metrics.RecordCacheMiss()

	ch := r.group.DoChan(key, func() (any, error) {
		return r.fetch(ctx, key, modelID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return core.Model{}, res.Err
		}
		return res.Val.(core.Model), nil
	case <-ctx.Done():
		return core.Model{}, core.NewCacheFetchError(modelID, ctx.Err())
	}
}

func (r *Registry) fetch(ctx context.Context, key, modelID string) (core.Model, error) {
	gen := r.generation(modelID)

	// The fetch is shared, so it must outlive any single caller.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
	defer cancel()

	r.logger.Debug("model cache miss for %s", cache.TruncateCacheKey(key, 64))
	m, err := r.store.Get(fetchCtx, modelID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Model{}, core.NewModelNotFoundError(modelID)
		}
		r.logger.Warn("model store fetch for %s failed: %v", modelID, err)
		return core.Model{}, core.NewCacheFetchError(modelID, err)
	}

	if !r.storeIfCurrent(key, modelID, gen, m) {
		r.logger.Debug("model %s invalidated during fetch, not caching", modelID)
	}
	return m, nil
}

// storeIfCurrent caches m unless modelID was invalidated since gen was
// read. The check and the write happen under mu, as do invalidations.
func (r *Registry) storeIfCurrent(key, modelID string, gen generation, m core.Model) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentGeneration(modelID) != gen {
		return false
	}
	r.cache.Set(key, m, r.ttl)
	return true
}

func (r *Registry) generation(modelID string) generation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentGeneration(modelID)
}

// currentGeneration requires mu.
func (r *Registry) currentGeneration(modelID string) generation {
	return generation{epoch: r.epoch, id: r.gens[modelID]}
}

// Invalidate drops the cached entry for modelID. A fetch already in flight
// for it will not populate the cache.
func (r *Registry) Invalidate(modelID string) {
	key := cache.ModelCacheKey(modelID)
	r.mu.Lock()
	r.gens[modelID]++
	r.cache.Delete(key)
	r.mu.Unlock()
	r.group.Forget(key)
	r.logger.Debug("invalidated model %s", modelID)
}

// InvalidateAll drops every cached entry.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	r.epoch++
	r.gens = make(map[string]uint64)
	r.cache.Clear()
	r.mu.Unlock()
	r.logger.Info("model cache cleared")
}

// List passes through to the store. Listings are not cached.
func (r *Registry) List(ctx context.Context, filter core.ModelFilter) ([]core.Model, error) {
	models, err := r.store.List(ctx, filter)
	if err != nil {
		return nil, &core.Error{Kind: core.ErrKindCacheFetch, Message: "failed to list models", Cause: err}
	}
	return models, nil
}

// Len returns the number of cached entries.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Stop releases the cache's background worker.
func (r *Registry) Stop() {
	r.cache.Stop()
}
