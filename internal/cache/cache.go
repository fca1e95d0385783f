// Package cache holds computed baseline ensembles so repeated analyses against
// the same historical period skip recomputation.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/observability"
)

// DefaultCapacity is used when a non-positive capacity is configured.
const DefaultCapacity = 64

// Outcome reports how a lookup was served.
type Outcome string

const (
	OutcomeHit    Outcome = "hit"    // served from memory
	OutcomeMiss   Outcome = "miss"   // computed by this caller
	OutcomeShared Outcome = "shared" // waited on another caller's computation
	OutcomeStore  Outcome = "store"  // loaded from the shared store tier
)

// Store is an optional second tier shared between engine instances.
type Store interface {
	Get(ctx context.Context, key string) (domain.EnsembleResult, bool, error)
	Set(ctx context.Context, key string, v domain.EnsembleResult) error
}

// ComputeFunc produces the baseline ensemble on a miss.
type ComputeFunc func(ctx context.Context) (domain.EnsembleResult, error)

type entry struct {
	value    domain.EnsembleResult
	lastRead atomic.Uint64
}

// BaselineCache is a bounded in-memory cache of baseline ensembles. Readers
// share a read lock and bump recency atomically; the least recently read
// entry is evicted once capacity is exceeded. Concurrent misses on the same
// key run the computation once.
type BaselineCache struct {
	mu       sync.RWMutex
	entries  map[Key]*entry
	capacity int
	tick     atomic.Uint64

	group   singleflight.Group
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a cache holding at most capacity entries. store may be nil.
func New(capacity int, store Store, logger *slog.Logger, metrics *observability.Metrics) *BaselineCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BaselineCache{
		entries:  make(map[Key]*entry, capacity),
		capacity: capacity,
		store:    store,
		logger:   logger,
		metrics:  metrics,
	}
}

type filled struct {
	value   domain.EnsembleResult
	outcome Outcome
}

// Get returns the ensemble for key, computing it on a miss. Callers receive
// their own copy and may modify it freely. Failed computations are not cached.
func (c *BaselineCache) Get(ctx context.Context, key Key, compute ComputeFunc) (domain.EnsembleResult, Outcome, error) {
	if v, ok := c.lookup(key); ok {
		c.record(OutcomeHit)
		return v.Clone(), OutcomeHit, nil
	}

	// The computation outlives a cancelled leader so waiting callers still get a result.
	fillCtx := context.WithoutCancel(ctx)
	var leader bool
	ch := c.group.DoChan(string(key), func() (any, error) {
		leader = true
		return c.fill(fillCtx, key, compute)
	})

	select {
	case <-ctx.Done():
		return domain.EnsembleResult{}, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.EnsembleResult{}, "", res.Err
		}
		f := res.Val.(filled)
		outcome := f.outcome
		if !leader {
			outcome = OutcomeShared
		}
		c.record(outcome)
		return f.value.Clone(), outcome, nil
	}
}

func (c *BaselineCache) fill(ctx context.Context, key Key, compute ComputeFunc) (filled, error) {
	// Another flight may have finished between our lookup and this one starting.
	if v, ok := c.lookup(key); ok {
		return filled{value: v, outcome: OutcomeHit}, nil
	}

	if c.store != nil {
		v, ok, err := c.store.Get(ctx, string(key))
		switch {
		case err != nil:
			c.logger.Warn("baseline store read failed", "key", key, "error", err)
		case ok:
			c.put(key, v)
			return filled{value: v, outcome: OutcomeStore}, nil
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return filled{}, err
	}
	c.put(key, v)
	if c.store != nil {
		if err := c.store.Set(ctx, string(key), v); err != nil {
			c.logger.Warn("baseline store write failed", "key", key, "error", err)
		}
	}
	return filled{value: v, outcome: OutcomeMiss}, nil
}

func (c *BaselineCache) lookup(key Key) (domain.EnsembleResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return domain.EnsembleResult{}, false
	}
	e.lastRead.Store(c.tick.Add(1))
	return e.value, true
}

func (c *BaselineCache) put(key Key, v domain.EnsembleResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = v.Clone()
		e.lastRead.Store(c.tick.Add(1))
		return
	}
	e := &entry{value: v.Clone()}
	e.lastRead.Store(c.tick.Add(1))
	c.entries[key] = e
	for len(c.entries) > c.capacity {
		c.evictOldest()
	}
	c.metrics.BaselineCacheEntries.Set(float64(len(c.entries)))
}

// evictOldest removes the least recently read entry. Caller holds mu.
func (c *BaselineCache) evictOldest() {
	var (
		victim Key
		oldest uint64
		found  bool
	)
	for k, e := range c.entries {
		if t := e.lastRead.Load(); !found || t < oldest {
			victim, oldest, found = k, t, true
		}
	}
	if found {
		delete(c.entries, victim)
		c.logger.Debug("baseline evicted", "key", victim)
	}
}

// Invalidate drops one entry and reports whether it was present. The shared
// store tier is left untouched.
func (c *BaselineCache) Invalidate(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.metrics.BaselineCacheEntries.Set(float64(len(c.entries)))
	return ok
}

// Purge drops every in-memory entry.
func (c *BaselineCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.metrics.BaselineCacheEntries.Set(0)
}

// Len returns the number of in-memory entries.
func (c *BaselineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *BaselineCache) record(o Outcome) {
	c.metrics.BaselineCache.WithLabelValues(string(o)).Inc()
}
