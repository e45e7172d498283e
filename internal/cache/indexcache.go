// Package cache provides a capacity-bounded, LRU-evicting cache of
// per-document retrieval indices.
//
// The cache sits between the retrieval orchestrator and the index engine:
// hits return a resident handle, misses load a persisted artifact or build a
// fresh index from chunks. Concurrent misses for the same document are
// coalesced so at most one build or load is in flight per key. The lock
// covers only map and recency bookkeeping; building, loading and persisting
// all happen outside it.
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
	"github.com/ramble-labs/lectern/internal/logger"
)

// DefaultCapacity is the default number of resident indices.
const DefaultCapacity = 20

// ChunkProvider supplies the chunks to build an index from when no persisted
// artifact exists. In practice this is always backed by the metadata
// registry.
type ChunkProvider func(ctx context.Context) ([]domain.Chunk, error)

// entry is one resident index.
type entry struct {
	handle  driven.IndexHandle
	element *list.Element

	// dirty marks an index that was built in memory and not yet durably
	// persisted. Evicting a dirty entry persists it first; an entry loaded
	// unchanged from disk needs no write-back.
	dirty bool
}

// IndexCache is an LRU cache of per-document index handles.
type IndexCache struct {
	engine   driven.IndexEngine
	capacity int

	mu      sync.Mutex
	entries map[string]*entry
	recency *list.List // front = least recently used, values are doc IDs

	// epochs counts, per document, how many times the resident handle has
	// been replaced or invalidated. Builds and persists run outside the
	// lock, so each records the epoch it started from and re-checks before
	// committing: a mismatch means a rebuild or invalidation won the race
	// and the result must not overwrite newer state. Epochs are never
	// deleted; resetting one to zero would let a stale in-flight build
	// match it again.
	epochs map[string]uint64

	group singleflight.Group
}

// New creates an index cache with a fixed capacity.
func New(engine driven.IndexEngine, capacity int) (*IndexCache, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: index engine is required", domain.ErrInvalidConfig)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: index cache capacity must be positive, got %d", domain.ErrInvalidConfig, capacity)
	}
	return &IndexCache{
		engine:   engine,
		capacity: capacity,
		entries:  make(map[string]*entry),
		recency:  list.New(),
		epochs:   make(map[string]uint64),
	}, nil
}

// GetOrBuild returns the index for a document, loading a persisted artifact
// on a cache miss and building from the chunk provider only if that also
// misses. Concurrent callers for the same document share one build: the
// second caller waits for the first and reuses its result.
func (c *IndexCache) GetOrBuild(ctx context.Context, docID string, provider ChunkProvider) (driven.IndexHandle, error) {
	if handle, ok := c.lookup(docID); ok {
		return handle, nil
	}
	return c.fill(ctx, docID, provider)
}

// Rebuild builds a fresh index from the chunk provider, bypassing both the
// resident entry and any persisted artifact. Used for forced re-ingestion.
// It deliberately does not join the flight group: a caller forcing a rebuild
// has just replaced the document's chunks and must not be handed the result
// of a build started against the old content.
func (c *IndexCache) Rebuild(ctx context.Context, docID string, provider ChunkProvider) (driven.IndexHandle, error) {
	buildCtx := context.WithoutCancel(ctx)
	handle, err := c.build(buildCtx, docID, provider, c.epoch(docID))
	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return handle, nil
}

// fill resolves a miss under the per-key flight group.
func (c *IndexCache) fill(ctx context.Context, docID string, provider ChunkProvider) (driven.IndexHandle, error) {
	// The flight must outlive any single caller: an abandoned query does
	// not cancel work other callers are waiting on.
	buildCtx := context.WithoutCancel(ctx)

	handle, err, _ := c.group.Do(docID, func() (any, error) {
		// The epoch is read before the residency check: if a forced
		// rebuild lands between the two, the lookup sees its entry; if it
		// lands after, the epoch mismatch stops this flight from caching
		// over it.
		start := c.epoch(docID)

		// Another flight may have resolved this key while we queued.
		if handle, ok := c.lookup(docID); ok {
			return handle, nil
		}

		handle, err := c.engine.Load(buildCtx, docID)
		if err == nil {
			logger.Debug("index %s loaded from disk", docID)
			c.insert(buildCtx, docID, handle, false, start)
			return handle, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("loading index %s: %w", docID, err)
		}

		return c.build(buildCtx, docID, provider, start)
	})
	if err != nil {
		return nil, err
	}

	// Select a fresh error for callers whose context died while the shared
	// flight completed; the result itself is still cached for others.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return handle, nil
}

// build constructs an index from the provider's chunks and caches it, unless
// the key moved past startEpoch while the build ran.
func (c *IndexCache) build(ctx context.Context, docID string, provider ChunkProvider, startEpoch uint64) (driven.IndexHandle, error) {
	chunks, err := provider(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("building index %s: %w", docID, domain.ErrEmptyContent)
	}

	handle, err := c.engine.Build(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("building index %s: %w", docID, err)
	}
	logger.Debug("index %s built (%d chunks)", docID, len(chunks))
	c.insert(ctx, docID, handle, true, startEpoch)
	return handle, nil
}

// Persist durably stores the index for a document and clears its dirty
// flag. A miss or an already-clean entry is a no-op.
func (c *IndexCache) Persist(ctx context.Context, docID string) error {
	c.mu.Lock()
	e, ok := c.entries[docID]
	if !ok || !e.dirty {
		c.mu.Unlock()
		return nil
	}
	handle := e.handle
	written := c.epochs[docID]
	c.mu.Unlock()

	if err := c.engine.Persist(ctx, handle, docID); err != nil {
		return fmt.Errorf("persisting index %s: %w", docID, err)
	}

	// Clear the flag only if the entry still holds the handle that was
	// written. If a rebuild replaced it mid-persist, the new index has not
	// been stored and must stay dirty so eviction writes it back.
	c.mu.Lock()
	if e, ok := c.entries[docID]; ok && c.epochs[docID] == written {
		e.dirty = false
	}
	c.mu.Unlock()
	return nil
}

// Invalidate removes the cache entry and deletes the persisted artifact.
// It succeeds even if the entry is not cached. Returns whether a resident
// entry was dropped.
func (c *IndexCache) Invalidate(ctx context.Context, docID string) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[docID]
	if ok {
		c.recency.Remove(e.element)
		delete(c.entries, docID)
	}
	// Bumped even with no resident entry: a build may be in flight for
	// this key, and it must not re-insert the deleted document.
	c.epochs[docID]++
	c.mu.Unlock()

	if err := c.engine.Remove(ctx, docID); err != nil {
		return ok, fmt.Errorf("removing index artifact %s: %w", docID, err)
	}
	return ok, nil
}

// Contains reports residency without touching recency. Intended for
// inspection and tests.
func (c *IndexCache) Contains(docID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[docID]
	return ok
}

// Len returns the number of resident indices.
func (c *IndexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// lookup returns a resident handle, touching its recency.
func (c *IndexCache) lookup(docID string) (driven.IndexHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[docID]
	if !ok {
		return nil, false
	}
	c.recency.MoveToBack(e.element)
	return e.handle, true
}

// epoch returns the current epoch for a key.
func (c *IndexCache) epoch(docID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs[docID]
}

// victim is an evicted entry awaiting write-back.
type victim struct {
	docID  string
	handle driven.IndexHandle
	dirty  bool
}

// insert adds a handle as most-recently-used and evicts over capacity.
// Victims are detached under the lock and persisted after it is released,
// so eviction I/O never blocks other cache operations. The inserting caller
// pays for the write-back of whatever it displaced, which bounds how fast
// dirty entries can pile up during an eviction storm.
func (c *IndexCache) insert(ctx context.Context, docID string, handle driven.IndexHandle, dirty bool, startEpoch uint64) {
	var victims []victim

	c.mu.Lock()
	if c.epochs[docID] != startEpoch {
		// The key was rebuilt or invalidated while this build ran. Caching
		// the result now would resurrect a deleted document or clobber a
		// newer index; the handle is returned to its callers uncached.
		c.mu.Unlock()
		logger.Debug("index %s build superseded, not cached", docID)
		return
	}
	c.epochs[docID]++

	if e, ok := c.entries[docID]; ok {
		// Replacing an existing entry (forced rebuild).
		e.handle = handle
		e.dirty = dirty
		c.recency.MoveToBack(e.element)
	} else {
		e := &entry{handle: handle, dirty: dirty}
		e.element = c.recency.PushBack(docID)
		c.entries[docID] = e

		for len(c.entries) > c.capacity {
			front := c.recency.Front()
			if front == nil {
				break
			}
			id := front.Value.(string)
			ev := c.entries[id]
			c.recency.Remove(front)
			delete(c.entries, id)
			victims = append(victims, victim{docID: id, handle: ev.handle, dirty: ev.dirty})
		}
	}
	c.mu.Unlock()

	for _, v := range victims {
		if !v.dirty {
			logger.Debug("index %s evicted (LRU, clean)", v.docID)
			continue
		}
		// The memory bound is non-negotiable: the entry is gone either
		// way. A failed write-back costs a rebuild on the next query,
		// never a wrong answer.
		if err := c.engine.Persist(ctx, v.handle, v.docID); err != nil {
			logger.Error("index %s evicted but write-back failed: %v", v.docID, err)
			continue
		}
		logger.Debug("index %s evicted (LRU, persisted)", v.docID)
	}
}

// isNotFound reports whether err is the registry/engine not-found sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
