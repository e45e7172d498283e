package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
)

// fakeHandle is what the fake engine hands out.
type fakeHandle struct {
	docID string
	gen   int
}

// fakeEngine implements driven.IndexEngine with in-memory artifacts.
type fakeEngine struct {
	mu        sync.Mutex
	persisted map[string]*fakeHandle
	builds    atomic.Int32
	loads     atomic.Int32
	persists  atomic.Int32

	buildDelay  time.Duration
	buildErr    error
	persistErr  error
	persistGate chan struct{} // when set, Persist blocks until it is closed
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{persisted: make(map[string]*fakeHandle)}
}

func (f *fakeEngine) Build(_ context.Context, chunks []domain.Chunk) (driven.IndexHandle, error) {
	n := f.builds.Add(1)
	if f.buildDelay > 0 {
		time.Sleep(f.buildDelay)
	}
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &fakeHandle{docID: chunks[0].DocID, gen: int(n)}, nil
}

func (f *fakeEngine) Search(_ context.Context, _ driven.IndexHandle, _ string, _ int) ([]domain.Snippet, error) {
	return nil, nil
}

func (f *fakeEngine) Persist(_ context.Context, handle driven.IndexHandle, docID string) error {
	f.persists.Add(1)
	if f.persistGate != nil {
		<-f.persistGate
	}
	if f.persistErr != nil {
		return f.persistErr
	}
	f.mu.Lock()
	f.persisted[docID] = handle.(*fakeHandle)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Load(_ context.Context, docID string) (driven.IndexHandle, error) {
	f.loads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.persisted[docID]; ok {
		return h, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEngine) Remove(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.persisted, docID)
	return nil
}

func chunksFor(docID string) []domain.Chunk {
	return []domain.Chunk{{ID: docID + "_chunk_0_deadbeef", DocID: docID, Position: 0, Text: "text"}}
}

func providerFor(docID string) ChunkProvider {
	return func(context.Context) ([]domain.Chunk, error) {
		return chunksFor(docID), nil
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(newFakeEngine(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestGetOrBuild_BuildsOnMiss(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 4)
	require.NoError(t, err)

	handle, err := c.GetOrBuild(context.Background(), "doc1", providerFor("doc1"))
	require.NoError(t, err)
	assert.Equal(t, "doc1", handle.(*fakeHandle).docID)
	assert.Equal(t, int32(1), engine.builds.Load())
	assert.True(t, c.Contains("doc1"))
}

func TestGetOrBuild_HitSkipsEngine(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 4)
	require.NoError(t, err)

	_, err = c.GetOrBuild(context.Background(), "doc1", providerFor("doc1"))
	require.NoError(t, err)
	_, err = c.GetOrBuild(context.Background(), "doc1", providerFor("doc1"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), engine.builds.Load())
	assert.Equal(t, int32(1), engine.loads.Load())
}

func TestGetOrBuild_LoadsPersistedArtifact(t *testing.T) {
	engine := newFakeEngine()
	engine.persisted["doc1"] = &fakeHandle{docID: "doc1", gen: 99}
	c, err := New(engine, 4)
	require.NoError(t, err)

	failing := func(context.Context) ([]domain.Chunk, error) {
		return nil, errors.New("provider must not be called")
	}
	handle, err := c.GetOrBuild(context.Background(), "doc1", failing)
	require.NoError(t, err)
	assert.Equal(t, 99, handle.(*fakeHandle).gen)
	assert.Equal(t, int32(0), engine.builds.Load())
}

func TestGetOrBuild_EmptyChunks(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 4)
	require.NoError(t, err)

	empty := func(context.Context) ([]domain.Chunk, error) { return nil, nil }
	_, err = c.GetOrBuild(context.Background(), "doc1", empty)
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
	assert.False(t, c.Contains("doc1"))
}

func TestGetOrBuild_ProviderErrorNotCached(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 4)
	require.NoError(t, err)

	_, err = c.GetOrBuild(context.Background(), "doc1", func(context.Context) ([]domain.Chunk, error) {
		return nil, domain.ErrNotFound
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A later call with a working provider succeeds.
	_, err = c.GetOrBuild(context.Background(), "doc1", providerFor("doc1"))
	assert.NoError(t, err)
}

func TestGetOrBuild_ConcurrentCallersShareOneBuild(t *testing.T) {
	engine := newFakeEngine()
	engine.buildDelay = 20 * time.Millisecond
	c, err := New(engine, 4)
	require.NoError(t, err)

	const callers = 50
	var wg sync.WaitGroup
	handles := make([]driven.IndexHandle, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = c.GetOrBuild(context.Background(), "doc1", providerFor("doc1"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
	assert.Equal(t, int32(1), engine.builds.Load())
}

func TestGetOrBuild_CallerCancellationDoesNotPoisonResult(t *testing.T) {
	engine := newFakeEngine()
	engine.buildDelay = 20 * time.Millisecond
	c, err := New(engine, 4)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrBuild(ctx, "doc1", providerFor("doc1"))
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	err = <-done
	assert.ErrorIs(t, err, context.Canceled)

	// The shared build still completed and is resident for others.
	assert.Eventually(t, func() bool { return c.Contains("doc1") }, time.Second, 5*time.Millisecond)
}

func TestRebuild_BypassesCacheAndArtifact(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 4)
	require.NoError(t, err)

	first, err := c.GetOrBuild(context.Background(), "doc1", providerFor("doc1"))
	require.NoError(t, err)

	second, err := c.Rebuild(context.Background(), "doc1", providerFor("doc1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.(*fakeHandle).gen, second.(*fakeHandle).gen)
	assert.Equal(t, int32(2), engine.builds.Load())
	assert.Equal(t, 1, c.Len())
}

func TestRebuild_DoesNotJoinInFlightBuild(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 4)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(context.Context) ([]domain.Chunk, error) {
		close(started)
		<-release
		return chunksFor("doc1"), nil
	}

	type result struct {
		handle driven.IndexHandle
		err    error
	}
	done := make(chan result, 1)
	go func() {
		h, err := c.GetOrBuild(context.Background(), "doc1", slow)
		done <- result{h, err}
	}()
	<-started

	// A forced rebuild while an ordinary build is still reading its chunks
	// must run its own build immediately, not wait on or reuse the
	// in-flight one.
	rebuilt, err := c.Rebuild(context.Background(), "doc1", providerFor("doc1"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), engine.builds.Load())

	close(release)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, int32(2), engine.builds.Load())

	// The superseded build must not displace the rebuilt index.
	cached, err := c.GetOrBuild(context.Background(), "doc1", providerFor("doc1"))
	require.NoError(t, err)
	assert.Same(t, rebuilt, cached)
}

func TestPersist_OverlappingRebuildStaysDirty(t *testing.T) {
	engine := newFakeEngine()
	engine.persistGate = make(chan struct{})
	c, err := New(engine, 2)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.GetOrBuild(ctx, "doc1", providerFor("doc1"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Persist(ctx, "doc1") }()
	require.Eventually(t, func() bool { return engine.persists.Load() == 1 }, time.Second, time.Millisecond)

	// The rebuilt index lands while the first persist is still writing the
	// handle it replaced.
	rebuilt, err := c.Rebuild(ctx, "doc1", providerFor("doc1"))
	require.NoError(t, err)

	close(engine.persistGate)
	require.NoError(t, <-done)

	// The overlapped persist stored the old handle, so the rebuilt one
	// must still be dirty; the next persist writes it back.
	require.NoError(t, c.Persist(ctx, "doc1"))
	assert.Equal(t, int32(2), engine.persists.Load())
	engine.mu.Lock()
	stored := engine.persisted["doc1"]
	engine.mu.Unlock()
	assert.Same(t, rebuilt, stored)
}

func TestInvalidate_DuringBuildIsNotResurrected(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 4)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(context.Context) ([]domain.Chunk, error) {
		close(started)
		<-release
		return chunksFor("doc1"), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrBuild(context.Background(), "doc1", slow)
		done <- err
	}()
	<-started

	dropped, err := c.Invalidate(context.Background(), "doc1")
	require.NoError(t, err)
	assert.False(t, dropped)

	close(release)
	require.NoError(t, <-done)

	// The deleted document must not reappear, resident or on disk.
	assert.False(t, c.Contains("doc1"))
	engine.mu.Lock()
	_, onDisk := engine.persisted["doc1"]
	engine.mu.Unlock()
	assert.False(t, onDisk)
}

func TestEviction_LRUOverCapacity(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 3)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("doc%d", i)
		_, err := c.GetOrBuild(ctx, id, providerFor(id))
		require.NoError(t, err)
	}

	// Touch doc1 so doc2 is least recently used.
	_, err = c.GetOrBuild(ctx, "doc1", providerFor("doc1"))
	require.NoError(t, err)

	_, err = c.GetOrBuild(ctx, "doc4", providerFor("doc4"))
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Contains("doc2"))
	assert.True(t, c.Contains("doc1"))
	assert.True(t, c.Contains("doc3"))
	assert.True(t, c.Contains("doc4"))
}

func TestEviction_PersistsDirtyVictim(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 1)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.GetOrBuild(ctx, "doc1", providerFor("doc1"))
	require.NoError(t, err)

	// doc1 was built in memory and never persisted; evicting it must
	// write it back.
	_, err = c.GetOrBuild(ctx, "doc2", providerFor("doc2"))
	require.NoError(t, err)

	engine.mu.Lock()
	_, persisted := engine.persisted["doc1"]
	engine.mu.Unlock()
	assert.True(t, persisted)
	assert.False(t, c.Contains("doc1"))
}

func TestEviction_CleanVictimSkipsWriteBack(t *testing.T) {
	engine := newFakeEngine()
	engine.persisted["doc1"] = &fakeHandle{docID: "doc1"}
	c, err := New(engine, 1)
	require.NoError(t, err)

	ctx := context.Background()
	// Resident via load, so the entry is clean.
	_, err = c.GetOrBuild(ctx, "doc1", providerFor("doc1"))
	require.NoError(t, err)

	_, err = c.GetOrBuild(ctx, "doc2", providerFor("doc2"))
	require.NoError(t, err)

	assert.Equal(t, int32(0), engine.persists.Load())
}

func TestEviction_WriteBackFailureStillEvicts(t *testing.T) {
	engine := newFakeEngine()
	engine.persistErr = errors.New("disk full")
	c, err := New(engine, 1)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.GetOrBuild(ctx, "doc1", providerFor("doc1"))
	require.NoError(t, err)
	_, err = c.GetOrBuild(ctx, "doc2", providerFor("doc2"))
	require.NoError(t, err)

	assert.False(t, c.Contains("doc1"))
	assert.Equal(t, 1, c.Len())
}

func TestPersist_ClearsDirtyFlag(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 2)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.GetOrBuild(ctx, "doc1", providerFor("doc1"))
	require.NoError(t, err)

	require.NoError(t, c.Persist(ctx, "doc1"))
	assert.Equal(t, int32(1), engine.persists.Load())

	// Already clean: a second persist is a no-op.
	require.NoError(t, c.Persist(ctx, "doc1"))
	assert.Equal(t, int32(1), engine.persists.Load())
}

func TestPersist_MissIsNoOp(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 2)
	require.NoError(t, err)

	assert.NoError(t, c.Persist(context.Background(), "absent"))
	assert.Equal(t, int32(0), engine.persists.Load())
}

func TestInvalidate(t *testing.T) {
	engine := newFakeEngine()
	c, err := New(engine, 2)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.GetOrBuild(ctx, "doc1", providerFor("doc1"))
	require.NoError(t, err)
	require.NoError(t, c.Persist(ctx, "doc1"))

	dropped, err := c.Invalidate(ctx, "doc1")
	require.NoError(t, err)
	assert.True(t, dropped)
	assert.False(t, c.Contains("doc1"))

	engine.mu.Lock()
	_, stillThere := engine.persisted["doc1"]
	engine.mu.Unlock()
	assert.False(t, stillThere)

	dropped, err = c.Invalidate(ctx, "doc1")
	require.NoError(t, err)
	assert.False(t, dropped)
}
