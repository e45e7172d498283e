package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramble-labs/lectern/internal/core/domain"
)

func TestNew_RejectsBadCapacities(t *testing.T) {
	_, err := New(WithMaxSessions(0))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(WithMaxMessages(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestCreate_AssignsUniqueIDs(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	a := s.Create()
	b := s.Create()
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, s.Len())
}

func TestCreate_EvictsLRUAtCapacity(t *testing.T) {
	s, err := New(WithMaxSessions(3))
	require.NoError(t, err)

	first := s.Create()
	second := s.Create()
	third := s.Create()
	require.Equal(t, 3, s.Len())

	fourth := s.Create()
	assert.Equal(t, 3, s.Len(), "capacity must never be exceeded")

	_, err = s.Get(first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "oldest session should be evicted")
	for _, id := range []string{second.ID, third.ID, fourth.ID} {
		_, err := s.Get(id)
		assert.NoError(t, err)
	}
}

func TestGet_TouchesRecency(t *testing.T) {
	s, err := New(WithMaxSessions(2))
	require.NoError(t, err)

	first := s.Create()
	second := s.Create()

	// Touch first so second becomes the eviction candidate.
	_, err = s.Get(first.ID)
	require.NoError(t, err)

	third := s.Create()
	_, err = s.Get(second.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get(first.ID)
	assert.NoError(t, err)
	_, err = s.Get(third.ID)
	assert.NoError(t, err)
}

func TestGet_UnknownID(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOrCreate_NeverAdoptsUnknownID(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	sess := s.GetOrCreate("client-invented-id")
	assert.NotEqual(t, "client-invented-id", sess.ID)

	again := s.GetOrCreate(sess.ID)
	assert.Equal(t, sess.ID, again.ID)
}

func TestGetOrCreate_EmptyIDCreates(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	sess := s.GetOrCreate("")
	assert.NotEmpty(t, sess.ID)
}

func TestAppendMessage_TrimsInPairs(t *testing.T) {
	s, err := New(WithMaxMessages(6))
	require.NoError(t, err)

	sess := s.Create()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(sess.ID, domain.RoleUser, fmt.Sprintf("q%d", i)))
		require.NoError(t, s.AppendMessage(sess.ID, domain.RoleAssistant, fmt.Sprintf("a%d", i)))
	}

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 6)

	// The oldest exchanges were dropped whole; history starts on a user
	// turn and alternates.
	assert.Equal(t, domain.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "q2", got.Messages[0].Content)
	assert.Equal(t, "a4", got.Messages[5].Content)
}

func TestAppendMessage_UnknownSession(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	err = s.AppendMessage("missing", domain.RoleUser, "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshots_DoNotAliasStoreState(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	sess := s.Create()
	require.NoError(t, s.AppendMessage(sess.ID, domain.RoleUser, "hello"))

	snap, err := s.Get(sess.ID)
	require.NoError(t, err)
	snap.Messages[0].Content = "mutated"
	snap.DocIDs = append(snap.DocIDs, "rogue")

	fresh, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", fresh.Messages[0].Content)
	assert.Empty(t, fresh.DocIDs)
}

func TestAddDocID_Deduplicates(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	sess := s.Create()
	require.NoError(t, s.AddDocID(sess.ID, "doc1"))
	require.NoError(t, s.AddDocID(sess.ID, "doc1"))
	require.NoError(t, s.AddDocID(sess.ID, "doc2"))

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1", "doc2"}, got.DocIDs)
}

func TestDelete(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	sess := s.Create()
	assert.True(t, s.Delete(sess.ID))
	assert.False(t, s.Delete(sess.ID))
	assert.Equal(t, 0, s.Len())
}

func TestList_OrderedLeastRecentFirst(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	first := s.Create()
	second := s.Create()
	_, err = s.Get(first.ID)
	require.NoError(t, err)

	summaries := s.List()
	require.Len(t, summaries, 2)
	assert.Equal(t, second.ID, summaries[0].ID)
	assert.Equal(t, first.ID, summaries[1].ID)
}

func TestSweepIdle(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s, err := New(withClock(clock))
	require.NoError(t, err)

	stale := s.Create()
	now = now.Add(2 * time.Hour)
	fresh := s.Create()

	removed := s.SweepIdle(time.Hour)
	assert.Equal(t, 1, removed)

	_, err = s.Get(stale.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestSweepIdle_KeepsActiveSessions(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	s.Create()
	s.Create()
	assert.Equal(t, 0, s.SweepIdle(time.Hour))
	assert.Equal(t, 2, s.Len())
}

func TestConcurrentAccess(t *testing.T) {
	s, err := New(WithMaxSessions(10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := s.Create()
			_ = s.AppendMessage(sess.ID, domain.RoleUser, "hi")
			_, _ = s.Get(sess.ID)
			_ = s.AddDocID(sess.ID, "doc")
			s.List()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 10)
}
