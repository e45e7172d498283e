package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramble-labs/lectern/internal/core/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func sampleChunks(docID string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		text := "chunk text"
		chunks[i] = domain.Chunk{
			ID:         domain.NewChunkID(docID, i, text),
			DocID:      docID,
			Position:   i,
			Text:       text,
			CharLength: len(text),
			CreatedAt:  time.Now().UTC(),
		}
	}
	return chunks
}

func TestNewRegistry_RequiresDir(t *testing.T) {
	_, err := NewRegistry("")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestSaveAndLoad(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	chunks := sampleChunks("doc1", 3)
	require.NoError(t, r.Save(ctx, "doc1", chunks))

	record, err := r.Load(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "doc1", record.DocID)
	assert.Equal(t, 3, record.NumChunks)
	require.Len(t, record.Chunks, 3)

	// Chunks come back in position order with their fields intact.
	for i, chunk := range record.Chunks {
		assert.Equal(t, i, chunk.Position)
		assert.Equal(t, chunks[i].ID, chunk.ID)
		assert.Equal(t, "doc1", chunk.DocID)
	}
}

func TestSave_ReplacesWholesale(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, "doc1", sampleChunks("doc1", 5)))
	require.NoError(t, r.Save(ctx, "doc1", sampleChunks("doc1", 2)))

	record, err := r.Load(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, record.NumChunks)
	assert.Len(t, record.Chunks, 2)
}

func TestSave_RejectsInvalidDocID(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Save(context.Background(), "bad id", sampleChunks("x", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidDocID)
}

func TestLoad_NotFound(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Load(context.Background(), "absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete_CascadesToChunks(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, "doc1", sampleChunks("doc1", 3)))
	require.NoError(t, r.Delete(ctx, "doc1"))

	_, err := r.Load(ctx, "doc1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var count int
	row := r.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE doc_id = ?", "doc1")
	require.NoError(t, row.Scan(&count))
	assert.Zero(t, count, "chunk rows must be removed with their document")
}

func TestDelete_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	assert.ErrorIs(t, r.Delete(context.Background(), "absent"), domain.ErrNotFound)
}

func TestListDocuments(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ids, err := r.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, r.Save(ctx, "beta", sampleChunks("beta", 1)))
	require.NoError(t, r.Save(ctx, "alpha", sampleChunks("alpha", 1)))

	ids, err = r.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestReopen_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	r1, err := NewRegistry(dir)
	require.NoError(t, err)
	require.NoError(t, r1.Save(ctx, "doc1", sampleChunks("doc1", 2)))
	require.NoError(t, r1.Close())

	r2, err := NewRegistry(dir)
	require.NoError(t, err)
	defer r2.Close()

	record, err := r2.Load(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, record.NumChunks)
}
