// Package vector provides a cosine-similarity index engine.
// Each document's index holds its chunks alongside their embeddings; search
// embeds the query and ranks chunks by cosine similarity. Artifacts persist
// one-per-document as JSON, written temp-then-rename so a crashed write
// never corrupts a previously persisted index.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driven"
)

// Ensure Engine implements the interface.
var _ driven.IndexEngine = (*Engine)(nil)

// artifactSuffix is the file name suffix for persisted indices.
const artifactSuffix = ".index.json"

// index is the concrete handle type behind driven.IndexHandle.
type index struct {
	Model      string         `json:"model"`
	Dimensions int            `json:"dimensions"`
	Chunks     []domain.Chunk `json:"chunks"`
	Embeddings [][]float32    `json:"embeddings"`
}

// Engine builds and searches per-document vector indices.
type Engine struct {
	embedder driven.EmbeddingService
	dir      string
}

// New creates an engine persisting artifacts under dir.
func New(embedder driven.EmbeddingService, dir string) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, domain.ErrEmbeddingUnavailable)
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: index directory is required", domain.ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	return &Engine{embedder: embedder, dir: dir}, nil
}

// Build constructs an in-memory index by embedding every chunk.
func (e *Engine) Build(ctx context.Context, chunks []domain.Chunk) (driven.IndexHandle, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("building index: %w", domain.ErrEmptyContent)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(embeddings))
	}

	return &index{
		Model:      e.embedder.ModelName(),
		Dimensions: e.embedder.Dimensions(),
		Chunks:     append([]domain.Chunk(nil), chunks...),
		Embeddings: embeddings,
	}, nil
}

// Search embeds the query and returns the top-k chunks by cosine similarity.
func (e *Engine) Search(ctx context.Context, handle driven.IndexHandle, query string, k int) ([]domain.Snippet, error) {
	idx, err := assertHandle(handle)
	if err != nil {
		return nil, err
	}
	if k <= 0 || len(idx.Chunks) == 0 {
		return nil, nil
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	snippets := make([]domain.Snippet, 0, len(idx.Chunks))
	for i, chunk := range idx.Chunks {
		snippets = append(snippets, domain.Snippet{
			Chunk: chunk,
			Score: cosineSimilarity(queryVec, idx.Embeddings[i]),
		})
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})

	if k < len(snippets) {
		snippets = snippets[:k]
	}
	return snippets, nil
}

// Persist durably stores the index artifact for the document.
func (e *Engine) Persist(_ context.Context, handle driven.IndexHandle, docID string) error {
	idx, err := assertHandle(handle)
	if err != nil {
		return err
	}
	if err := domain.ValidateDocID(docID); err != nil {
		return err
	}

	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding index for %s: %w", docID, err)
	}

	final := e.artifactPath(docID)
	tmp, err := os.CreateTemp(e.dir, docID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp artifact for %s: %w", docID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing artifact for %s: %w", docID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing artifact for %s: %w", docID, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("installing artifact for %s: %w", docID, err)
	}
	return nil
}

// Load restores a previously persisted index.
// An artifact embedded with a different model is unusable with the current
// embedder and treated as absent, forcing a rebuild.
func (e *Engine) Load(_ context.Context, docID string) (driven.IndexHandle, error) {
	if err := domain.ValidateDocID(docID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(e.artifactPath(docID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading artifact for %s: %w", docID, err)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decoding artifact for %s: %w", docID, err)
	}
	if idx.Model != e.embedder.ModelName() || idx.Dimensions != e.embedder.Dimensions() {
		return nil, fmt.Errorf("artifact for %s was embedded with %s/%d: %w",
			docID, idx.Model, idx.Dimensions, domain.ErrNotFound)
	}
	return &idx, nil
}

// Remove deletes the persisted artifact. Missing artifacts are not an error.
func (e *Engine) Remove(_ context.Context, docID string) error {
	if err := domain.ValidateDocID(docID); err != nil {
		return err
	}
	err := os.Remove(e.artifactPath(docID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing artifact for %s: %w", docID, err)
	}
	return nil
}

func (e *Engine) artifactPath(docID string) string {
	return filepath.Join(e.dir, docID+artifactSuffix)
}

// assertHandle recovers the concrete index type from the opaque handle.
func assertHandle(handle driven.IndexHandle) (*index, error) {
	idx, ok := handle.(*index)
	if !ok {
		return nil, fmt.Errorf("foreign index handle %T", handle)
	}
	return idx, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
