// Package cached decorates an embedding service with a TTL cache.
// Ingestion and querying embed the same texts repeatedly (re-ingest checks,
// repeated questions), and embedding calls dominate request latency; the
// decorator memoises them keyed by content hash.
package cached

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ramble-labs/lectern/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default cache behaviour.
const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

// EmbeddingService wraps another embedding service with a TTL cache.
type EmbeddingService struct {
	inner driven.EmbeddingService
	cache *gocache.Cache
}

// New wraps inner with a memoising cache using the default TTL.
func New(inner driven.EmbeddingService) *EmbeddingService {
	return NewWithTTL(inner, DefaultTTL)
}

// NewWithTTL wraps inner with a memoising cache using the given TTL.
func NewWithTTL(inner driven.EmbeddingService, ttl time.Duration) *EmbeddingService {
	return &EmbeddingService{
		inner: inner,
		cache: gocache.New(ttl, DefaultCleanupInterval),
	}
}

// Embed returns the cached embedding for text, computing it on a miss.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := s.cache.Get(key); ok {
		return v.([]float32), nil
	}

	embedding, err := s.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, embedding)
	return embedding, nil
}

// EmbedBatch embeds the texts, computing only the cache misses.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := s.cache.Get(cacheKey(text)); ok {
			embeddings[i] = v.([]float32)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return embeddings, nil
	}

	computed, err := s.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, embedding := range computed {
		embeddings[missingIdx[j]] = embedding
		s.cache.SetDefault(cacheKey(missing[j]), embedding)
	}
	return embeddings, nil
}

// Dimensions returns the inner service's embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName returns the inner service's model name.
func (s *EmbeddingService) ModelName() string {
	return s.inner.ModelName()
}

// Close releases the inner service's resources.
func (s *EmbeddingService) Close() error {
	s.cache.Flush()
	return s.inner.Close()
}

// cacheKey hashes the text so arbitrarily long chunks make fixed-size keys.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
