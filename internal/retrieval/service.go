package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"msgmcp/internal/model"
)

const defaultCacheSize = 256

// Service turns a text query into a vector and runs it against the message
// index. Query embeddings are cached per (query, embedding version) so a
// chat session repeating the same question does not pay for a second
// embedder round trip; bumping the version naturally invalidates every
// cached entry.
type Service struct {
	embedder model.Embedder
	searcher model.VectorSearcher

	cache *lru.Cache[string, []float32]
}

func NewService(embedder model.Embedder, searcher model.VectorSearcher, cacheSize int) (*Service, error) {
	if embedder == nil || searcher == nil {
		return nil, errors.New("embedder and searcher are required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{embedder: embedder, searcher: searcher, cache: cache}, nil
}

func (s *Service) Search(ctx context.Context, query model.SearchQuery) ([]model.MessageHit, error) {
	text := strings.TrimSpace(query.Query)
	if text == "" {
		return nil, errors.New("query must not be empty")
	}

	vector, err := s.queryVector(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.searcher.Search(ctx, vector, query.Threshold, query.MaxResults)
}

func (s *Service) queryVector(ctx context.Context, text string) ([]float32, error) {
	key := fmt.Sprintf("v%d:%s", s.embedder.Version(), text)
	if vector, ok := s.cache.Get(key); ok {
		return vector, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}
	s.cache.Add(key, vectors[0])
	return vectors[0], nil
}
