package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/roastlabs/roastbot/internal/guard"
	"github.com/roastlabs/roastbot/internal/index"
)

// RAGService wraps the vector index with query normalization, an expiring
// retrieval cache, and optional theme-biased re-ranking.
type RAGService struct {
	index    *index.Index
	embedder index.Embedder
	cache    *expirable.LRU[string, string]
	logger   *zap.Logger
}

func NewRAGService(idx *index.Index, embedder index.Embedder, cacheSize int, cacheTTL time.Duration, logger *zap.Logger) *RAGService {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGService{
		index:    idx,
		embedder: embedder,
		cache:    expirable.NewLRU[string, string](cacheSize, nil, cacheTTL),
		logger:   logger,
	}
}

// IndexSize reports the number of indexed chunks, 0 until the lazy build has
// run.
func (s *RAGService) IndexSize() int {
	return s.index.Size()
}

// Retrieve returns the k most relevant chunk texts for the query, joined by
// blank lines. When dominantTheme is set, a wider candidate pool is fetched
// and chunks tagged with that theme are promoted ahead of the rest, each
// group keeping its semantic order.
func (s *RAGService) Retrieve(ctx context.Context, query string, k int, dominantTheme string) (string, error) {
	if k <= 0 {
		k = 3
	}
	theme := strings.ToLower(strings.TrimSpace(dominantTheme))

	key := fmt.Sprintf("%s|%d|%s", guard.NormalizeQuery(query), k, theme)
	if cached, ok := s.cache.Get(key); ok {
		s.logger.Debug("retrieval cache hit")
		return cached, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return "", fmt.Errorf("embedder returned no vector for query")
	}

	// Fetch a wider candidate pool when re-ranking by theme.
	fetchK := k
	if theme != "" {
		fetchK = 4 * k
	}
	results, err := s.index.Search(ctx, vectors[0], fetchK)
	if err != nil {
		return "", fmt.Errorf("index search: %w", err)
	}

	if theme != "" {
		results = promoteTheme(results, theme, func(i int) string {
			return s.index.Chunk(i).Theme
		})
	}
	if len(results) > k {
		results = results[:k]
	}

	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, s.index.Chunk(r.Index).Text)
	}
	joined := strings.Join(texts, "\n\n")

	s.cache.Add(key, joined)
	s.logger.Debug("retrieved context", zap.Int("chunks", len(results)))
	return joined, nil
}

// promoteTheme moves results whose chunk theme equals theme ahead of the
// rest, preserving the original distance order within each group.
func promoteTheme(results []index.Result, theme string, themeOf func(int) string) []index.Result {
	themed := make([]index.Result, 0, len(results))
	unthemed := make([]index.Result, 0, len(results))
	for _, r := range results {
		if themeOf(r.Index) == theme {
			themed = append(themed, r)
		} else {
			unthemed = append(unthemed, r)
		}
	}
	return append(themed, unthemed...)
}
