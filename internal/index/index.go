// Package index holds the in-memory vector index used for nearest-neighbor
// retrieval over corpus chunks.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Embedder converts a batch of texts into fixed-length vectors,
// order-preserving.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunk is one immutable retrievable unit: its text, optional theme label,
// and embedding.
type Chunk struct {
	Text      string
	Theme     string
	Embedding []float32
}

// Result is one search hit: the chunk position and its Euclidean distance
// from the query.
type Result struct {
	Index    int
	Distance float64
}

// Index is a flat (exhaustive) L2 index over a fixed chunk sequence. The
// embedding build is deferred until first use; concurrent first callers
// trigger exactly one build and wait for it. After a successful build the
// index is read-only.
type Index struct {
	embedder Embedder
	texts    []string
	themes   []string
	logger   *zap.Logger

	mu     sync.Mutex
	built  bool
	chunks []Chunk
}

// New creates an unbuilt index over the given chunk texts and parallel theme
// labels. themes may be nil when theming is unused.
func New(embedder Embedder, texts, themes []string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		embedder: embedder,
		texts:    texts,
		themes:   themes,
		logger:   logger,
	}
}

// Ensure builds the index if it has not been built yet. Safe for concurrent
// use: the build runs at most once at a time and later callers see the
// completed result. A failed build leaves the index unbuilt so a subsequent
// call can retry.
func (ix *Index) Ensure(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.built {
		return nil
	}

	vectors, err := ix.embedder.Embed(ctx, ix.texts)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}
	if len(vectors) != len(ix.texts) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(ix.texts))
	}

	chunks := make([]Chunk, len(ix.texts))
	for i, text := range ix.texts {
		theme := ""
		if i < len(ix.themes) {
			theme = ix.themes[i]
		}
		chunks[i] = Chunk{Text: text, Theme: theme, Embedding: vectors[i]}
	}
	ix.chunks = chunks
	ix.built = true
	ix.logger.Info("vector index built", zap.Int("chunks", len(chunks)))
	return nil
}

// Size returns the number of indexed chunks (0 before the first build).
func (ix *Index) Size() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.chunks)
}

// Chunk returns the chunk at position i.
func (ix *Index) Chunk(i int) Chunk {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.chunks[i]
}

// Search returns the k chunks nearest to the query embedding, ordered by
// non-decreasing L2 distance with ties broken by lowest index. k larger than
// the corpus is capped at the corpus size.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if err := ix.Ensure(ctx); err != nil {
		return nil, err
	}

	ix.mu.Lock()
	chunks := ix.chunks
	ix.mu.Unlock()

	if k <= 0 {
		return nil, nil
	}
	if k > len(chunks) {
		k = len(chunks)
	}

	results := make([]Result, len(chunks))
	for i, c := range chunks {
		d, err := l2Distance(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		results[i] = Result{Index: i, Distance: d}
	}

	sort.Slice(results, func(a, b int) bool {
		if results[a].Distance != results[b].Distance {
			return results[a].Distance < results[b].Distance
		}
		return results[a].Index < results[b].Index
	})

	return results[:k], nil
}
