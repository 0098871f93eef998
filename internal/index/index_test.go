package index

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vectors map[string][]float32
	calls   atomic.Int32
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectors[t]
	}
	return out, nil
}

func newTestIndex() (*Index, *stubEmbedder) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"alpha": {0, 0},
		"beta":  {3, 0},
		"gamma": {1, 0},
	}}
	ix := New(emb, []string{"alpha", "beta", "gamma"}, []string{"", "career", ""}, nil)
	return ix, emb
}

func TestSearchReturnsKSortedByDistance(t *testing.T) {
	ix, _ := newTestIndex()

	results, err := ix.Search(context.Background(), []float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 0, results[0].Index) // alpha, distance 0
	require.Equal(t, 2, results[1].Index) // gamma, distance 1
	require.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestSearchCapsKAtCorpusSize(t *testing.T) {
	ix, _ := newTestIndex()

	results, err := ix.Search(context.Background(), []float32{0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
}

func TestSearchBreaksTiesByLowestIndex(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"a": {5, 0},
		"b": {1, 0},
		"c": {1, 0},
	}}
	ix := New(emb, []string{"a", "b", "c"}, nil, nil)

	results, err := ix.Search(context.Background(), []float32{0, 0}, 3)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 0}, []int{results[0].Index, results[1].Index, results[2].Index})
}

func TestConcurrentFirstUseBuildsOnce(t *testing.T) {
	ix, emb := newTestIndex()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ix.Search(context.Background(), []float32{0, 0}, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), emb.calls.Load())
	require.Equal(t, 3, ix.Size())
}

func TestChunkKeepsPositionAlignment(t *testing.T) {
	ix, _ := newTestIndex()
	require.NoError(t, ix.Ensure(context.Background()))

	require.Equal(t, "beta", ix.Chunk(1).Text)
	require.Equal(t, "career", ix.Chunk(1).Theme)
	require.Equal(t, []float32{3, 0}, ix.Chunk(1).Embedding)
}

func TestL2Distance(t *testing.T) {
	d, err := l2Distance([]float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	require.InDelta(t, 5.0, d, 1e-9)

	_, err = l2Distance([]float32{1}, []float32{1, 2})
	require.Error(t, err)

	_, err = l2Distance(nil, []float32{1})
	require.Error(t, err)
}
