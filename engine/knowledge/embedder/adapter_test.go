package embedder_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumflare/lumflare/engine/knowledge/embedder"
)

type stubEmbedder struct {
	mu         sync.Mutex
	queryCalls int
	failTexts  map[string]bool
	batchErr   error
}

func vecFor(text string) []float32 {
	return []float32{float32(len(text)), 1, 0}
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = vecFor(texts[i])
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.queryCalls++
	s.mu.Unlock()
	if s.failTexts[text] {
		return nil, errors.New("provider unavailable")
	}
	return vecFor(text), nil
}

func (s *stubEmbedder) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryCalls
}

func testConfig() *embedder.Config {
	return &embedder.Config{
		ID:        "test",
		Provider:  embedder.ProviderGoogleAI,
		Model:     "embedding-001",
		Dimension: 3,
		BatchSize: 10,
	}
}

func TestWrap(t *testing.T) {
	t.Run("Should reject nil implementation", func(t *testing.T) {
		_, err := embedder.Wrap(testConfig(), nil)
		assert.Error(t, err)
	})
	t.Run("Should reject invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Dimension = 0
		_, err := embedder.Wrap(cfg, &stubEmbedder{})
		assert.Error(t, err)
	})
	t.Run("Should expose dimension and batch size", func(t *testing.T) {
		adapter, err := embedder.Wrap(testConfig(), &stubEmbedder{})
		require.NoError(t, err)
		assert.Equal(t, 3, adapter.Dimension())
		assert.Equal(t, 10, adapter.BatchSize())
	})
}

func TestAdapter_EmbedDocuments(t *testing.T) {
	t.Run("Should preserve order and length on the happy path", func(t *testing.T) {
		adapter, err := embedder.Wrap(testConfig(), &stubEmbedder{})
		require.NoError(t, err)
		texts := []string{"a", "bb", "ccc"}
		vectors, err := adapter.EmbedDocuments(context.Background(), texts)
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		for i := range texts {
			assert.Equal(t, vecFor(texts[i]), vectors[i])
		}
	})

	t.Run("Should substitute the zero vector for a failing item", func(t *testing.T) {
		stub := &stubEmbedder{
			batchErr:  errors.New("batch rejected"),
			failTexts: map[string]bool{"three": true},
		}
		adapter, err := embedder.Wrap(testConfig(), stub)
		require.NoError(t, err)
		texts := []string{"one", "two", "three", "fourx", "fivexx"}
		vectors, err := adapter.EmbedDocuments(context.Background(), texts)
		require.NoError(t, err)
		require.Len(t, vectors, 5)
		assert.Equal(t, embedder.ZeroVector(3), vectors[2])
		assert.True(t, embedder.IsZeroVector(vectors[2]))
		for _, i := range []int{0, 1, 3, 4} {
			assert.Equal(t, vecFor(texts[i]), vectors[i], "item %d should keep its true embedding", i)
		}
	})

	t.Run("Should return nothing for an empty input", func(t *testing.T) {
		adapter, err := embedder.Wrap(testConfig(), &stubEmbedder{})
		require.NoError(t, err)
		vectors, err := adapter.EmbedDocuments(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})

	t.Run("Should abort on a canceled context", func(t *testing.T) {
		adapter, err := embedder.Wrap(testConfig(), &stubEmbedder{})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = adapter.EmbedDocuments(ctx, []string{"a"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAdapter_EmbedQuery(t *testing.T) {
	t.Run("Should wrap provider errors with the adapter id", func(t *testing.T) {
		stub := &stubEmbedder{failTexts: map[string]bool{"bad": true}}
		adapter, err := embedder.Wrap(testConfig(), stub)
		require.NoError(t, err)
		_, err = adapter.EmbedQuery(context.Background(), "bad")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `embedder "test"`)
	})

	t.Run("Should serve repeated queries from the cache", func(t *testing.T) {
		stub := &stubEmbedder{}
		adapter, err := embedder.Wrap(testConfig(), stub)
		require.NoError(t, err)
		require.NoError(t, adapter.EnableCache(16))
		first, err := adapter.EmbedQuery(context.Background(), "question")
		require.NoError(t, err)
		second, err := adapter.EmbedQuery(context.Background(), "question")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, stub.calls())
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("Should return 1.0 for identical non-zero vectors", func(t *testing.T) {
		v := []float32{0.3, 0.4, 0.5}
		score, err := embedder.CosineSimilarity(v, v)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, score, 1e-9)
	})
	t.Run("Should return 0.0 against the zero vector", func(t *testing.T) {
		score, err := embedder.CosineSimilarity([]float32{1, 2, 3}, embedder.ZeroVector(3))
		require.NoError(t, err)
		assert.Zero(t, score)
	})
	t.Run("Should return -1.0 for opposite vectors", func(t *testing.T) {
		score, err := embedder.CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
		require.NoError(t, err)
		assert.InDelta(t, -1.0, score, 1e-9)
	})
	t.Run("Should fail on dimension mismatch", func(t *testing.T) {
		_, err := embedder.CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
		assert.Error(t, err)
	})
}
