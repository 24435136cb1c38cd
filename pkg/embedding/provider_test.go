package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ai-memory-agent-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (c *countingProvider) Generate(_ context.Context, text string) (*EmbeddingResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[text]++
	if c.err != nil {
		return nil, c.err
	}
	return &EmbeddingResponse{
		Embedding: EmbeddingResponseEmbedding{Values: []float32{float32(len(text)), 1}},
		Model:     "counting",
	}, nil
}

func TestCachedProvider_MemoizesPerText(t *testing.T) {
	inner := &countingProvider{}
	p := NewCachedProvider(inner, nil, time.Minute, logger.NopLogger{})
	ctx := context.Background()

	first, err := p.Generate(ctx, "hello")
	require.NoError(t, err)
	second, err := p.Generate(ctx, "hello")
	require.NoError(t, err)
	_, err = p.Generate(ctx, "world!")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls["hello"])
	assert.Equal(t, 1, inner.calls["world!"])
}

func TestCachedProvider_DoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{err: errors.New("ollama down")}
	p := NewCachedProvider(inner, nil, time.Minute, logger.NopLogger{})

	_, err := p.Generate(context.Background(), "hello")
	require.Error(t, err)

	inner.err = nil
	resp, err := p.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "counting", resp.Model)
	assert.Equal(t, 2, inner.calls["hello"])
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, cacheKey("a"), cacheKey("a"))
	assert.NotEqual(t, cacheKey("a"), cacheKey("b"))
	assert.Regexp(t, `^embedding:[0-9a-f]{64}$`, cacheKey("anything"))
}

func TestOllamaProvider_NormalizesVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{3, 4}})
	}))
	defer srv.Close()

	resp, err := NewOllamaProvider(srv.URL, "").Generate(context.Background(), "two words")

	require.NoError(t, err)
	require.Len(t, resp.Embedding.Values, 2)
	assert.InDelta(t, 0.6, resp.Embedding.Values[0], 1e-6)
	assert.InDelta(t, 0.8, resp.Embedding.Values[1], 1e-6)
	assert.Equal(t, 2, resp.TokenCount)
	assert.Equal(t, "nomic-embed-text", resp.Model)
}

func TestOllamaProvider_EmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding": []}`))
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m").Generate(context.Background(), "x")

	assert.Error(t, err)
}

func TestNormalizeVector(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, normalizeVector([]float32{0, 0}))

	v := normalizeVector([]float32{1, 2, 2})
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}
