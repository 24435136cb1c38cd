package agenttest

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"ai-memory-agent-be/pkg/agent/existence"
	"ai-memory-agent-be/pkg/embedding"
)

const hashDimensions = 1024

// HashEmbedder is a bag-of-keywords embedder: texts sharing keywords are similar,
// identical keyword sets have similarity 1.
type HashEmbedder struct {
	mu    sync.Mutex
	calls int
}

var _ embedding.EmbeddingProvider = (*HashEmbedder)(nil)

func (h *HashEmbedder) Generate(_ context.Context, text string) (*embedding.EmbeddingResponse, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()

	vec := make([]float32, hashDimensions)
	keywords := existence.Keywords(text)
	for _, k := range keywords {
		f := fnv.New32a()
		f.Write([]byte(k))
		vec[f.Sum32()%hashDimensions] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}

	return &embedding.EmbeddingResponse{
		Embedding:  embedding.EmbeddingResponseEmbedding{Values: vec},
		Model:      "hash-bow",
		TokenCount: len(keywords),
	}, nil
}

func (h *HashEmbedder) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}
