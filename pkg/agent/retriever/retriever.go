package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/embedding"

	"github.com/google/uuid"
)

// Relevance assigned to hits that carry no similarity of their own.
const (
	textMatchRelevance = 0.6
	recentRelevance    = 0.3
	recentRankDecay    = 0.05
)

type Config struct {
	VectorThreshold float64
	VectorLimit     int
	TextLimit       int
	RecentLimit     int
	MaxResults      int
}

func DefaultConfig() Config {
	return Config{
		VectorThreshold: 0.5,
		VectorLimit:     5,
		TextLimit:       5,
		RecentLimit:     3,
		MaxResults:      8,
	}
}

// Retriever gathers prior runs that may help answer the current question.
type Retriever struct {
	store    agent.HistoryStore
	embedder embedding.EmbeddingProvider
	cfg      Config
	logger   logger.ILogger
}

func NewRetriever(store agent.HistoryStore, embedder embedding.EmbeddingProvider, cfg Config, log logger.ILogger) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   log,
	}
}

// Query picks the text used for retrieval: the resolved question, then the
// existence search phrase, then the raw question.
func Query(decision agent.MemoryDecision, question string) string {
	if q := strings.TrimSpace(decision.ResolvedQuestion); q != "" {
		return q
	}
	if q := strings.TrimSpace(decision.Existence.SearchQuery); q != "" {
		return q
	}
	return question
}

// Retrieve merges vector hits, text hits and the most recent runs, deduplicated by
// run id with the highest relevance kept, ordered by relevance then recency.
func (r *Retriever) Retrieve(ctx context.Context, userID uuid.UUID, query string) ([]agent.RetrievedMemory, agent.SearchAnalytics, error) {
	analytics := agent.SearchAnalytics{Method: agent.SearchMethodVector, Query: query}
	merged := make(map[uuid.UUID]agent.RetrievedMemory)

	add := func(m agent.RetrievedMemory, relevance float64) {
		if existing, ok := merged[m.RunID]; ok && *existing.RelevanceScore >= relevance {
			return
		}
		score := relevance
		m.RelevanceScore = &score
		merged[m.RunID] = m
	}

	emb, err := r.embedder.Generate(ctx, query)
	if err != nil {
		return nil, analytics, agent.NewOracleError("embedding", err)
	}
	vectorHits, err := r.store.SearchVector(ctx, userID, emb.Embedding.Values, r.cfg.VectorThreshold, r.cfg.VectorLimit)
	if err != nil {
		return nil, analytics, fmt.Errorf("vector retrieval: %w", err)
	}
	for _, h := range vectorHits {
		add(h.RetrievedMemory, h.Similarity)
	}

	textHits, err := r.store.SearchText(ctx, userID, query, r.cfg.TextLimit)
	if err != nil {
		return nil, analytics, fmt.Errorf("text retrieval: %w", err)
	}
	for _, h := range textHits {
		add(h, textMatchRelevance)
	}
	if len(vectorHits) == 0 && len(textHits) > 0 {
		analytics.Method = agent.SearchMethodText
	}

	recent, err := r.store.ListRecentForUser(ctx, userID, r.cfg.RecentLimit)
	if err != nil {
		return nil, analytics, fmt.Errorf("recent retrieval: %w", err)
	}
	for _, h := range agent.RankHistory(recent) {
		add(h.RetrievedMemory, recentRelevance-recentRankDecay*float64(h.Rank))
	}

	memories := make([]agent.RetrievedMemory, 0, len(merged))
	for _, m := range merged {
		memories = append(memories, m)
	}
	sort.Slice(memories, func(i, j int) bool {
		si, sj := *memories[i].RelevanceScore, *memories[j].RelevanceScore
		if si != sj {
			return si > sj
		}
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})
	if r.cfg.MaxResults > 0 && len(memories) > r.cfg.MaxResults {
		memories = memories[:r.cfg.MaxResults]
	}

	analytics.CandidateCount = len(memories)
	if len(memories) > 0 {
		top := *memories[0].RelevanceScore
		analytics.SimilarityScore = &top
	}

	r.logger.Info("RETRIEVER", "Memories retrieved", map[string]interface{}{
		"user_id": userID.String(),
		"query":   query,
		"vector":  len(vectorHits),
		"text":    len(textHits),
		"recent":  len(recent),
		"kept":    len(memories),
	})
	return memories, analytics, nil
}
