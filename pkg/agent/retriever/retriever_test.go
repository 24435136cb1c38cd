package retriever_test

import (
	"context"
	"testing"
	"time"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/agent/agenttest"
	"ai-memory-agent-be/pkg/agent/retriever"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieve_MergesAndRanks(t *testing.T) {
	ctx := context.Background()
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	userID := uuid.New()
	now := time.Now()

	vectorHit := history.Add(ctx, userID, "How tall is Mount Everest?", "8,849 m.", now.Add(-3*time.Hour))
	recentOnly := history.Add(ctx, userID, "Recommend a sci-fi book", "Dune.", now)
	history.Add(ctx, uuid.New(), "How tall is Mount Everest?", "someone else", now)

	r := retriever.NewRetriever(history, &agenttest.HashEmbedder{}, retriever.DefaultConfig(), logger.NopLogger{})
	memories, analytics, err := r.Retrieve(ctx, userID, "Mount Everest tall")

	require.NoError(t, err)
	require.Len(t, memories, 2)
	assert.Equal(t, vectorHit, memories[0].RunID)
	assert.InDelta(t, 1.0, *memories[0].RelevanceScore, 1e-6)
	assert.Equal(t, recentOnly, memories[1].RunID)
	assert.InDelta(t, 0.3, *memories[1].RelevanceScore, 1e-9)

	assert.Equal(t, agent.SearchMethodVector, analytics.Method)
	assert.Equal(t, 2, analytics.CandidateCount)
	assert.Equal(t, "Mount Everest tall", analytics.Query)
}

func TestRetrieve_KeepsHighestRelevancePerRun(t *testing.T) {
	ctx := context.Background()
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	userID := uuid.New()

	// unembedded, so only the text and recent searches can see it
	id, err := history.InsertRun(ctx, agenttest.CompletedRun(userID, "Best pizza in Naples?", "", "Da Michele.", time.Now()))
	require.NoError(t, err)

	r := retriever.NewRetriever(history, &agenttest.HashEmbedder{}, retriever.DefaultConfig(), logger.NopLogger{})
	memories, analytics, err := r.Retrieve(ctx, userID, "pizza")

	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, id, memories[0].RunID)
	assert.InDelta(t, 0.6, *memories[0].RelevanceScore, 1e-9)
	assert.Equal(t, agent.SearchMethodText, analytics.Method)
}

func TestRetrieve_CapsResults(t *testing.T) {
	ctx := context.Background()
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	userID := uuid.New()
	for i := 0; i < 6; i++ {
		history.Add(ctx, userID, "golang channels question", "answer", time.Now().Add(time.Duration(i)*time.Minute))
	}

	cfg := retriever.DefaultConfig()
	cfg.MaxResults = 4
	r := retriever.NewRetriever(history, &agenttest.HashEmbedder{}, cfg, logger.NopLogger{})
	memories, _, err := r.Retrieve(ctx, userID, "golang channels question")

	require.NoError(t, err)
	assert.Len(t, memories, 4)
	for i := 1; i < len(memories); i++ {
		prev, cur := memories[i-1], memories[i]
		assert.GreaterOrEqual(t, *prev.RelevanceScore, *cur.RelevanceScore)
	}
}

func TestRetrieve_EmptyHistory(t *testing.T) {
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	r := retriever.NewRetriever(history, &agenttest.HashEmbedder{}, retriever.DefaultConfig(), logger.NopLogger{})

	memories, analytics, err := r.Retrieve(context.Background(), uuid.New(), "anything")

	require.NoError(t, err)
	assert.Empty(t, memories)
	assert.Zero(t, analytics.CandidateCount)
	assert.Nil(t, analytics.SimilarityScore)
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name     string
		decision agent.MemoryDecision
		want     string
	}{
		{
			name: "resolved question first",
			decision: agent.MemoryDecision{
				ResolvedQuestion: "How old is Elon Musk?",
				Existence:        agent.ExistenceCheck{SearchQuery: "age"},
			},
			want: "How old is Elon Musk?",
		},
		{
			name:     "then the search phrase",
			decision: agent.MemoryDecision{Existence: agent.ExistenceCheck{SearchQuery: "age"}},
			want:     "age",
		},
		{
			name: "then the raw question",
			want: "How old is he?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retriever.Query(tt.decision, "How old is he?"))
		})
	}
}
