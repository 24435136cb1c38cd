package agenttest

import (
	"context"
	"time"

	"ai-memory-agent-be/internal/repository/memory"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/embedding"

	"github.com/google/uuid"
)

// History is an in-process run store that embeds every run it saves, the way
// the embedding consumer does after a run is persisted.
type History struct {
	*memory.AgentRunRepository
	embedder embedding.EmbeddingProvider
}

func NewHistory(embedder embedding.EmbeddingProvider) *History {
	return &History{
		AgentRunRepository: memory.NewAgentRunRepository(),
		embedder:           embedder,
	}
}

// Save persists a finished run and embeds its (resolved) question unless the
// run is not searchable.
func (h *History) Save(ctx context.Context, state agent.RunState) uuid.UUID {
	id, err := h.InsertRun(ctx, state)
	if err != nil {
		panic(err)
	}
	if !state.Searchable() {
		return id
	}

	text := state.ResolvedQuestion()
	if text == "" {
		text = state.Question
	}
	emb, err := h.embedder.Generate(ctx, text)
	if err != nil {
		panic(err)
	}
	if err := h.UpdateEmbedding(ctx, id, emb.Embedding.Values, emb.Model); err != nil {
		panic(err)
	}
	return id
}

// Add saves a completed run for question and answer, finished at `at`.
func (h *History) Add(ctx context.Context, userID uuid.UUID, question, answer string, at time.Time) uuid.UUID {
	return h.Save(ctx, CompletedRun(userID, question, "", answer, at))
}

// AddResolved is Add for a follow-up whose pronouns were resolved to resolved.
func (h *History) AddResolved(ctx context.Context, userID uuid.UUID, question, resolved, answer string, at time.Time) uuid.UUID {
	return h.Save(ctx, CompletedRun(userID, question, resolved, answer, at))
}

// CompletedRun builds a completed run state without running the pipeline.
func CompletedRun(userID uuid.UUID, question, resolved, answer string, at time.Time) agent.RunState {
	state := agent.NewRunState(agent.Question{Text: question, UserID: userID, SubmittedAt: at.Add(-time.Second)})
	state, _ = state.Transition(agent.StatusPlanning)
	state, _ = state.Transition(agent.StatusExecuting)
	if resolved != "" {
		state = state.WithMemoryDecision(agent.MemoryDecision{ResolvedQuestion: resolved})
	}
	state, _ = state.Complete(answer, nil, at)
	return state
}
