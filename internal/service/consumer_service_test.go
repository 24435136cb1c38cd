package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ai-memory-agent-be/internal/dto"
	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/internal/repository/memory"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/embedding"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEmbedder struct {
	texts []string
	err   error
}

func (f *fixedEmbedder) Generate(_ context.Context, text string) (*embedding.EmbeddingResponse, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{0.6, 0.8}},
		Model:     "fixed",
	}, nil
}

func embedMessage(t *testing.T, runId, userId uuid.UUID) *message.Message {
	t.Helper()
	payload, err := json.Marshal(dto.PublishEmbedRunMessage{RunId: runId, UserId: userId})
	require.NoError(t, err)
	return message.NewMessage(uuid.NewString(), payload)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestProcessMessage_EmbedsResolvedQuestion(t *testing.T) {
	factory := memory.NewRepositoryFactory()
	embedder := &fixedEmbedder{}
	cs := NewConsumerService(nil, "embed", factory, embedder, logger.NopLogger{}).(*consumerService)
	ctx := context.Background()

	userId := uuid.New()
	s := agent.NewRunState(agent.Question{Text: "How big is it?", UserID: userId, SubmittedAt: time.Now()})
	s, _ = s.Transition(agent.StatusPlanning)
	s, _ = s.Transition(agent.StatusExecuting)
	s = s.WithMemoryDecision(agent.MemoryDecision{ResolvedQuestion: "How big is Yosemite?"})
	s, err := s.Complete("Big.", nil, time.Now())
	require.NoError(t, err)
	runId, err := factory.NewUnitOfWork(ctx).AgentRunRepository().InsertRun(ctx, s)
	require.NoError(t, err)

	msg := embedMessage(t, runId, userId)
	cs.processMessage(ctx, msg)

	assert.True(t, isClosed(msg.Acked()))
	assert.Equal(t, []string{"How big is Yosemite?"}, embedder.texts)

	run, err := factory.NewUnitOfWork(ctx).AgentRunRepository().FindByID(ctx, runId, userId)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, run.QuestionEmbedding)
	assert.Equal(t, "fixed", run.EmbeddingModel)
}

func TestProcessMessage_DeletedRunIsAcked(t *testing.T) {
	embedder := &fixedEmbedder{}
	cs := NewConsumerService(nil, "embed", memory.NewRepositoryFactory(), embedder, logger.NopLogger{}).(*consumerService)

	msg := embedMessage(t, uuid.New(), uuid.New())
	cs.processMessage(context.Background(), msg)

	assert.True(t, isClosed(msg.Acked()))
	assert.Empty(t, embedder.texts)
}

func TestProcessMessage_EmbedFailureIsNacked(t *testing.T) {
	factory := memory.NewRepositoryFactory()
	embedder := &fixedEmbedder{err: errors.New("ollama down")}
	cs := NewConsumerService(nil, "embed", factory, embedder, logger.NopLogger{}).(*consumerService)
	ctx := context.Background()

	userId := uuid.New()
	s := agent.NewRunState(agent.Question{Text: "q", UserID: userId, SubmittedAt: time.Now()})
	s, _ = s.Transition(agent.StatusPlanning)
	s, _ = s.Transition(agent.StatusExecuting)
	s, _ = s.Complete("a", nil, time.Now())
	runId, err := factory.NewUnitOfWork(ctx).AgentRunRepository().InsertRun(ctx, s)
	require.NoError(t, err)

	msg := embedMessage(t, runId, userId)
	cs.processMessage(ctx, msg)

	assert.True(t, isClosed(msg.Nacked()))
}

func TestProcessMessage_GarbageIsAcked(t *testing.T) {
	cs := NewConsumerService(nil, "embed", memory.NewRepositoryFactory(), &fixedEmbedder{}, logger.NopLogger{}).(*consumerService)

	msg := message.NewMessage(uuid.NewString(), []byte("{not json"))
	cs.processMessage(context.Background(), msg)

	assert.True(t, isClosed(msg.Acked()))
}

func TestProcessMessage_ClarificationIsNotEmbedded(t *testing.T) {
	factory := memory.NewRepositoryFactory()
	embedder := &fixedEmbedder{}
	cs := NewConsumerService(nil, "embed", factory, embedder, logger.NopLogger{}).(*consumerService)
	ctx := context.Background()

	userId := uuid.New()
	s := agent.NewRunState(agent.Question{Text: "How old is he?", UserID: userId, SubmittedAt: time.Now()})
	s, _ = s.Transition(agent.StatusPlanning)
	s, _ = s.Transition(agent.StatusExecuting)
	s, _ = s.AsClarification().Complete("Which one did you mean?", nil, time.Now())
	runId, err := factory.NewUnitOfWork(ctx).AgentRunRepository().InsertRun(ctx, s)
	require.NoError(t, err)

	msg := embedMessage(t, runId, userId)
	cs.processMessage(ctx, msg)

	assert.True(t, isClosed(msg.Acked()))
	assert.Empty(t, embedder.texts)
}
