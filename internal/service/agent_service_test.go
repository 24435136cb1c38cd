package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-memory-agent-be/internal/dto"
	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/internal/repository/memory"
	"ai-memory-agent-be/internal/repository/unitofwork"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/agent/orchestrator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner completes (or fails) every run without calling any oracle.
type fakeRunner struct {
	answer  string
	err     error
	clarify bool
}

func (f *fakeRunner) Execute(ctx context.Context, q agent.Question, out chan<- orchestrator.Event) (agent.RunState, error) {
	defer close(out)

	state := agent.NewRunState(q)
	state, _ = state.Transition(agent.StatusPlanning)
	state, _ = state.Transition(agent.StatusExecuting)
	state, step := state.AppendStep(agent.StepPlanning, "planned", nil, time.Now())
	out <- orchestrator.Event{Kind: orchestrator.EventReasoningStep, Step: step}

	if f.err != nil {
		state = state.Fail(f.err, time.Now())
		out <- orchestrator.Event{Kind: orchestrator.EventError, Message: f.err.Error()}
		return state, f.err
	}

	out <- orchestrator.Event{Kind: orchestrator.EventAnswerChunk, Text: f.answer}
	if f.clarify {
		state = state.AsClarification()
	}
	state, _ = state.Complete(f.answer, nil, time.Now())
	out <- orchestrator.Event{Kind: orchestrator.EventComplete, RunID: state.ID}
	return state, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return p.err
}

type recordingEvents struct {
	mu       sync.Mutex
	finished []agent.RunState
	cleared  []int64
}

func (r *recordingEvents) PublishRunFinished(_ context.Context, run agent.RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, run)
}

func (r *recordingEvents) PublishHistoryCleared(_ context.Context, _ uuid.UUID, deleted int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, deleted)
}

type serviceFixture struct {
	factory   unitofwork.RepositoryFactory
	runner    *fakeRunner
	publisher *recordingPublisher
	events    *recordingEvents
	service   IAgentService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		factory:   memory.NewRepositoryFactory(),
		runner:    &fakeRunner{answer: "42"},
		publisher: &recordingPublisher{},
		events:    &recordingEvents{},
	}
	f.service = NewAgentService(f.factory, f.runner, f.publisher, f.events, time.Minute, logger.NopLogger{})
	return f
}

func TestAskStream_CompleteArrivesAfterPersistence(t *testing.T) {
	f := newServiceFixture()
	userID := uuid.New()

	out := make(chan orchestrator.Event)
	go func() {
		_ = f.service.AskStream(context.Background(), userID, "What is the answer?", out)
	}()

	var events []orchestrator.Event
	for e := range out {
		if e.Kind == orchestrator.EventComplete {
			// the run must already be readable when the client learns its id
			run, err := f.service.GetRun(context.Background(), userID, e.RunID)
			require.NoError(t, err)
			assert.Equal(t, "42", run.Answer)
		}
		events = append(events, e)
	}

	require.Len(t, events, 3)
	assert.Equal(t, orchestrator.EventReasoningStep, events[0].Kind)
	assert.Equal(t, orchestrator.EventAnswerChunk, events[1].Kind)
	assert.Equal(t, orchestrator.EventComplete, events[2].Kind)
}

func TestAsk_PersistsAndQueuesEmbedding(t *testing.T) {
	f := newServiceFixture()
	userID := uuid.New()

	res, err := f.service.Ask(context.Background(), userID, &dto.AskRequest{Question: "What is the answer?"})

	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	assert.Equal(t, "42", res.Answer)
	assert.True(t, res.Persisted)

	require.Len(t, f.publisher.payloads, 1)
	var msg dto.PublishEmbedRunMessage
	require.NoError(t, json.Unmarshal(f.publisher.payloads[0], &msg))
	assert.Equal(t, res.RunId, msg.RunId)
	assert.Equal(t, userID, msg.UserId)

	require.Len(t, f.events.finished, 1)
	assert.Equal(t, res.RunId, f.events.finished[0].ID)
}

func TestAsk_FailedRunIsStoredButNotEmbedded(t *testing.T) {
	f := newServiceFixture()
	f.runner.err = agent.NewOracleError(agent.TaskPlanning, errors.New("ollama down"))
	userID := uuid.New()

	res, err := f.service.Ask(context.Background(), userID, &dto.AskRequest{Question: "What is the answer?"})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, agent.IsOracle(err))
	assert.Empty(t, f.publisher.payloads)

	list, err := f.service.ListRuns(context.Background(), userID, &dto.ListRunsRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, agent.StatusError, list.Items[0].Status)
	require.Len(t, f.events.finished, 1)
	assert.Equal(t, agent.StatusError, f.events.finished[0].Status)
}

func TestAsk_EmbeddingQueueFailureKeepsRun(t *testing.T) {
	f := newServiceFixture()
	f.publisher.err = errors.New("queue closed")
	userID := uuid.New()

	res, err := f.service.Ask(context.Background(), userID, &dto.AskRequest{Question: "q"})

	require.NoError(t, err)
	assert.True(t, res.Persisted)
	_, err = f.service.GetRun(context.Background(), userID, res.RunId)
	assert.NoError(t, err)
}

func TestListRuns_Pagination(t *testing.T) {
	f := newServiceFixture()
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := f.service.Ask(context.Background(), userID, &dto.AskRequest{Question: "q"})
		require.NoError(t, err)
	}

	list, err := f.service.ListRuns(context.Background(), userID, &dto.ListRunsRequest{Page: 2, PageSize: 2})

	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
	assert.Equal(t, int64(3), list.Total)
	assert.Equal(t, 2, list.Page)

	list, err = f.service.ListRuns(context.Background(), userID, &dto.ListRunsRequest{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, maxPageSize, list.PageSize)
}

func TestGetAndDeleteRun(t *testing.T) {
	f := newServiceFixture()
	userID := uuid.New()
	res, err := f.service.Ask(context.Background(), userID, &dto.AskRequest{Question: "q"})
	require.NoError(t, err)

	_, err = f.service.GetRun(context.Background(), uuid.New(), res.RunId)
	assert.True(t, agent.IsNotFound(err), "other users cannot read the run")

	detail, err := f.service.GetRun(context.Background(), userID, res.RunId)
	require.NoError(t, err)
	assert.Equal(t, "q", detail.Question)
	assert.Len(t, detail.ReasoningSteps, 1)

	require.NoError(t, f.service.DeleteRun(context.Background(), userID, res.RunId))
	err = f.service.DeleteRun(context.Background(), userID, res.RunId)
	assert.True(t, agent.IsNotFound(err))
}

func TestDeleteAllRuns(t *testing.T) {
	f := newServiceFixture()
	userID := uuid.New()
	for i := 0; i < 2; i++ {
		_, err := f.service.Ask(context.Background(), userID, &dto.AskRequest{Question: "q"})
		require.NoError(t, err)
	}

	res, err := f.service.DeleteAllRuns(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Deleted)
	assert.Equal(t, []int64{2}, f.events.cleared)

	list, err := f.service.ListRuns(context.Background(), userID, &dto.ListRunsRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

// stalledRunner waits out the run deadline, then reports it like the orchestrator does.
type stalledRunner struct{}

func (stalledRunner) Execute(ctx context.Context, q agent.Question, out chan<- orchestrator.Event) (agent.RunState, error) {
	defer close(out)
	<-ctx.Done()
	state := agent.NewRunState(q).Fail(ctx.Err(), time.Now())
	out <- orchestrator.Event{Kind: orchestrator.EventError, Message: ctx.Err().Error()}
	return state, ctx.Err()
}

func TestAskStream_RunTimeoutStillDeliversError(t *testing.T) {
	svc := NewAgentService(memory.NewRepositoryFactory(), stalledRunner{}, &recordingPublisher{}, &recordingEvents{}, 5*time.Millisecond, logger.NopLogger{})

	for i := 0; i < 50; i++ {
		out := make(chan orchestrator.Event)
		go func() {
			_ = svc.AskStream(context.Background(), uuid.New(), "What is Go?", out)
		}()

		var events []orchestrator.Event
		for e := range out {
			events = append(events, e)
		}

		require.Len(t, events, 1, "run %d", i)
		assert.Equal(t, orchestrator.EventError, events[0].Kind)
	}
}

func TestAsk_ClarificationIsHistoryNotMemory(t *testing.T) {
	f := newServiceFixture()
	f.runner.answer = "Did you mean Paris or London?"
	f.runner.clarify = true
	userID := uuid.New()
	ctx := context.Background()

	res, err := f.service.Ask(ctx, userID, &dto.AskRequest{Question: "How many people live in it?"})

	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Empty(t, f.publisher.payloads, "clarifications are never embedded")

	list, err := f.service.ListRuns(ctx, userID, &dto.ListRunsRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].Clarification)

	repo := f.factory.NewUnitOfWork(ctx).AgentRunRepository()
	recent, err := repo.ListRecentForUser(ctx, userID, 10)
	require.NoError(t, err)
	assert.Empty(t, recent, "a clarification must not become rank 0 for the next question")

	hits, err := repo.SearchText(ctx, userID, "people live", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, repo.UpdateEmbedding(ctx, res.RunId, []float32{1, 0}, "m"))
	scored, err := repo.SearchVector(ctx, userID, []float32{1, 0}, 0.5, 5)
	require.NoError(t, err)
	assert.Empty(t, scored, "vector search skips clarifications even if one got embedded")
}
