package service

import (
	"context"
	"encoding/json"
	"time"

	"ai-memory-agent-be/internal/dto"
	"ai-memory-agent-be/internal/entity"
	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/internal/repository/unitofwork"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/agent/orchestrator"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type IAgentService interface {
	// AskStream runs one question, writing its events to out and closing it.
	// The complete event is held back until the run is persisted. The caller
	// must drain out until it is closed.
	AskStream(ctx context.Context, userId uuid.UUID, question string, out chan<- orchestrator.Event) error
	Ask(ctx context.Context, userId uuid.UUID, request *dto.AskRequest) (*dto.AskResponse, error)

	ListRuns(ctx context.Context, userId uuid.UUID, request *dto.ListRunsRequest) (*dto.ListRunsResponse, error)
	GetRun(ctx context.Context, userId uuid.UUID, runId uuid.UUID) (*dto.RunDetailResponse, error)
	DeleteRun(ctx context.Context, userId uuid.UUID, runId uuid.UUID) error
	DeleteAllRuns(ctx context.Context, userId uuid.UUID) (*dto.DeleteRunsResponse, error)
}

// Runner executes the pipeline. Implemented by *orchestrator.Orchestrator.
type Runner interface {
	Execute(ctx context.Context, q agent.Question, out chan<- orchestrator.Event) (agent.RunState, error)
}

type agentService struct {
	uowFactory       unitofwork.RepositoryFactory
	runner           Runner
	publisherService IPublisherService
	eventPublisher   AgentEventPublisher
	runTimeout       time.Duration
	logger           logger.ILogger
}

func NewAgentService(
	uowFactory unitofwork.RepositoryFactory,
	runner Runner,
	publisherService IPublisherService,
	eventPublisher AgentEventPublisher,
	runTimeout time.Duration,
	log logger.ILogger,
) IAgentService {
	return &agentService{
		uowFactory:       uowFactory,
		runner:           runner,
		publisherService: publisherService,
		eventPublisher:   eventPublisher,
		runTimeout:       runTimeout,
		logger:           log,
	}
}

func (s *agentService) AskStream(ctx context.Context, userId uuid.UUID, question string, out chan<- orchestrator.Event) error {
	_, _, err := s.run(ctx, userId, question, out)
	return err
}

func (s *agentService) Ask(ctx context.Context, userId uuid.UUID, request *dto.AskRequest) (*dto.AskResponse, error) {
	out := make(chan orchestrator.Event)
	drained := make(chan struct{})
	go func() {
		for range out {
		}
		close(drained)
	}()

	state, persisted, err := s.run(ctx, userId, request.Question, out)
	<-drained
	if err != nil {
		return nil, err
	}

	return &dto.AskResponse{
		RunId:           state.ID,
		Status:          state.Status,
		Answer:          state.Answer,
		Error:           state.Error,
		ReusedFromRunId: state.ReusedFromRunID,
		Iterations:      state.Iterations,
		Confidence:      state.Confidence,
		ReasoningSteps:  state.ReasoningSteps,
		Persisted:       persisted,
	}, nil
}

// run drives the orchestrator, forwarding events to out, then persists the snapshot.
func (s *agentService) run(ctx context.Context, userId uuid.UUID, question string, out chan<- orchestrator.Event) (agent.RunState, bool, error) {
	defer close(out)

	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	events := make(chan orchestrator.Event)
	forwarded := make(chan *orchestrator.Event)
	go func() {
		var held *orchestrator.Event
		for e := range events {
			if e.Kind == orchestrator.EventComplete {
				e := e
				held = &e
				continue
			}
			// callers drain out until it closes, so the run deadline must not drop events
			out <- e
		}
		forwarded <- held
	}()

	state, runErr := s.runner.Execute(ctx, agent.Question{
		Text:        question,
		UserID:      userId,
		SubmittedAt: time.Now(),
	}, events)
	complete := <-forwarded

	// persist with a fresh context: a client disconnect must not lose a finished run
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	persisted := s.persist(persistCtx, state)
	s.eventPublisher.PublishRunFinished(persistCtx, state)

	if complete != nil {
		out <- *complete
	}
	return state, persisted, runErr
}

func (s *agentService) persist(ctx context.Context, state agent.RunState) bool {
	details := map[string]interface{}{"run_id": state.ID.String(), "status": string(state.Status)}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	runId, err := uow.AgentRunRepository().InsertRun(ctx, state)
	if err != nil {
		details["error"] = err.Error()
		s.logger.Error("AGENT", "Failed to persist run", details)
		return false
	}

	// failed runs and clarification requests are history only, never memory
	if !state.Searchable() {
		return true
	}

	payload, err := json.Marshal(dto.PublishEmbedRunMessage{RunId: runId, UserId: state.UserID})
	if err == nil {
		err = s.publisherService.Publish(ctx, payload)
	}
	if err != nil {
		// the run stays out of vector search until re-embedded, text search still sees it
		details["error"] = err.Error()
		s.logger.Warn("AGENT", "Failed to queue run embedding", details)
	}
	return true
}

func (s *agentService) ListRuns(ctx context.Context, userId uuid.UUID, request *dto.ListRunsRequest) (*dto.ListRunsResponse, error) {
	page, pageSize := request.Page, request.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	runs, err := uow.AgentRunRepository().ListForUser(ctx, userId, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	total, err := uow.AgentRunRepository().CountForUser(ctx, userId)
	if err != nil {
		return nil, err
	}

	items := make([]dto.RunSummaryResponse, 0, len(runs))
	for _, r := range runs {
		items = append(items, dto.RunSummaryResponse{
			Id:               r.Id,
			Question:         r.Question,
			ResolvedQuestion: r.ResolvedQuestion,
			Answer:           r.Answer,
			Status:           r.Status,
			Reused:           r.ReusedFromRunId != nil,
			Clarification:    r.Clarification,
			HasEmbedding:     len(r.QuestionEmbedding) > 0,
			CreatedAt:        r.CreatedAt,
		})
	}

	return &dto.ListRunsResponse{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

func (s *agentService) GetRun(ctx context.Context, userId uuid.UUID, runId uuid.UUID) (*dto.RunDetailResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	run, err := uow.AgentRunRepository().FindByID(ctx, runId, userId)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, &agent.NotFoundError{Resource: "agent run", ID: runId.String()}
	}
	return toRunDetail(run), nil
}

func (s *agentService) DeleteRun(ctx context.Context, userId uuid.UUID, runId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	deleted, err := uow.AgentRunRepository().DeleteRun(ctx, runId, userId)
	if err != nil {
		return err
	}
	if !deleted {
		return &agent.NotFoundError{Resource: "agent run", ID: runId.String()}
	}
	return nil
}

func (s *agentService) DeleteAllRuns(ctx context.Context, userId uuid.UUID) (*dto.DeleteRunsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	count, err := uow.AgentRunRepository().DeleteAllForUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.eventPublisher.PublishHistoryCleared(ctx, userId, count)
	s.logger.Info("AGENT", "History cleared", map[string]interface{}{"user_id": userId.String(), "deleted": count})
	return &dto.DeleteRunsResponse{Deleted: count}, nil
}

func toRunDetail(r *entity.AgentRun) *dto.RunDetailResponse {
	return &dto.RunDetailResponse{
		Id:                r.Id,
		Question:          r.Question,
		ResolvedQuestion:  r.ResolvedQuestion,
		Answer:            r.Answer,
		Status:            r.Status,
		Error:             r.Error,
		Plan:              r.Plan,
		MemoryDecision:    r.MemoryDecision,
		ReasoningSteps:    r.ReasoningSteps,
		RetrievedMemories: r.RetrievedMemories,
		ReusedFromRunId:   r.ReusedFromRunId,
		Iterations:        r.Iterations,
		Confidence:        r.Confidence,
		Clarification:     r.Clarification,
		EmbeddingModel:    r.EmbeddingModel,
		SubmittedAt:       r.SubmittedAt,
		CompletedAt:       r.CompletedAt,
		CreatedAt:         r.CreatedAt,
	}
}
