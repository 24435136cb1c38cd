package mapper

import (
	"encoding/json"
	"time"

	"ai-memory-agent-be/internal/entity"
	"ai-memory-agent-be/internal/model"
	"ai-memory-agent-be/pkg/agent"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AgentRunMapper struct{}

func NewAgentRunMapper() *AgentRunMapper {
	return &AgentRunMapper{}
}

// FromRunState snapshots a finished run for persistence.
func (m *AgentRunMapper) FromRunState(s agent.RunState) *entity.AgentRun {
	createdAt := s.SubmittedAt
	if s.CompletedAt != nil {
		createdAt = *s.CompletedAt
	}
	return &entity.AgentRun{
		Id:                s.ID,
		UserId:            s.UserID,
		Question:          s.Question,
		ResolvedQuestion:  s.ResolvedQuestion(),
		Answer:            s.Answer,
		Status:            s.Status,
		Error:             s.Error,
		Plan:              s.Plan,
		MemoryDecision:    s.MemoryDecision,
		ReasoningSteps:    s.ReasoningSteps,
		RetrievedMemories: s.RetrievedMemories,
		ReusedFromRunId:   s.ReusedFromRunID,
		Iterations:        s.Iterations,
		Confidence:        s.Confidence,
		Clarification:     s.Clarification,
		SubmittedAt:       s.SubmittedAt,
		CompletedAt:       s.CompletedAt,
		CreatedAt:         createdAt,
	}
}

// ToMemory exposes a run as a history item.
func (m *AgentRunMapper) ToMemory(e *entity.AgentRun) agent.RetrievedMemory {
	return agent.RetrievedMemory{
		RunID:            e.Id,
		Question:         e.Question,
		ResolvedQuestion: e.ResolvedQuestion,
		Answer:           e.Answer,
		CreatedAt:        e.CreatedAt,
	}
}

func (m *AgentRunMapper) ToEntity(r *model.AgentRun) *entity.AgentRun {
	if r == nil {
		return nil
	}

	var deletedAt *time.Time
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		updatedAt = &t
	}

	var embedding []float32
	if r.QuestionEmbedding != nil {
		embedding = r.QuestionEmbedding.Slice()
	}

	e := &entity.AgentRun{
		Id:                r.Id,
		UserId:            r.UserId,
		Question:          r.Question,
		ResolvedQuestion:  r.ResolvedQuestion,
		Answer:            r.Answer,
		Status:            agent.RunStatus(r.Status),
		Error:             r.Error,
		ReusedFromRunId:   r.ReusedFromRunId,
		Iterations:        r.Iterations,
		Confidence:        r.Confidence,
		Clarification:     r.Clarification,
		QuestionEmbedding: embedding,
		EmbeddingModel:    r.EmbeddingModel,
		SubmittedAt:       r.SubmittedAt,
		CompletedAt:       r.CompletedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         updatedAt,
		DeletedAt:         deletedAt,
		IsDeleted:         r.DeletedAt.Valid,
	}

	if len(r.Plan) > 0 {
		var plan agent.Plan
		if json.Unmarshal(r.Plan, &plan) == nil {
			e.Plan = &plan
		}
	}
	if len(r.MemoryDecision) > 0 {
		var decision agent.MemoryDecision
		if json.Unmarshal(r.MemoryDecision, &decision) == nil {
			e.MemoryDecision = &decision
		}
	}
	_ = json.Unmarshal(r.ReasoningSteps, &e.ReasoningSteps)
	_ = json.Unmarshal(r.RetrievedMemories, &e.RetrievedMemories)

	return e
}

func (m *AgentRunMapper) ToModel(e *entity.AgentRun) *model.AgentRun {
	if e == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if e.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *e.DeletedAt, Valid: true}
	} else if e.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if e.UpdatedAt != nil {
		updatedAt = *e.UpdatedAt
	}

	var embedding *pgvector.Vector
	if len(e.QuestionEmbedding) > 0 {
		v := pgvector.NewVector(e.QuestionEmbedding)
		embedding = &v
	}

	r := &model.AgentRun{
		Id:                e.Id,
		UserId:            e.UserId,
		Question:          e.Question,
		ResolvedQuestion:  e.ResolvedQuestion,
		Answer:            e.Answer,
		Status:            string(e.Status),
		Error:             e.Error,
		ReusedFromRunId:   e.ReusedFromRunId,
		Iterations:        e.Iterations,
		Confidence:        e.Confidence,
		Clarification:     e.Clarification,
		QuestionEmbedding: embedding,
		EmbeddingModel:    e.EmbeddingModel,
		SubmittedAt:       e.SubmittedAt,
		CompletedAt:       e.CompletedAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         updatedAt,
		DeletedAt:         deletedAt,
		ReasoningSteps:    toJSON(e.ReasoningSteps),
		RetrievedMemories: toJSON(e.RetrievedMemories),
	}
	if e.Plan != nil {
		r.Plan = toJSON(e.Plan)
	}
	if e.MemoryDecision != nil {
		r.MemoryDecision = toJSON(e.MemoryDecision)
	}
	return r
}

func (m *AgentRunMapper) ToEntities(runs []*model.AgentRun) []*entity.AgentRun {
	entities := make([]*entity.AgentRun, len(runs))
	for i, r := range runs {
		entities[i] = m.ToEntity(r)
	}
	return entities
}

func toJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
