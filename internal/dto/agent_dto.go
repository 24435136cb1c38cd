package dto

import (
	"time"

	"ai-memory-agent-be/pkg/agent"

	"github.com/google/uuid"
)

type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

// AskResponse is returned by the synchronous ask endpoint.
type AskResponse struct {
	RunId           uuid.UUID             `json:"run_id"`
	Status          agent.RunStatus       `json:"status"`
	Answer          string                `json:"answer"`
	Error           string                `json:"error,omitempty"`
	ReusedFromRunId *uuid.UUID            `json:"reused_from_run_id,omitempty"`
	Iterations      int                   `json:"iterations"`
	Confidence      *float64              `json:"confidence,omitempty"`
	ReasoningSteps  []agent.ReasoningStep `json:"reasoning_steps"`
	Persisted       bool                  `json:"persisted"`
}

type ListRunsRequest struct {
	Page     int `query:"page" validate:"min=1"`
	PageSize int `query:"page_size" validate:"min=1,max=100"`
}

type RunSummaryResponse struct {
	Id               uuid.UUID       `json:"id"`
	Question         string          `json:"question"`
	ResolvedQuestion string          `json:"resolved_question,omitempty"`
	Answer           string          `json:"answer"`
	Status           agent.RunStatus `json:"status"`
	Reused           bool            `json:"reused"`
	Clarification    bool            `json:"clarification"`
	HasEmbedding     bool            `json:"has_embedding"`
	CreatedAt        time.Time       `json:"created_at"`
}

type ListRunsResponse struct {
	Items    []RunSummaryResponse `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Total    int64                `json:"total"`
}

type RunDetailResponse struct {
	Id                uuid.UUID               `json:"id"`
	Question          string                  `json:"question"`
	ResolvedQuestion  string                  `json:"resolved_question,omitempty"`
	Answer            string                  `json:"answer"`
	Status            agent.RunStatus         `json:"status"`
	Error             string                  `json:"error,omitempty"`
	Plan              *agent.Plan             `json:"plan,omitempty"`
	MemoryDecision    *agent.MemoryDecision   `json:"memory_decision,omitempty"`
	ReasoningSteps    []agent.ReasoningStep   `json:"reasoning_steps"`
	RetrievedMemories []agent.RetrievedMemory `json:"retrieved_memories"`
	ReusedFromRunId   *uuid.UUID              `json:"reused_from_run_id,omitempty"`
	Iterations        int                     `json:"iterations"`
	Clarification     bool                    `json:"clarification"`
	Confidence        *float64                `json:"confidence,omitempty"`
	EmbeddingModel    string                  `json:"embedding_model,omitempty"`
	SubmittedAt       time.Time               `json:"submitted_at"`
	CompletedAt       *time.Time              `json:"completed_at,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}

type DeleteRunsResponse struct {
	Deleted int64 `json:"deleted"`
}

// PublishEmbedRunMessage asks the consumer to embed a persisted run's question.
type PublishEmbedRunMessage struct {
	RunId  uuid.UUID `json:"run_id"`
	UserId uuid.UUID `json:"user_id"`
}
