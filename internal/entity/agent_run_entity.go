package entity

import (
	"time"

	"ai-memory-agent-be/pkg/agent"

	"github.com/google/uuid"
)

// AgentRun is a persisted pipeline run
type AgentRun struct {
	Id                uuid.UUID
	UserId            uuid.UUID
	Question          string
	ResolvedQuestion  string
	Answer            string
	Status            agent.RunStatus
	Error             string
	Plan              *agent.Plan
	MemoryDecision    *agent.MemoryDecision
	ReasoningSteps    []agent.ReasoningStep
	RetrievedMemories []agent.RetrievedMemory
	ReusedFromRunId   *uuid.UUID
	Iterations        int
	Confidence        *float64
	Clarification     bool
	QuestionEmbedding []float32
	EmbeddingModel    string
	SubmittedAt       time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         *time.Time
	DeletedAt         *time.Time
	IsDeleted         bool
}

// EmbeddingText is the text the question embedding is computed from.
func (r *AgentRun) EmbeddingText() string {
	if r.ResolvedQuestion != "" {
		return r.ResolvedQuestion
	}
	return r.Question
}
