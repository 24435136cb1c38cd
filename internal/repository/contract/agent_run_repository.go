package contract

import (
	"context"

	"ai-memory-agent-be/internal/entity"
	"ai-memory-agent-be/pkg/agent"

	"github.com/google/uuid"
)

// AgentRunRepository persists runs. Every read and write is scoped to one user.
type AgentRunRepository interface {
	agent.RunStore

	Create(ctx context.Context, run *entity.AgentRun) error
	UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32, model string) error
	FindByID(ctx context.Context, id uuid.UUID, userId uuid.UUID) (*entity.AgentRun, error)
	ListForUser(ctx context.Context, userId uuid.UUID, limit, offset int) ([]*entity.AgentRun, error)
	CountForUser(ctx context.Context, userId uuid.UUID) (int64, error)
}
