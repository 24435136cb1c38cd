package unitofwork

import (
	"context"

	"ai-memory-agent-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	AgentRunRepository() contract.AgentRunRepository
}
