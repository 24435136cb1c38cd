package memory

import (
	"context"

	"ai-memory-agent-be/internal/repository/contract"
	"ai-memory-agent-be/internal/repository/unitofwork"
)

// RepositoryFactory hands out units of work over one shared in-memory store.
type RepositoryFactory struct {
	runs *AgentRunRepository
}

func NewRepositoryFactory() unitofwork.RepositoryFactory {
	return &RepositoryFactory{runs: NewAgentRunRepository()}
}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{runs: f.runs}
}

// unitOfWork has no transactions; every write is applied immediately.
type unitOfWork struct {
	runs *AgentRunRepository
}

func (u *unitOfWork) Begin(ctx context.Context) error { return nil }
func (u *unitOfWork) Commit() error                   { return nil }
func (u *unitOfWork) Rollback() error                 { return nil }

func (u *unitOfWork) AgentRunRepository() contract.AgentRunRepository {
	return u.runs
}
