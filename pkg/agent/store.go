package agent

import (
	"context"

	"github.com/google/uuid"
)

// HistoryStore is the read side of the persistence store used by the pipeline.
// Every method is scoped to a single user; implementations must never return
// another user's runs.
type HistoryStore interface {
	// ListRecentForUser returns up to n runs, most recent first.
	ListRecentForUser(ctx context.Context, userID uuid.UUID, n int) ([]RetrievedMemory, error)

	// SearchText returns runs whose question (or resolved question) contains query, most recent first.
	SearchText(ctx context.Context, userID uuid.UUID, query string, limit int) ([]RetrievedMemory, error)

	// SearchVector returns runs whose question embedding has cosine similarity >= threshold,
	// best first. Runs without an embedding are excluded.
	SearchVector(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float64, limit int) ([]ScoredMemory, error)
}

// RunStore adds the write side. Persisting runs is the caller's job, not the pipeline's.
type RunStore interface {
	HistoryStore

	InsertRun(ctx context.Context, snapshot RunState) (uuid.UUID, error)
	DeleteRun(ctx context.Context, id uuid.UUID, userID uuid.UUID) (bool, error)
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// RankHistory tags recency-ordered history with explicit ranks (0 = most recent).
func RankHistory(recent []RetrievedMemory) []RankedMemory {
	ranked := make([]RankedMemory, len(recent))
	for i, m := range recent {
		ranked[i] = RankedMemory{Rank: i, RetrievedMemory: m}
	}
	return ranked
}
