package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-memory-agent-be/internal/entity"
	"ai-memory-agent-be/internal/mapper"
	"ai-memory-agent-be/internal/repository/contract"
	"ai-memory-agent-be/pkg/agent"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// AgentRunRepository keeps runs in process. Used by STORE_DRIVER=memory, the CLI and tests.
type AgentRunRepository struct {
	// compound operations (search, delete-all) must see a consistent set
	mu     sync.RWMutex
	cache  *cache.Cache
	mapper *mapper.AgentRunMapper
}

var _ contract.AgentRunRepository = (*AgentRunRepository)(nil)

func NewAgentRunRepository() *AgentRunRepository {
	return &AgentRunRepository{
		cache:  cache.New(cache.NoExpiration, 0),
		mapper: mapper.NewAgentRunMapper(),
	}
}

func clone(r *entity.AgentRun) *entity.AgentRun {
	c := *r
	c.QuestionEmbedding = append([]float32(nil), r.QuestionEmbedding...)
	c.ReasoningSteps = append([]agent.ReasoningStep(nil), r.ReasoningSteps...)
	c.RetrievedMemories = append([]agent.RetrievedMemory(nil), r.RetrievedMemories...)
	return &c
}

// userRuns returns the user's runs, most recent first. With searchableOnly it keeps
// completed runs that are not clarifications. Caller holds mu.
func (r *AgentRunRepository) userRuns(userID uuid.UUID, searchableOnly bool) []*entity.AgentRun {
	var runs []*entity.AgentRun
	for _, item := range r.cache.Items() {
		run := item.Object.(*entity.AgentRun)
		if run.UserId != userID {
			continue
		}
		if searchableOnly && (run.Status != agent.StatusCompleted || run.Clarification) {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

func (r *AgentRunRepository) Create(_ context.Context, run *entity.AgentRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.Id == uuid.Nil {
		run.Id = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	r.cache.Set(run.Id.String(), clone(run), cache.NoExpiration)
	return nil
}

func (r *AgentRunRepository) InsertRun(ctx context.Context, snapshot agent.RunState) (uuid.UUID, error) {
	run := r.mapper.FromRunState(snapshot)
	if err := r.Create(ctx, run); err != nil {
		return uuid.Nil, err
	}
	return run.Id, nil
}

func (r *AgentRunRepository) UpdateEmbedding(_ context.Context, id uuid.UUID, embedding []float32, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(id.String())
	if !found {
		return &agent.NotFoundError{Resource: "agent run", ID: id.String()}
	}
	run := clone(x.(*entity.AgentRun))
	run.QuestionEmbedding = append([]float32(nil), embedding...)
	run.EmbeddingModel = model
	now := time.Now()
	run.UpdatedAt = &now
	r.cache.Set(id.String(), run, cache.NoExpiration)
	return nil
}

func (r *AgentRunRepository) ListRecentForUser(_ context.Context, userID uuid.UUID, n int) ([]agent.RetrievedMemory, error) {
	if n <= 0 {
		return []agent.RetrievedMemory{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := r.userRuns(userID, true)
	out := make([]agent.RetrievedMemory, 0, n)
	for _, run := range runs {
		if len(out) >= n {
			break
		}
		out = append(out, r.mapper.ToMemory(run))
	}
	return out, nil
}

func (r *AgentRunRepository) SearchText(_ context.Context, userID uuid.UUID, query string, limit int) ([]agent.RetrievedMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(query)
	out := []agent.RetrievedMemory{}
	if needle == "" {
		return out, nil
	}
	for _, run := range r.userRuns(userID, true) {
		if len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(run.Question), needle) ||
			strings.Contains(strings.ToLower(run.ResolvedQuestion), needle) {
			out = append(out, r.mapper.ToMemory(run))
		}
	}
	return out, nil
}

func (r *AgentRunRepository) SearchVector(_ context.Context, userID uuid.UUID, embedding []float32, threshold float64, limit int) ([]agent.ScoredMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 5
	}

	var out []agent.ScoredMemory
	for _, run := range r.userRuns(userID, true) {
		if len(run.QuestionEmbedding) == 0 {
			continue
		}
		score := cosineSimilarity(embedding, run.QuestionEmbedding)
		if score < threshold {
			continue
		}
		out = append(out, agent.ScoredMemory{RetrievedMemory: r.mapper.ToMemory(run), Similarity: score})
	}

	// stable keeps recency order among equal scores
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AgentRunRepository) FindByID(_ context.Context, id uuid.UUID, userId uuid.UUID) (*entity.AgentRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	x, found := r.cache.Get(id.String())
	if !found {
		return nil, nil
	}
	run := x.(*entity.AgentRun)
	if run.UserId != userId {
		return nil, nil
	}
	return clone(run), nil
}

func (r *AgentRunRepository) ListForUser(_ context.Context, userId uuid.UUID, limit, offset int) ([]*entity.AgentRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := r.userRuns(userId, false)
	if offset >= len(runs) {
		return []*entity.AgentRun{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(runs) {
		end = len(runs)
	}
	out := make([]*entity.AgentRun, 0, end-offset)
	for _, run := range runs[offset:end] {
		out = append(out, clone(run))
	}
	return out, nil
}

func (r *AgentRunRepository) CountForUser(_ context.Context, userId uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.userRuns(userId, false))), nil
}

func (r *AgentRunRepository) DeleteRun(_ context.Context, id uuid.UUID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(id.String())
	if !found || x.(*entity.AgentRun).UserId != userID {
		return false, nil
	}
	r.cache.Delete(id.String())
	return true, nil
}

func (r *AgentRunRepository) DeleteAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := r.userRuns(userID, false)
	for _, run := range runs {
		r.cache.Delete(run.Id.String())
	}
	return int64(len(runs)), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
