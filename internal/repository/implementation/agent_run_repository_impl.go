package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-memory-agent-be/internal/entity"
	"ai-memory-agent-be/internal/mapper"
	"ai-memory-agent-be/internal/model"
	"ai-memory-agent-be/internal/repository/contract"
	"ai-memory-agent-be/internal/repository/scope"
	"ai-memory-agent-be/internal/repository/specification"
	"ai-memory-agent-be/pkg/agent"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type AgentRunRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AgentRunMapper
}

func NewAgentRunRepository(db *gorm.DB) contract.AgentRunRepository {
	return &AgentRunRepositoryImpl{
		db:     db,
		mapper: mapper.NewAgentRunMapper(),
	}
}

func (r *AgentRunRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *AgentRunRepositoryImpl) findAll(ctx context.Context, specs ...specification.Specification) ([]*entity.AgentRun, error) {
	var models []*model.AgentRun
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *AgentRunRepositoryImpl) toMemories(runs []*entity.AgentRun) []agent.RetrievedMemory {
	out := make([]agent.RetrievedMemory, len(runs))
	for i, run := range runs {
		out[i] = r.mapper.ToMemory(run)
	}
	return out
}

func (r *AgentRunRepositoryImpl) Create(ctx context.Context, run *entity.AgentRun) error {
	m := r.mapper.ToModel(run)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*run = *r.mapper.ToEntity(m)
	return nil
}

func (r *AgentRunRepositoryImpl) InsertRun(ctx context.Context, snapshot agent.RunState) (uuid.UUID, error) {
	run := r.mapper.FromRunState(snapshot)
	if run.Id == uuid.Nil {
		run.Id = uuid.New()
	}
	if err := r.Create(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	return run.Id, nil
}

func (r *AgentRunRepositoryImpl) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32, embeddingModel string) error {
	vec := pgvector.NewVector(embedding)
	res := r.db.WithContext(ctx).
		Model(&model.AgentRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"question_embedding": &vec,
			"embedding_model":    embeddingModel,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &agent.NotFoundError{Resource: "agent run", ID: id.String()}
	}
	return nil
}

func (r *AgentRunRepositoryImpl) ListRecentForUser(ctx context.Context, userID uuid.UUID, n int) ([]agent.RetrievedMemory, error) {
	runs, err := r.findAll(ctx,
		specification.UserOwnedBy{UserID: userID},
		specification.Searchable{},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: n},
	)
	if err != nil {
		return nil, err
	}
	return r.toMemories(runs), nil
}

func (r *AgentRunRepositoryImpl) SearchText(ctx context.Context, userID uuid.UUID, query string, limit int) ([]agent.RetrievedMemory, error) {
	if query == "" {
		return []agent.RetrievedMemory{}, nil
	}
	runs, err := r.findAll(ctx,
		specification.UserOwnedBy{UserID: userID},
		specification.Searchable{},
		specification.QuestionContains{Query: query},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit},
	)
	if err != nil {
		return nil, err
	}
	return r.toMemories(runs), nil
}

// SearchVector returns runs whose question embedding is within threshold cosine similarity
func (r *AgentRunRepositoryImpl) SearchVector(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float64, limit int) ([]agent.ScoredMemory, error) {
	if limit <= 0 {
		limit = 5
	}

	// pgvector <=> is cosine distance, so similarity = 1 - distance
	type result struct {
		model.AgentRun
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("agent_runs").
		Select("agent_runs.*, 1 - (question_embedding <=> ?) as similarity", queryVector).
		Where("user_id = ?", userID).
		Scopes(scope.SearchableRuns, scope.ExcludeSoftDelete, specification.HasEmbedding{}.Apply).
		Where("1 - (question_embedding <=> ?) >= ?", queryVector, threshold).
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]agent.ScoredMemory, len(results))
	for i, res := range results {
		scored[i] = agent.ScoredMemory{
			RetrievedMemory: r.mapper.ToMemory(r.mapper.ToEntity(&res.AgentRun)),
			Similarity:      res.Similarity,
		}
	}
	return scored, nil
}

func (r *AgentRunRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID, userId uuid.UUID) (*entity.AgentRun, error) {
	var m model.AgentRun
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByID{ID: id},
		specification.UserOwnedBy{UserID: userId},
	)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *AgentRunRepositoryImpl) ListForUser(ctx context.Context, userId uuid.UUID, limit, offset int) ([]*entity.AgentRun, error) {
	return r.findAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: offset},
	)
}

func (r *AgentRunRepositoryImpl) CountForUser(ctx context.Context, userId uuid.UUID) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specification.UserOwnedBy{UserID: userId})
	err := query.Model(&model.AgentRun{}).Count(&count).Error
	return count, err
}

func (r *AgentRunRepositoryImpl) DeleteRun(ctx context.Context, id uuid.UUID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.AgentRun{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *AgentRunRepositoryImpl) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.AgentRun{})
	return res.RowsAffected, res.Error
}
