package specification

import (
	"strings"

	"ai-memory-agent-be/internal/repository/scope"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserOwnedBy scopes a query to one user's rows
type UserOwnedBy struct {
	UserID uuid.UUID
}

func (s UserOwnedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}

// Searchable keeps completed runs that are not clarification requests
type Searchable struct{}

func (s Searchable) Apply(db *gorm.DB) *gorm.DB {
	return scope.SearchableRuns(db)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// QuestionContains matches runs whose question or resolved question contains Query (case-insensitive).
type QuestionContains struct {
	Query string
}

func (s QuestionContains) Apply(db *gorm.DB) *gorm.DB {
	pattern := "%" + likeEscaper.Replace(s.Query) + "%"
	return db.Where("(question ILIKE ? OR resolved_question ILIKE ?)", pattern, pattern)
}

// HasEmbedding keeps only runs whose question embedding was computed
type HasEmbedding struct{}

func (s HasEmbedding) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("question_embedding IS NOT NULL")
}
