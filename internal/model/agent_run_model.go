package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AgentRun struct {
	Id                uuid.UUID        `gorm:"type:uuid;primaryKey"`
	UserId            uuid.UUID        `gorm:"type:uuid;not null;index:idx_agent_runs_user_created,priority:1"`
	Question          string           `gorm:"type:text;not null"`
	ResolvedQuestion  string           `gorm:"type:text"`
	Answer            string           `gorm:"type:text"`
	Status            string           `gorm:"type:varchar(16);not null;index"`
	Error             string           `gorm:"type:text"`
	Plan              datatypes.JSON   `gorm:"type:jsonb"`
	MemoryDecision    datatypes.JSON   `gorm:"type:jsonb"`
	ReasoningSteps    datatypes.JSON   `gorm:"type:jsonb"`
	RetrievedMemories datatypes.JSON   `gorm:"type:jsonb"`
	ReusedFromRunId   *uuid.UUID       `gorm:"type:uuid"`
	Iterations        int              `gorm:"default:0"`
	Confidence        *float64         `gorm:"type:double precision"`
	Clarification     bool             `gorm:"not null;default:false"`
	QuestionEmbedding *pgvector.Vector `gorm:"type:vector(768)"` // nomic-embed-text uses 768 dimensions
	EmbeddingModel    string           `gorm:"type:varchar(100)"`
	SubmittedAt       time.Time        `gorm:"not null"`
	CompletedAt       *time.Time
	CreatedAt         time.Time      `gorm:"autoCreateTime;index:idx_agent_runs_user_created,priority:2,sort:desc"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime"`
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

func (AgentRun) TableName() string {
	return "agent_runs"
}
