package scope

import (
	"ai-memory-agent-be/pkg/agent"

	"gorm.io/gorm"
)

// ExcludeSoftDelete is needed on raw Table() queries, which skip gorm's
// automatic deleted_at filter.
func ExcludeSoftDelete(db *gorm.DB) *gorm.DB {
	return db.Where("deleted_at IS NULL")
}

// SearchableRuns keeps runs that finished with a real answer, leaving out
// failed runs and clarification requests.
func SearchableRuns(db *gorm.DB) *gorm.DB {
	return db.Where("status = ? AND clarification = ?", string(agent.StatusCompleted), false)
}
