package agent

import (
	"time"

	"github.com/google/uuid"
)

// Question is a user's submitted question. Immutable once submitted.
type Question struct {
	Text        string
	UserID      uuid.UUID
	SubmittedAt time.Time
}

// PlanStep is one ordered step of a Plan
type PlanStep struct {
	Index     int    `json:"index"`
	Action    string `json:"action"`
	Reasoning string `json:"reasoning"`
}

// Plan is the planner's structured reading of the question.
// RequiresMemory is advisory only; the Dependency Decider makes the binding call.
type Plan struct {
	Objective      string     `json:"objective"`
	Steps          []PlanStep `json:"steps"`
	RequiresMemory bool       `json:"requiresMemory"`
}

// SearchMethod identifies which search produced the existence candidates
type SearchMethod string

const (
	SearchMethodVector SearchMethod = "vector"
	SearchMethodText   SearchMethod = "text"
)

// MatchedRun references a prior run judged similar to the current question
type MatchedRun struct {
	RunID    uuid.UUID `json:"runId"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
}

// ExistenceCheck reports whether a similar question was asked before.
type ExistenceCheck struct {
	SimilarQuestionExists bool         `json:"similarQuestionExists"`
	Match                 *MatchedRun  `json:"match,omitempty"`
	SearchQuery           string       `json:"searchQuery"`
	Explanation           string       `json:"explanation"`
	SearchMethod          SearchMethod `json:"searchMethod"`
	SimilarityScore       *float64     `json:"similarityScore,omitempty"`

	// Tier is the fallback tier (1-5) that produced the candidates, 0 when none did.
	Tier           int `json:"tier"`
	CandidateCount int `json:"candidateCount"`
}

// ExistingAnswer returns the matched run's stored answer, or "" if there is none.
func (e ExistenceCheck) ExistingAnswer() string {
	if !e.SimilarQuestionExists || e.Match == nil {
		return ""
	}
	return e.Match.Answer
}

// ResolvedEntity maps a pronoun to a concrete entity found in history.
// SourceRank is the recency rank of the history item the entity came from (0 = most recent).
type ResolvedEntity struct {
	Pronoun    string  `json:"pronoun"`
	ResolvedTo string  `json:"resolvedTo"`
	Confidence float64 `json:"confidence"`
	SourceRank int     `json:"sourceRank"`
}

// AmbiguousReference is a pronoun with several equally recent referents.
type AmbiguousReference struct {
	Pronoun    string   `json:"pronoun"`
	Candidates []string `json:"candidates"`
	SourceRank int      `json:"sourceRank"`
}

// PronounResolution describes how pronouns and implicit references in the question were resolved.
type PronounResolution struct {
	HasPronouns         bool                 `json:"hasPronouns"`
	PronounsFound       []string             `json:"pronounsFound"`
	ResolutionAttempted bool                 `json:"resolutionAttempted"`
	Resolved            bool                 `json:"resolved"`
	ResolvedEntities    []ResolvedEntity     `json:"resolvedEntities"`
	Explanation         string               `json:"explanation"`
	Ambiguous           bool                 `json:"ambiguous"`
	AmbiguousReferences []AmbiguousReference `json:"ambiguousReferences,omitempty"`
}

// DependencyDecision says whether prior context is required to answer correctly.
type DependencyDecision struct {
	RequiresMemory    bool               `json:"requiresMemory"`
	Reason            string             `json:"reason"`
	ContextNeeded     []string           `json:"contextNeeded,omitempty"`
	PronounResolution *PronounResolution `json:"pronounResolution,omitempty"`
}

// ResolvedEntities returns the resolved entities, or nil when resolution did not succeed.
func (d DependencyDecision) ResolvedEntities() []ResolvedEntity {
	if d.PronounResolution == nil || !d.PronounResolution.Resolved {
		return nil
	}
	return d.PronounResolution.ResolvedEntities
}

// MemoryDecision composes the existence and dependency decisions.
type MemoryDecision struct {
	Existence            ExistenceCheck     `json:"existence"`
	Dependency           DependencyDecision `json:"dependency"`
	ShouldRetrieveMemory bool               `json:"shouldRetrieveMemory"`
	SearchQuery          string             `json:"searchQuery,omitempty"`

	// ResolvedQuestion is set when pronoun substitution changed the question text.
	ResolvedQuestion  string          `json:"resolvedQuestion,omitempty"`
	ResolvedExistence *ExistenceCheck `json:"resolvedExistence,omitempty"`
}

// RetrievedMemory is one prior question/answer pair of the same user.
type RetrievedMemory struct {
	RunID            uuid.UUID `json:"runId"`
	Question         string    `json:"question"`
	ResolvedQuestion string    `json:"resolvedQuestion,omitempty"`
	Answer           string    `json:"answer"`
	CreatedAt        time.Time `json:"createdAt"`
	RelevanceScore   *float64  `json:"relevanceScore,omitempty"`
}

// ScoredMemory is a vector search hit.
type ScoredMemory struct {
	RetrievedMemory
	Similarity float64
}

// RankedMemory is a history item tagged with its recency rank (0 = most recent).
// The rank travels with the item so later sorting can never change its meaning.
type RankedMemory struct {
	Rank int `json:"rank"`
	RetrievedMemory
}

// StepType tags a reasoning step
type StepType string

const (
	StepPlanning         StepType = "planning"
	StepExistenceCheck   StepType = "existence_check"
	StepDependencyCheck  StepType = "dependency_check"
	StepValidation       StepType = "validation"
	StepResolvedRecheck  StepType = "resolved_recheck"
	StepAnswerReuse      StepType = "answer_reuse"
	StepClarification    StepType = "clarification"
	StepMemoryRetrieval  StepType = "memory_retrieval"
	StepReasoning        StepType = "reasoning"
	StepAnswerGeneration StepType = "answer_generation"
)

// SearchAnalytics describes the search behind a step
type SearchAnalytics struct {
	Method          SearchMethod `json:"method"`
	Tier            int          `json:"tier"`
	Query           string       `json:"query"`
	CandidateCount  int          `json:"candidateCount"`
	SimilarityScore *float64     `json:"similarityScore,omitempty"`
	MatchedRunID    string       `json:"matchedRunId,omitempty"`
}

// ReasoningStep is an append-only record of pipeline progress. Index starts at 1.
type ReasoningStep struct {
	Index           int              `json:"index"`
	Type            StepType         `json:"type"`
	Description     string           `json:"description"`
	Timestamp       time.Time        `json:"timestamp"`
	SearchAnalytics *SearchAnalytics `json:"searchAnalytics,omitempty"`
}
