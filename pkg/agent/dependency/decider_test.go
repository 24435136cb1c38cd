package dependency_test

import (
	"context"
	"testing"
	"time"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/agent/agenttest"
	"ai-memory-agent-be/pkg/agent/dependency"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decide(t *testing.T, llm *agenttest.ScriptedLLM, history *agenttest.History, userID uuid.UUID, question string) agent.DependencyDecision {
	t.Helper()
	d := dependency.NewDecider(llm, history, 0, logger.NopLogger{})
	decision, err := d.Decide(context.Background(), userID, question, agent.ExistenceCheck{}, agent.Plan{Objective: "answer"})
	require.NoError(t, err)
	return decision
}

func TestDecide_SelfContained(t *testing.T) {
	llm := agenttest.NewScriptedLLM().Reply(agent.TaskDependency, agenttest.SelfContained("Names its subject"))
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})

	decision := decide(t, llm, history, uuid.New(), "What is the tallest mountain?")

	assert.False(t, decision.RequiresMemory)
	require.NotNil(t, decision.PronounResolution)
	assert.False(t, decision.PronounResolution.HasPronouns)
	assert.Empty(t, decision.ResolvedEntities())
	assert.Contains(t, llm.Prompts(agent.TaskDependency)[0], "(no earlier questions)")
}

func TestDecide_HistoryIsRankedByRecency(t *testing.T) {
	llm := agenttest.NewScriptedLLM().Reply(agent.TaskDependency, agenttest.SelfContained("n/a"))
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	userID := uuid.New()
	now := time.Now()
	history.Add(context.Background(), userID, "Who is Marie Curie?", "A physicist.", now.Add(-2*time.Hour))
	history.Add(context.Background(), userID, "Who is Ada Lovelace?", "A mathematician.", now.Add(-time.Hour))

	decide(t, llm, history, userID, "Where was she born?")

	prompt := llm.Prompts(agent.TaskDependency)[0]
	assert.Regexp(t, `rank="0">\nquestion: Who is Ada Lovelace\?`, prompt)
	assert.Regexp(t, `rank="1">\nquestion: Who is Marie Curie\?`, prompt)
	assert.Contains(t, prompt, "<detected_references>she</detected_references>")
}

func TestDecide_MostRecentReferentWins(t *testing.T) {
	llm := agenttest.NewScriptedLLM().Reply(agent.TaskDependency, agenttest.Resolved("Refers to a person named earlier",
		agenttest.Entity{Pronoun: "She", ResolvedTo: "Marie Curie", Confidence: 0.99, SourceRank: 1},
		agenttest.Entity{Pronoun: "she", ResolvedTo: "Ada Lovelace", Confidence: 0.7, SourceRank: 0},
	))
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	userID := uuid.New()
	now := time.Now()
	history.Add(context.Background(), userID, "Who is Marie Curie?", "A physicist.", now.Add(-2*time.Hour))
	history.Add(context.Background(), userID, "Who is Ada Lovelace?", "A mathematician.", now.Add(-time.Hour))

	decision := decide(t, llm, history, userID, "Where was she born?")

	entities := decision.ResolvedEntities()
	require.Len(t, entities, 1)
	assert.Equal(t, "she", entities[0].Pronoun)
	assert.Equal(t, "Ada Lovelace", entities[0].ResolvedTo)
	assert.Equal(t, 0, entities[0].SourceRank)
	assert.False(t, decision.PronounResolution.Ambiguous)
}

func TestDecide_TieAtSameRankIsAmbiguous(t *testing.T) {
	llm := agenttest.NewScriptedLLM().Reply(agent.TaskDependency, agenttest.Resolved("Refers to a city",
		agenttest.Entity{Pronoun: "it", ResolvedTo: "Paris", Confidence: 0.5, SourceRank: 0},
		agenttest.Entity{Pronoun: "it", ResolvedTo: "London", Confidence: 0.5, SourceRank: 0},
	))
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	userID := uuid.New()
	history.Add(context.Background(), userID, "Compare Paris and London", "Both are capitals.", time.Now())

	decision := decide(t, llm, history, userID, "How old is it?")

	pr := decision.PronounResolution
	assert.True(t, pr.Ambiguous)
	assert.False(t, pr.Resolved)
	assert.Empty(t, decision.ResolvedEntities())
	require.Len(t, pr.AmbiguousReferences, 1)
	assert.Equal(t, "it", pr.AmbiguousReferences[0].Pronoun)
	assert.ElementsMatch(t, []string{"Paris", "London"}, pr.AmbiguousReferences[0].Candidates)
}

func TestDecide_SameReferentTwiceIsNotAmbiguous(t *testing.T) {
	llm := agenttest.NewScriptedLLM().Reply(agent.TaskDependency, agenttest.Resolved("Refers to a city",
		agenttest.Entity{Pronoun: "it", ResolvedTo: "Paris", Confidence: 0.5, SourceRank: 0},
		agenttest.Entity{Pronoun: "it", ResolvedTo: "paris", Confidence: 0.8, SourceRank: 0},
	))
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	userID := uuid.New()
	history.Add(context.Background(), userID, "Tell me about Paris", "The capital of France.", time.Now())

	decision := decide(t, llm, history, userID, "How old is it?")

	require.Len(t, decision.ResolvedEntities(), 1)
	assert.Equal(t, "paris", decision.ResolvedEntities()[0].ResolvedTo, "higher confidence wins within a rank")
	assert.False(t, decision.PronounResolution.Ambiguous)
}

func TestDecide_DropsUnknownRanks(t *testing.T) {
	llm := agenttest.NewScriptedLLM().Reply(agent.TaskDependency, agenttest.Resolved("Refers to a city",
		agenttest.Entity{Pronoun: "it", ResolvedTo: "Atlantis", Confidence: 0.9, SourceRank: 4},
	))
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	userID := uuid.New()
	history.Add(context.Background(), userID, "Tell me about Paris", "The capital of France.", time.Now())

	decision := decide(t, llm, history, userID, "How old is it?")

	assert.Empty(t, decision.PronounResolution.ResolvedEntities)
}

func TestDecide_DetectorForcesPronounFlag(t *testing.T) {
	llm := agenttest.NewScriptedLLM().Reply(agent.TaskDependency, agenttest.SelfContained("Looks self-contained"))
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})

	decision := decide(t, llm, history, uuid.New(), "What does the company sell?")

	pr := decision.PronounResolution
	assert.True(t, pr.HasPronouns)
	assert.Contains(t, pr.PronounsFound, "the company")
}

func TestDecide_MalformedOutputIsOracleError(t *testing.T) {
	llm := agenttest.NewScriptedLLM().Reply(agent.TaskDependency, `{"requiresMemory": true, "reason": "x"}`)
	history := agenttest.NewHistory(&agenttest.HashEmbedder{})
	d := dependency.NewDecider(llm, history, 0, logger.NopLogger{})

	_, err := d.Decide(context.Background(), uuid.New(), "How old is he?", agent.ExistenceCheck{}, agent.Plan{})

	require.Error(t, err)
	assert.True(t, agent.IsOracle(err))
}
