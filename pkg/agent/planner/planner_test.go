package planner

import (
	"context"
	"testing"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/agent/agenttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	llm := agenttest.NewScriptedLLM().Reply(agent.TaskPlanning, "Sure! Here is the plan:\n"+
		`{"objective": " Find the age ", "steps": [{"action": "resolve who he is", "reasoning": "pronoun"}, {"action": "look up birth year"}], "requiresMemory": true}`)
	p := NewPlanner(llm, logger.NopLogger{})

	plan, err := p.Plan(context.Background(), "How old is he?")

	require.NoError(t, err)
	assert.Equal(t, "Find the age", plan.Objective)
	assert.True(t, plan.RequiresMemory)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, 1, plan.Steps[0].Index)
	assert.Equal(t, 2, plan.Steps[1].Index)
	assert.Equal(t, "look up birth year", plan.Steps[1].Action)
	assert.Contains(t, llm.Prompts(agent.TaskPlanning)[0], "<question>How old is he?</question>")
}

func TestPlan_RejectsMalformedOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "I cannot plan that."},
		{name: "missing steps", response: `{"objective": "x", "steps": [], "requiresMemory": false}`},
		{name: "missing memory hint", response: `{"objective": "x", "steps": [{"action": "a"}]}`},
		{name: "unknown field", response: `{"objective": "x", "steps": [{"action": "a"}], "requiresMemory": false, "mood": "happy"}`},
		{name: "blank action", response: `{"objective": "x", "steps": [{"action": ""}], "requiresMemory": false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := agenttest.NewScriptedLLM().Reply(agent.TaskPlanning, tt.response)

			_, err := NewPlanner(llm, logger.NopLogger{}).Plan(context.Background(), "q")

			require.Error(t, err)
			assert.True(t, agent.IsOracle(err))
		})
	}
}
