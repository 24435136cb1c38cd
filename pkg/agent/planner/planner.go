package planner

import (
	"context"
	"strings"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/llm"
)

type planStepOutput struct {
	Action    string `json:"action" validate:"required"`
	Reasoning string `json:"reasoning"`
}

type planOutput struct {
	Objective      string           `json:"objective" validate:"required"`
	Steps          []planStepOutput `json:"steps" validate:"required,min=1,dive"`
	RequiresMemory *bool            `json:"requiresMemory" validate:"required"`
}

// Planner turns a question into a structured plan with an advisory memory hint
type Planner struct {
	llmProvider llm.LLMProvider
	logger      logger.ILogger
}

func NewPlanner(llmProvider llm.LLMProvider, log logger.ILogger) *Planner {
	return &Planner{
		llmProvider: llmProvider,
		logger:      log,
	}
}

func (p *Planner) Plan(ctx context.Context, question string) (agent.Plan, error) {
	var out planOutput
	if err := llm.GenerateStructured(ctx, p.llmProvider, buildPrompt(question), &out); err != nil {
		p.logger.Error("PLANNER", "Plan generation failed", map[string]interface{}{"error": err.Error()})
		return agent.Plan{}, agent.NewOracleError(agent.TaskPlanning, err)
	}

	plan := agent.Plan{
		Objective:      strings.TrimSpace(out.Objective),
		Steps:          make([]agent.PlanStep, len(out.Steps)),
		RequiresMemory: *out.RequiresMemory,
	}
	for i, s := range out.Steps {
		plan.Steps[i] = agent.PlanStep{
			Index:     i + 1,
			Action:    strings.TrimSpace(s.Action),
			Reasoning: strings.TrimSpace(s.Reasoning),
		}
	}

	p.logger.Debug("PLANNER", "Plan created", map[string]interface{}{
		"objective":       plan.Objective,
		"steps":           len(plan.Steps),
		"requires_memory": plan.RequiresMemory,
	})
	return plan, nil
}

func buildPrompt(question string) string {
	var b strings.Builder
	b.WriteString(agent.TaskHeader(agent.TaskPlanning))
	b.WriteString("You plan how an assistant will answer a user's question.\n")
	b.WriteString("Describe the objective and 1 to 5 ordered steps. Set requiresMemory to true when the question\n")
	b.WriteString("seems to depend on earlier conversation (pronouns, \"the same\", follow-ups).\n\n")
	agent.WriteQuestion(&b, question)
	b.WriteString("\nRespond with JSON only:\n")
	b.WriteString(`{"objective": "...", "steps": [{"action": "...", "reasoning": "..."}], "requiresMemory": false}`)
	b.WriteString("\n")
	return b.String()
}
