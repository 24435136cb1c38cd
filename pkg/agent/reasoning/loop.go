package reasoning

import (
	"context"
	"fmt"
	"strings"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/llm"
)

const (
	MaxIterations              = 3
	DefaultConfidenceThreshold = 0.8
)

// StopReason says why the loop ended
type StopReason string

const (
	StopSatisfied     StopReason = "no_more_reasoning_needed"
	StopConfident     StopReason = "confidence_threshold_reached"
	StopMaxIterations StopReason = "max_iterations_reached"
)

// Iteration is one round of refinement
type Iteration struct {
	Index              int
	Thoughts           string
	NeedsMoreReasoning bool
	Confidence         float64
}

type Result struct {
	Iterations []Iteration
	Confidence float64
	StopReason StopReason
}

// Thoughts returns the thoughts of every iteration in order.
func (r Result) Thoughts() []string {
	out := make([]string, len(r.Iterations))
	for i, it := range r.Iterations {
		out[i] = it.Thoughts
	}
	return out
}

type Input struct {
	Question         string
	Plan             agent.Plan
	Memories         []agent.RetrievedMemory
	ResolvedEntities []agent.ResolvedEntity
}

type iterationOutput struct {
	Thoughts           string   `json:"thoughts" validate:"required"`
	NeedsMoreReasoning *bool    `json:"needsMoreReasoning" validate:"required"`
	Confidence         *float64 `json:"confidence" validate:"required,min=0,max=1"`
}

// Loop runs between one and maxIterations rounds of reasoning.
type Loop struct {
	llmProvider         llm.LLMProvider
	maxIterations       int
	confidenceThreshold float64
	logger              logger.ILogger
}

func NewLoop(llmProvider llm.LLMProvider, maxIterations int, confidenceThreshold float64, log logger.ILogger) *Loop {
	if maxIterations < 1 || maxIterations > MaxIterations {
		maxIterations = MaxIterations
	}
	if confidenceThreshold <= 0 || confidenceThreshold > 1 {
		confidenceThreshold = DefaultConfidenceThreshold
	}
	return &Loop{
		llmProvider:         llmProvider,
		maxIterations:       maxIterations,
		confidenceThreshold: confidenceThreshold,
		logger:              log,
	}
}

// ShouldStop applies the stop rule. The first iteration stops only when no more
// reasoning is needed; later ones also stop on high confidence.
func ShouldStop(it Iteration, maxIterations int, threshold float64) (StopReason, bool) {
	if !it.NeedsMoreReasoning {
		return StopSatisfied, true
	}
	if it.Index >= 2 && it.Confidence >= threshold {
		return StopConfident, true
	}
	if it.Index >= maxIterations {
		return StopMaxIterations, true
	}
	return "", false
}

// Run executes the loop. onIteration, when set, sees each iteration as it completes.
func (l *Loop) Run(ctx context.Context, in Input, onIteration func(Iteration)) (Result, error) {
	var result Result

	for index := 1; index <= l.maxIterations; index++ {
		var out iterationOutput
		prompt := buildPrompt(in, result.Iterations, index, l.maxIterations)
		if err := llm.GenerateStructured(ctx, l.llmProvider, prompt, &out); err != nil {
			l.logger.Error("REASONING", "Reasoning iteration failed", map[string]interface{}{"iteration": index, "error": err.Error()})
			return Result{}, agent.NewOracleError(agent.TaskReasoning, err)
		}

		it := Iteration{
			Index:              index,
			Thoughts:           strings.TrimSpace(out.Thoughts),
			NeedsMoreReasoning: *out.NeedsMoreReasoning,
			Confidence:         *out.Confidence,
		}
		result.Iterations = append(result.Iterations, it)
		result.Confidence = it.Confidence
		if onIteration != nil {
			onIteration(it)
		}

		if reason, stop := ShouldStop(it, l.maxIterations, l.confidenceThreshold); stop {
			result.StopReason = reason
			break
		}
	}

	l.logger.Info("REASONING", "Reasoning finished", map[string]interface{}{
		"iterations":  len(result.Iterations),
		"confidence":  result.Confidence,
		"stop_reason": result.StopReason,
	})
	return result, nil
}

func buildPrompt(in Input, previous []Iteration, index, maxIterations int) string {
	var b strings.Builder
	b.WriteString(agent.TaskHeader(agent.TaskReasoning))
	fmt.Fprintf(&b, "Reasoning iteration %d of at most %d. Think about how to answer the question.\n", index, maxIterations)
	b.WriteString("Report your confidence in [0,1] and whether another round of reasoning would help.\n\n")
	agent.WriteQuestion(&b, in.Question)
	b.WriteString(agent.ResolvedContext(in.ResolvedEntities))

	fmt.Fprintf(&b, "<plan objective=%q>\n", in.Plan.Objective)
	for _, s := range in.Plan.Steps {
		fmt.Fprintf(&b, "%d. %s\n", s.Index, s.Action)
	}
	b.WriteString("</plan>\n")

	if len(in.Memories) > 0 {
		b.WriteString("<memories>\n")
		for _, m := range in.Memories {
			agent.WriteMemory(&b, "memory", "", m, 500)
		}
		b.WriteString("</memories>\n")
	}

	if len(previous) > 0 {
		b.WriteString("<previous_thoughts>\n")
		for _, p := range previous {
			fmt.Fprintf(&b, "[%d] (confidence %.2f) %s\n", p.Index, p.Confidence, p.Thoughts)
		}
		b.WriteString("</previous_thoughts>\n")
	}

	b.WriteString("\nRespond with JSON only:\n")
	b.WriteString(`{"thoughts": "...", "needsMoreReasoning": false, "confidence": 0.0}`)
	b.WriteString("\n")
	return b.String()
}
