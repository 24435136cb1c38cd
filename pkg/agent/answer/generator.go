package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/llm"
)

var errEmptyAnswer = errors.New("model produced an empty answer")

type Input struct {
	Question         string
	Plan             agent.Plan
	Memories         []agent.RetrievedMemory
	Thoughts         []string
	ResolvedEntities []agent.ResolvedEntity
}

// Generator streams the final answer.
type Generator struct {
	llmProvider llm.LLMProvider
	logger      logger.ILogger
}

func NewGenerator(llmProvider llm.LLMProvider, log logger.ILogger) *Generator {
	return &Generator{
		llmProvider: llmProvider,
		logger:      log,
	}
}

// Generate streams the answer through onChunk and returns the concatenation of all chunks.
func (g *Generator) Generate(ctx context.Context, in Input, onChunk func(string)) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(in)},
	}

	tokens, err := g.llmProvider.Stream(ctx, messages, llm.WithTemperature(0.3))
	if err != nil {
		return "", agent.NewOracleError(agent.TaskAnswer, err)
	}

	var full strings.Builder
	for tok := range tokens {
		if tok.Err != nil {
			g.logger.Error("ANSWER", "Answer stream failed", map[string]interface{}{"error": tok.Err.Error()})
			return "", agent.NewOracleError(agent.TaskAnswer, tok.Err)
		}
		if tok.Content != "" {
			full.WriteString(tok.Content)
			if onChunk != nil {
				onChunk(tok.Content)
			}
		}
		if tok.Done {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return "", agent.NewOracleError(agent.TaskAnswer, err)
	}

	answer := full.String()
	if strings.TrimSpace(answer) == "" {
		return "", agent.NewOracleError(agent.TaskAnswer, errEmptyAnswer)
	}

	g.logger.Debug("ANSWER", "Answer generated", map[string]interface{}{"length": len(answer)})
	return answer, nil
}

const systemPrompt = "You are a helpful assistant with memory of the user's earlier questions. " +
	"Answer clearly and directly. Use earlier answers only when they are relevant."

func buildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString(agent.TaskHeader(agent.TaskAnswer))
	agent.WriteQuestion(&b, in.Question)
	b.WriteString(agent.ResolvedContext(in.ResolvedEntities))

	if in.Plan.Objective != "" {
		fmt.Fprintf(&b, "<objective>%s</objective>\n", in.Plan.Objective)
	}
	if len(in.Memories) > 0 {
		b.WriteString("<memories>\n")
		for _, m := range in.Memories {
			agent.WriteMemory(&b, "memory", "", m, 800)
		}
		b.WriteString("</memories>\n")
	}
	if len(in.Thoughts) > 0 {
		b.WriteString("<reasoning>\n")
		for i, t := range in.Thoughts {
			fmt.Fprintf(&b, "%d. %s\n", i+1, t)
		}
		b.WriteString("</reasoning>\n")
	}
	b.WriteString("\nWrite the final answer in plain prose.\n")
	return b.String()
}
