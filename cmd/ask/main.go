// Command ask runs questions through the agent pipeline from a terminal,
// keeping history in process so follow-up questions work.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"ai-memory-agent-be/internal/bootstrap"
	"ai-memory-agent-be/internal/config"
	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/internal/repository/memory"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/agent/orchestrator"
	"ai-memory-agent-be/pkg/embedding"
	"ai-memory-agent-be/pkg/llm/factory"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

func main() {
	question := flag.String("q", "", "ask a single question and exit")
	verbose := flag.Bool("v", false, "print search analytics for each step")
	flag.Parse()

	cfg := config.Load()
	log := logger.NewIsolatedLogger(cfg.App.PipelineLogPath)

	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.OllamaBaseURL)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
	embedder := embedding.NewCachedProvider(
		embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel),
		nil,
		cfg.Ai.EmbeddingCacheTTL,
		log,
	)

	store := memory.NewAgentRunRepository()
	orch := bootstrap.NewOrchestrator(cfg.Agent, llmProvider, embedder, store, log)
	userID := uuid.New()

	ctx := context.Background()
	if *question != "" {
		if !ask(ctx, orch, store, embedder, userID, *question, *verbose) {
			os.Exit(1)
		}
		return
	}

	color.Cyan("Memory agent (%s). Empty line or Ctrl-D to quit.", cfg.Ai.LLMModel)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.HiBlackString("> "))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return
		}
		ask(ctx, orch, store, embedder, userID, line, *verbose)
	}
}

func ask(
	ctx context.Context,
	orch *orchestrator.Orchestrator,
	store *memory.AgentRunRepository,
	embedder embedding.EmbeddingProvider,
	userID uuid.UUID,
	text string,
	verbose bool,
) bool {
	events := make(chan orchestrator.Event)
	done := make(chan agent.RunState)
	go func() {
		done <- orch.Run(ctx, agent.Question{Text: text, UserID: userID}, events)
	}()

	answering := false
	for e := range events {
		switch e.Kind {
		case orchestrator.EventReasoningStep:
			color.Yellow("  [%d] %s: %s", e.Step.Index, e.Step.Type, e.Step.Description)
			if verbose && e.Step.SearchAnalytics != nil {
				a := e.Step.SearchAnalytics
				color.HiBlack("      method=%s tier=%d candidates=%d query=%q", a.Method, a.Tier, a.CandidateCount, a.Query)
			}
		case orchestrator.EventAnswerChunk:
			if !answering {
				answering = true
				fmt.Println()
			}
			fmt.Print(e.Text)
		case orchestrator.EventComplete:
			fmt.Println()
			color.Green("  complete (run %s)", e.RunID)
		case orchestrator.EventError:
			fmt.Println()
			color.Red("  error: %s", e.Message)
		}
	}

	state := <-done
	if state.Status != agent.StatusCompleted {
		return false
	}

	id, err := store.InsertRun(ctx, state)
	if err != nil {
		color.Red("  failed to store run: %v", err)
		return true
	}
	if !state.Searchable() {
		return true
	}
	text = state.Question
	if rq := state.ResolvedQuestion(); rq != "" {
		text = rq
	}
	res, err := embedder.Generate(ctx, text)
	if err == nil {
		err = store.UpdateEmbedding(ctx, id, res.Embedding.Values, res.Model)
	}
	if err != nil {
		color.HiBlack("  (not embedded: %v)", err)
	}
	return true
}
