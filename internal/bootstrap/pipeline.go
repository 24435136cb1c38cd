package bootstrap

import (
	"ai-memory-agent-be/internal/config"
	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/agent/answer"
	"ai-memory-agent-be/pkg/agent/dependency"
	"ai-memory-agent-be/pkg/agent/existence"
	"ai-memory-agent-be/pkg/agent/orchestrator"
	"ai-memory-agent-be/pkg/agent/planner"
	"ai-memory-agent-be/pkg/agent/reasoning"
	"ai-memory-agent-be/pkg/agent/retriever"
	"ai-memory-agent-be/pkg/embedding"
	"ai-memory-agent-be/pkg/llm"
)

// NewOrchestrator wires every pipeline stage over the given oracles and history store.
func NewOrchestrator(
	cfg config.AgentConfig,
	llmProvider llm.LLMProvider,
	embedder embedding.EmbeddingProvider,
	store agent.HistoryStore,
	log logger.ILogger,
) *orchestrator.Orchestrator {
	existenceCfg := existence.DefaultConfig()
	existenceCfg.VectorThreshold = cfg.VectorThreshold
	existenceCfg.ParallelTiers = cfg.ParallelTextTiers

	retrieverCfg := retriever.DefaultConfig()
	retrieverCfg.VectorThreshold = cfg.RetrievalThreshold

	return orchestrator.New(orchestrator.Components{
		Planner:    planner.NewPlanner(llmProvider, log),
		Existence:  existence.NewChecker(llmProvider, embedder, store, existenceCfg, log),
		Dependency: dependency.NewDecider(llmProvider, store, cfg.HistoryWindow, log),
		Retriever:  retriever.NewRetriever(store, embedder, retrieverCfg, log),
		Reasoner:   reasoning.NewLoop(llmProvider, cfg.MaxIterations, cfg.ConfidenceThreshold, log),
		Generator:  answer.NewGenerator(llmProvider, log),
	}, orchestrator.Config{
		ReuseChunkSize:  cfg.ReuseChunkSize,
		ReuseChunkDelay: cfg.ReuseChunkDelay,
	}, log)
}
