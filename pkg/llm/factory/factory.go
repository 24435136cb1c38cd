package factory

import (
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/llm"
	"ai-memory-agent-be/pkg/llm/ollama"
)

func NewLLMProvider(providerType, modelName, baseURL string) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		if modelName == "" {
			return nil, &agent.ConfigurationError{Capability: "llm", Reason: "OLLAMA_MODEL is empty"}
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	default:
		return nil, &agent.ConfigurationError{Capability: "llm", Reason: "unsupported provider " + providerType}
	}
}
