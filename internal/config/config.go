package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Agent    AgentConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	PipelineLogPath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
	Driver     string // "postgres" or "memory"
}

type APIKeys struct {
	JWTSecret     string
	EmbedRunTopic string // watermill topic for async question embedding
}

type AIConfig struct {
	EmbeddingProvider string // "ollama"
	OllamaBaseURL     string
	OllamaModel       string // embedding model
	EmbeddingCacheTTL time.Duration
	LLMProvider       string // "ollama"
	LLMModel          string // e.g. "llama3", "qwen2.5"
}

// AgentConfig tunes the question pipeline
type AgentConfig struct {
	HistoryWindow       int
	VectorThreshold     float64
	RetrievalThreshold  float64
	MaxIterations       int
	ConfidenceThreshold float64
	ReuseChunkSize      int
	ReuseChunkDelay     time.Duration
	ParallelTextTiers   bool
	RunTimeout          time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			PipelineLogPath:    getEnv("PIPELINE_LOG_PATH", "logs/agent_pipeline.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			Driver:     getEnv("STORE_DRIVER", "postgres"),
		},
		Keys: APIKeys{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			EmbedRunTopic: getEnv("EMBED_AGENT_RUN_TOPIC_NAME", "EMBED_AGENT_RUN"),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingCacheTTL: getEnvAsDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
		},
		Agent: AgentConfig{
			HistoryWindow:       getEnvAsInt("AGENT_HISTORY_WINDOW", 10),
			VectorThreshold:     getEnvAsFloat("AGENT_VECTOR_THRESHOLD", 0.75),
			RetrievalThreshold:  getEnvAsFloat("AGENT_RETRIEVAL_THRESHOLD", 0.5),
			MaxIterations:       getEnvAsInt("AGENT_MAX_ITERATIONS", 3),
			ConfidenceThreshold: getEnvAsFloat("AGENT_CONFIDENCE_THRESHOLD", 0.8),
			ReuseChunkSize:      getEnvAsInt("AGENT_REUSE_CHUNK_SIZE", 24),
			ReuseChunkDelay:     time.Duration(getEnvAsInt("AGENT_REUSE_CHUNK_DELAY_MS", 15)) * time.Millisecond,
			ParallelTextTiers:   getEnvAsBool("AGENT_PARALLEL_TEXT_TIERS", false),
			RunTimeout:          getEnvAsDuration("AGENT_RUN_TIMEOUT", 3*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
