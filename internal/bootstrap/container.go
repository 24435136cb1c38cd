package bootstrap

import (
	"context"
	"log"

	"ai-memory-agent-be/internal/config"
	"ai-memory-agent-be/internal/controller"
	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/internal/repository/memory"
	"ai-memory-agent-be/internal/repository/unitofwork"
	"ai-memory-agent-be/internal/service"
	"ai-memory-agent-be/internal/websocket"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/embedding"
	"ai-memory-agent-be/pkg/llm/factory"
	pktNats "ai-memory-agent-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	AgentController controller.IAgentController

	// Background Services (exposed for main.go to run)
	ConsumerService service.IConsumerService
	EventListener   *service.AgentEventListener

	WebSocketHub *websocket.Hub

	closers []func()
}

// Close releases bus connections.
func (c *Container) Close() {
	for _, fn := range c.closers {
		fn()
	}
}

// NewContainer builds the application graph. db may be nil when STORE_DRIVER=memory.
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	pipelineLogger := logger.NewIsolatedLogger(cfg.App.PipelineLogPath)

	// 1. Storage
	var uowFactory unitofwork.RepositoryFactory
	switch cfg.Database.Driver {
	case "memory":
		uowFactory = memory.NewRepositoryFactory()
		log.Printf("[INFO] Using in-memory run store (runs are lost on restart)")
	case "postgres":
		if db == nil {
			return nil, &agent.ConfigurationError{Capability: "store", Reason: "postgres driver selected without a database connection"}
		}
		uowFactory = unitofwork.NewRepositoryFactory(db)
	default:
		return nil, &agent.ConfigurationError{Capability: "store", Reason: "unknown STORE_DRIVER " + cfg.Database.Driver}
	}
	historyStore := uowFactory.NewUnitOfWork(context.Background()).AgentRunRepository()

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermillLogger,
	)

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v (embedding cache L2 and socket fanout disabled)", err)
		rdb.Close()
		rdb = nil
	}

	// 3. Oracles
	if cfg.Ai.EmbeddingProvider != "ollama" {
		return nil, &agent.ConfigurationError{Capability: "embedding", Reason: "unsupported provider " + cfg.Ai.EmbeddingProvider}
	}
	embeddingProvider := embedding.NewCachedProvider(
		embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel),
		rdb,
		cfg.Ai.EmbeddingCacheTTL,
		sysLogger,
	)
	log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
	)
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. NATS
	c := &Container{}

	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		c.closers = append(c.closers, natsPub.Close)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		c.closers = append(c.closers, natsSub.Close)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	wsHub := websocket.NewHub(rdb, wsLogger)

	// 5. Services
	orch := NewOrchestrator(cfg.Agent, llmProvider, embeddingProvider, historyStore, pipelineLogger)

	publisherService := service.NewPublisherService(cfg.Keys.EmbedRunTopic, pubSub)
	c.ConsumerService = service.NewConsumerService(
		pubSub,
		cfg.Keys.EmbedRunTopic,
		uowFactory,
		embeddingProvider,
		sysLogger,
	)

	// nil natsPub makes event publishing a no-op
	eventPublisher := service.NewNatsAgentEventPublisher(natsPub, sysLogger)

	agentService := service.NewAgentService(
		uowFactory,
		orch,
		publisherService,
		eventPublisher,
		cfg.Agent.RunTimeout,
		sysLogger,
	)

	if natsSub != nil {
		c.EventListener = service.NewAgentEventListener(natsSub, wsHub, wsLogger)
	}

	// 6. Controllers
	c.AgentController = controller.NewAgentController(agentService, wsHub, sysLogger)
	c.WebSocketHub = wsHub
	c.closers = append(c.closers, func() { pubSub.Close() })
	return c, nil
}
