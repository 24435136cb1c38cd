package service

import (
	"context"
	"encoding/json"
	"errors"

	"ai-memory-agent-be/internal/dto"
	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/internal/repository/unitofwork"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/embedding"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService embeds persisted run questions so they become visible to vector search.
type consumerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	logger            logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:            pubSub,
		topicName:         topicName,
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		logger:            log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishEmbedRunMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("CONSUMER", "Failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // invalid messages are never retried
		return
	}

	details := map[string]interface{}{"run_id": payload.RunId.String()}
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	run, err := uow.AgentRunRepository().FindByID(ctx, payload.RunId, payload.UserId)
	if err != nil {
		details["error"] = err.Error()
		cs.logger.Error("CONSUMER", "Failed to load run", details)
		msg.Nack()
		return
	}
	if run == nil {
		// deleted before we got to it
		cs.logger.Warn("CONSUMER", "Run not found, skipping embedding", details)
		msg.Ack()
		return
	}

	if run.Status != agent.StatusCompleted || run.Clarification {
		cs.logger.Warn("CONSUMER", "Run is not searchable, skipping embedding", details)
		msg.Ack()
		return
	}

	res, err := cs.embeddingProvider.Generate(ctx, run.EmbeddingText())
	if err != nil {
		details["error"] = err.Error()
		cs.logger.Error("CONSUMER", "Failed to generate embedding", details)
		msg.Nack()
		return
	}

	err = uow.AgentRunRepository().UpdateEmbedding(ctx, run.Id, res.Embedding.Values, res.Model)
	var notFound *agent.NotFoundError
	if errors.As(err, &notFound) {
		msg.Ack()
		return
	}
	if err != nil {
		details["error"] = err.Error()
		cs.logger.Error("CONSUMER", "Failed to store embedding", details)
		msg.Nack()
		return
	}

	details["model"] = res.Model
	details["tokens"] = res.TokenCount
	cs.logger.Info("CONSUMER", "Run question embedded", details)
	msg.Ack()
}
