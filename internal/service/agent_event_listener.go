package service

import (
	"context"
	"fmt"
	"strings"

	"ai-memory-agent-be/internal/pkg/logger"
	internalWS "ai-memory-agent-be/internal/websocket"
	"ai-memory-agent-be/pkg/events"
	pktNats "ai-memory-agent-be/pkg/nats"

	"github.com/google/uuid"
)

// RunDelivery pushes run updates to a user's live sessions.
// Typically implemented by the WebSocket Hub.
type RunDelivery interface {
	Send(userID uuid.UUID, msg internalWS.Message)
}

// AgentEventListener mirrors run lifecycle events onto the user's open sockets,
// so every device sees history change no matter which instance ran the question.
type AgentEventListener struct {
	subscriber *pktNats.Subscriber
	delivery   RunDelivery
	logger     logger.ILogger
}

func NewAgentEventListener(sub *pktNats.Subscriber, delivery RunDelivery, log logger.ILogger) *AgentEventListener {
	return &AgentEventListener{
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

func (l *AgentEventListener) Start(ctx context.Context) {
	err := l.subscriber.Subscribe(ctx, "events.>", "agent-run-listener", l.HandleEvent)
	if err != nil {
		l.logger.Error("AgentEventListener", "Failed to start run event subscriber", map[string]interface{}{"error": err.Error()})
		return
	}
	l.logger.Info("AgentEventListener", "Listening to agent run events", nil)
}

func (l *AgentEventListener) HandleEvent(ctx context.Context, event events.Event) error {
	if !strings.HasPrefix(event.EventType(), "AGENT_") {
		return nil
	}

	payload := event.Payload()
	userIdStr, _ := payload["user_id"].(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		// nothing to deliver, redelivery will not fix it
		l.logger.Warn("AgentEventListener", fmt.Sprintf("Event %s without user_id", event.EventType()), nil)
		return nil
	}

	runId, _ := payload["run_id"].(string)
	l.delivery.Send(userId, internalWS.Message{
		Type:  strings.ToLower(event.EventType()),
		RunId: runId,
		Data:  payload,
	})
	return nil
}
