package service

import (
	"context"
	"time"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	pkgEvents "ai-memory-agent-be/pkg/events"
	pktNats "ai-memory-agent-be/pkg/nats"

	"github.com/google/uuid"
)

// AgentEventPublisher emits run lifecycle events to the bus. Publishing is
// best effort; failures are logged and never fail the run.
type AgentEventPublisher interface {
	PublishRunFinished(ctx context.Context, run agent.RunState)
	PublishHistoryCleared(ctx context.Context, userId uuid.UUID, deleted int64)
}

type NatsAgentEventPublisher struct {
	publisher *pktNats.Publisher
	logger    logger.ILogger
}

func NewNatsAgentEventPublisher(publisher *pktNats.Publisher, log logger.ILogger) *NatsAgentEventPublisher {
	return &NatsAgentEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

func (p *NatsAgentEventPublisher) PublishRunFinished(ctx context.Context, run agent.RunState) {
	if p.publisher == nil {
		return
	}

	eventType := pkgEvents.AgentRunCompleted
	data := map[string]interface{}{
		"run_id":     run.ID.String(),
		"user_id":    run.UserID.String(),
		"question":   run.Question,
		"iterations": run.Iterations,
		"steps":      len(run.ReasoningSteps),
	}
	switch {
	case run.Status == agent.StatusError:
		eventType = pkgEvents.AgentRunFailed
		data["error"] = run.Error
	case run.ReusedFromRunID != nil:
		eventType = pkgEvents.AgentRunReused
		data["reused_from_run_id"] = run.ReusedFromRunID.String()
	}

	p.publish(ctx, pkgEvents.BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()})
}

func (p *NatsAgentEventPublisher) PublishHistoryCleared(ctx context.Context, userId uuid.UUID, deleted int64) {
	if p.publisher == nil {
		return
	}
	p.publish(ctx, pkgEvents.BaseEvent{
		Type: pkgEvents.AgentHistoryCleared,
		Data: map[string]interface{}{
			"user_id": userId.String(),
			"deleted": deleted,
		},
		OccurredAt: time.Now(),
	})
}

func (p *NatsAgentEventPublisher) publish(ctx context.Context, evt pkgEvents.BaseEvent) {
	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.logger.Error("EVENTS", "Failed to publish "+evt.Type+" event", map[string]interface{}{"error": err.Error()})
	}
}
