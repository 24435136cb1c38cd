package orchestrator

import (
	"encoding/json"

	"ai-memory-agent-be/pkg/agent"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventReasoningStep EventKind = "reasoning_step"
	EventAnswerChunk   EventKind = "answer_chunk"
	EventComplete      EventKind = "complete"
	EventError         EventKind = "error"
)

// Event is one message of the ordered run stream. Exactly one of the payload
// fields is meaningful, selected by Kind.
type Event struct {
	Kind    EventKind
	Step    agent.ReasoningStep
	Text    string
	RunID   uuid.UUID
	Message string
}

type chunkPayload struct {
	Text string `json:"text"`
}

type completePayload struct {
	RunID string `json:"runId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Payload returns the wire body of the event without its discriminator.
func (e Event) Payload() any {
	switch e.Kind {
	case EventReasoningStep:
		return e.Step
	case EventAnswerChunk:
		return chunkPayload{Text: e.Text}
	case EventComplete:
		return completePayload{RunID: e.RunID.String()}
	default:
		return errorPayload{Message: e.Message}
	}
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		Data  any       `json:"data"`
	}{e.Kind, e.Payload()})
}

func stepEvent(step agent.ReasoningStep) Event {
	return Event{Kind: EventReasoningStep, Step: step}
}

func chunkEvent(text string) Event {
	return Event{Kind: EventAnswerChunk, Text: text}
}
