package events

const (
	AgentRunCompleted   = "AGENT_RUN_COMPLETED"
	AgentRunFailed      = "AGENT_RUN_FAILED"
	AgentRunReused      = "AGENT_RUN_REUSED"
	AgentHistoryCleared = "AGENT_HISTORY_CLEARED"
)

// Subject returns the bus subject an event type is published on.
func Subject(eventType string) string {
	return "events." + eventType
}
