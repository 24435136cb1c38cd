package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusPlanning  RunStatus = "planning"
	StatusExecuting RunStatus = "executing"
	StatusCompleted RunStatus = "completed"
	StatusError     RunStatus = "error"
)

func (s RunStatus) order() int {
	switch s {
	case StatusPending:
		return 0
	case StatusPlanning:
		return 1
	case StatusExecuting:
		return 2
	case StatusCompleted, StatusError:
		return 3
	default:
		return -1
	}
}

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.IsTerminal() || next.order() < 0 {
		return false
	}
	return next.order() > s.order()
}

// RunState is the aggregate for one execution. It is a value: every With* method
// returns a new state and never mutates the receiver's slices.
type RunState struct {
	ID                uuid.UUID         `json:"id"`
	UserID            uuid.UUID         `json:"userId"`
	Question          string            `json:"question"`
	SubmittedAt       time.Time         `json:"submittedAt"`
	Plan              *Plan             `json:"plan,omitempty"`
	MemoryDecision    *MemoryDecision   `json:"memoryDecision,omitempty"`
	RetrievedMemories []RetrievedMemory `json:"retrievedMemories"`
	ReasoningSteps    []ReasoningStep   `json:"reasoningSteps"`
	Answer            string            `json:"answer,omitempty"`
	Status            RunStatus         `json:"status"`
	Error             string            `json:"error,omitempty"`

	ReusedFromRunID *uuid.UUID `json:"reusedFromRunId,omitempty"`
	Iterations      int        `json:"iterations"`
	Confidence      *float64   `json:"confidence,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`

	// Clarification marks a run whose answer asks the user which referent they
	// meant. It is history for the user but never memory for the agent.
	Clarification bool `json:"clarification,omitempty"`
}

// NewRunState creates the pending state for a question.
func NewRunState(q Question) RunState {
	return RunState{
		ID:                uuid.New(),
		UserID:            q.UserID,
		Question:          q.Text,
		SubmittedAt:       q.SubmittedAt,
		RetrievedMemories: []RetrievedMemory{},
		ReasoningSteps:    []ReasoningStep{},
		Status:            StatusPending,
	}
}

// ResolvedQuestion returns the pronoun-substituted question, if any.
func (s RunState) ResolvedQuestion() string {
	if s.MemoryDecision == nil {
		return ""
	}
	return s.MemoryDecision.ResolvedQuestion
}

// Transition moves the run to next, rejecting any non-monotonic move.
func (s RunState) Transition(next RunStatus) (RunState, error) {
	if !s.Status.CanTransitionTo(next) {
		return s, fmt.Errorf("invalid run transition %s -> %s", s.Status, next)
	}
	s.Status = next
	return s, nil
}

func (s RunState) WithPlan(p Plan) RunState {
	s.Plan = &p
	return s
}

func (s RunState) WithMemoryDecision(d MemoryDecision) RunState {
	s.MemoryDecision = &d
	return s
}

func (s RunState) WithRetrievedMemories(memories []RetrievedMemory) RunState {
	s.RetrievedMemories = append([]RetrievedMemory(nil), memories...)
	return s
}

func (s RunState) AsClarification() RunState {
	s.Clarification = true
	return s
}

// Searchable reports whether the run may be embedded and found by later questions.
func (s RunState) Searchable() bool {
	return s.Status == StatusCompleted && !s.Clarification
}

func (s RunState) WithReasoningResult(iterations int, confidence float64) RunState {
	s.Iterations = iterations
	s.Confidence = &confidence
	return s
}

// AppendStep appends a reasoning step with the next index and returns it alongside the new state.
func (s RunState) AppendStep(stepType StepType, description string, analytics *SearchAnalytics, at time.Time) (RunState, ReasoningStep) {
	step := ReasoningStep{
		Index:           len(s.ReasoningSteps) + 1,
		Type:            stepType,
		Description:     description,
		Timestamp:       at,
		SearchAnalytics: analytics,
	}
	steps := make([]ReasoningStep, len(s.ReasoningSteps), len(s.ReasoningSteps)+1)
	copy(steps, s.ReasoningSteps)
	s.ReasoningSteps = append(steps, step)
	return s, step
}

// Complete sets the final answer and moves the run to completed.
func (s RunState) Complete(answer string, reusedFrom *uuid.UUID, at time.Time) (RunState, error) {
	next, err := s.Transition(StatusCompleted)
	if err != nil {
		return s, err
	}
	next.Answer = answer
	next.ReusedFromRunID = reusedFrom
	next.CompletedAt = &at
	return next, nil
}

// Fail moves the run to error. The answer stays unset.
func (s RunState) Fail(cause error, at time.Time) RunState {
	next, err := s.Transition(StatusError)
	if err != nil {
		return s
	}
	next.Answer = ""
	if cause != nil {
		next.Error = cause.Error()
	}
	next.CompletedAt = &at
	return next
}
