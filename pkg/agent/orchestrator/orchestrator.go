package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/agent/answer"
	"ai-memory-agent-be/pkg/agent/dependency"
	"ai-memory-agent-be/pkg/agent/reasoning"
	"ai-memory-agent-be/pkg/agent/retriever"
	"ai-memory-agent-be/pkg/agent/validator"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ai-memory-agent-be/pkg/agent/orchestrator")

var errEmptyQuestion = errors.New("question text is empty")

type Planner interface {
	Plan(ctx context.Context, question string) (agent.Plan, error)
}

type ExistenceChecker interface {
	Check(ctx context.Context, userID uuid.UUID, question string) (agent.ExistenceCheck, error)
}

type DependencyDecider interface {
	Decide(ctx context.Context, userID uuid.UUID, question string, existence agent.ExistenceCheck, plan agent.Plan) (agent.DependencyDecision, error)
}

type MemoryRetriever interface {
	Retrieve(ctx context.Context, userID uuid.UUID, query string) ([]agent.RetrievedMemory, agent.SearchAnalytics, error)
}

type Reasoner interface {
	Run(ctx context.Context, in reasoning.Input, onIteration func(reasoning.Iteration)) (reasoning.Result, error)
}

type AnswerGenerator interface {
	Generate(ctx context.Context, in answer.Input, onChunk func(string)) (string, error)
}

// Components are the pipeline stages, in execution order.
type Components struct {
	Planner    Planner
	Existence  ExistenceChecker
	Dependency DependencyDecider
	Retriever  MemoryRetriever
	Reasoner   Reasoner
	Generator  AnswerGenerator
}

type Config struct {
	// Stored answers are replayed in chunks of this many runes, ReuseChunkDelay apart.
	ReuseChunkSize  int
	ReuseChunkDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReuseChunkSize:  24,
		ReuseChunkDelay: 15 * time.Millisecond,
	}
}

// Orchestrator sequences the pipeline for one question at a time per call.
// It holds no per-run state; concurrent calls are independent.
type Orchestrator struct {
	components Components
	cfg        Config
	logger     logger.ILogger
	now        func() time.Time
}

func New(components Components, cfg Config, log logger.ILogger) *Orchestrator {
	if cfg.ReuseChunkSize <= 0 {
		cfg.ReuseChunkSize = DefaultConfig().ReuseChunkSize
	}
	return &Orchestrator{
		components: components,
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
	}
}

// Run executes the pipeline for q, writing events to out in order, and returns the
// final run state. out is closed when Run returns; the consumer must keep reading
// until then, even after cancelling ctx. A complete event is sent iff the
// returned state is completed; otherwise exactly one error event ends the stream.
func (o *Orchestrator) Run(ctx context.Context, q agent.Question, out chan<- Event) agent.RunState {
	state, _ := o.Execute(ctx, q, out)
	return state
}

// Execute is Run that also returns the error that failed the run, nil when it completed.
func (o *Orchestrator) Execute(ctx context.Context, q agent.Question, out chan<- Event) (agent.RunState, error) {
	defer close(out)

	if q.SubmittedAt.IsZero() {
		q.SubmittedAt = o.now()
	}

	ctx, span := tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("user_id", q.UserID.String()),
	))
	defer span.End()

	x := &execution{
		o:     o,
		ctx:   ctx,
		out:   out,
		q:     q,
		state: agent.NewRunState(q),
	}
	span.SetAttributes(attribute.String("run_id", x.state.ID.String()))

	err := x.execute()
	if err != nil {
		x.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("status", string(x.state.Status)))

	return x.state, err
}

// Collect runs the pipeline synchronously and returns the state with every emitted event.
func (o *Orchestrator) Collect(ctx context.Context, q agent.Question) (agent.RunState, []Event) {
	ch := make(chan Event)
	done := make(chan []Event)
	go func() {
		var events []Event
		for e := range ch {
			events = append(events, e)
		}
		done <- events
	}()

	state := o.Run(ctx, q, ch)
	return state, <-done
}

// execution is the state of a single Run. It is never shared.
type execution struct {
	o     *Orchestrator
	ctx   context.Context
	out   chan<- Event
	q     agent.Question
	state agent.RunState
}

func (x *execution) execute() error {
	o := x.o
	question := x.q.Text
	userID := x.q.UserID

	if strings.TrimSpace(question) == "" {
		return errEmptyQuestion
	}

	if err := x.transition(agent.StatusPlanning); err != nil {
		return err
	}

	var plan agent.Plan
	err := x.stage("planning", func(ctx context.Context) (err error) {
		plan, err = o.components.Planner.Plan(ctx, question)
		return err
	})
	if err != nil {
		return err
	}
	x.state = x.state.WithPlan(plan)
	x.step(agent.StepPlanning, fmt.Sprintf("Planned %d step(s): %s", len(plan.Steps), plan.Objective), nil)

	if err := x.transition(agent.StatusExecuting); err != nil {
		return err
	}

	var existence agent.ExistenceCheck
	err = x.stage("existence_check", func(ctx context.Context) (err error) {
		existence, err = o.components.Existence.Check(ctx, userID, question)
		return err
	})
	if err != nil {
		return err
	}
	x.step(agent.StepExistenceCheck, describeExistence(existence), existenceAnalytics(existence))

	var decision agent.DependencyDecision
	err = x.stage("dependency_check", func(ctx context.Context) (err error) {
		decision, err = o.components.Dependency.Decide(ctx, userID, question, existence, plan)
		return err
	})
	if err != nil {
		return err
	}
	x.step(agent.StepDependencyCheck, describeDependency(decision), nil)

	result := validator.Validate(existence, decision)
	for _, w := range result.Warnings {
		o.logger.Warn("ORCHESTRATOR", "Decision warning", map[string]interface{}{"run_id": x.state.ID.String(), "warning": w})
	}
	if !result.Valid {
		return result.Err()
	}
	x.step(agent.StepValidation, fmt.Sprintf("Decision validated with %d warning(s)", len(result.Warnings)), nil)

	memory := agent.MemoryDecision{
		Existence:            existence,
		Dependency:           decision,
		ShouldRetrieveMemory: decision.RequiresMemory || existence.SimilarQuestionExists,
	}

	entities := decision.ResolvedEntities()
	if resolved := dependency.ResolveQuestion(question, entities); resolved != question {
		memory.ResolvedQuestion = resolved
		var recheck agent.ExistenceCheck
		err = x.stage("resolved_recheck", func(ctx context.Context) (err error) {
			recheck, err = o.components.Existence.Check(ctx, userID, resolved)
			return err
		})
		if err != nil {
			return err
		}
		memory.ResolvedExistence = &recheck
		x.step(agent.StepResolvedRecheck, fmt.Sprintf("Re-checked resolved question %q: %s", resolved, describeExistence(recheck)), existenceAnalytics(recheck))
	}

	memory.SearchQuery = retriever.Query(memory, question)
	x.state = x.state.WithMemoryDecision(memory)

	if pr := decision.PronounResolution; pr != nil && pr.Ambiguous {
		text := clarificationAnswer(pr.AmbiguousReferences)
		x.step(agent.StepClarification, "Reference is ambiguous, asking for clarification", nil)
		if err := x.replay(text); err != nil {
			return err
		}
		x.state = x.state.AsClarification()
		return x.complete(text, nil)
	}

	if match, why := reuseCandidate(memory); match != nil {
		analytics := existenceAnalytics(memory.Existence)
		if why == reuseResolved {
			analytics = existenceAnalytics(*memory.ResolvedExistence)
		}
		x.step(agent.StepAnswerReuse, fmt.Sprintf("Reusing the stored answer of run %s (%s)", match.RunID, why), analytics)
		if err := x.replay(match.Answer); err != nil {
			return err
		}
		runID := match.RunID
		return x.complete(match.Answer, &runID)
	}

	var memories []agent.RetrievedMemory
	if memory.ShouldRetrieveMemory {
		var analytics agent.SearchAnalytics
		err = x.stage("memory_retrieval", func(ctx context.Context) (err error) {
			memories, analytics, err = o.components.Retriever.Retrieve(ctx, userID, memory.SearchQuery)
			return err
		})
		if err != nil {
			return err
		}
		x.state = x.state.WithRetrievedMemories(memories)
		x.step(agent.StepMemoryRetrieval, fmt.Sprintf("Retrieved %d memories for %q", len(memories), memory.SearchQuery), &analytics)
	}

	var thinking reasoning.Result
	err = x.stage("reasoning", func(ctx context.Context) (err error) {
		thinking, err = o.components.Reasoner.Run(ctx, reasoning.Input{
			Question:         question,
			Plan:             plan,
			Memories:         memories,
			ResolvedEntities: entities,
		}, func(it reasoning.Iteration) {
			x.step(agent.StepReasoning, fmt.Sprintf("Iteration %d (confidence %.2f): %s", it.Index, it.Confidence, it.Thoughts), nil)
		})
		return err
	})
	if err != nil {
		return err
	}
	x.state = x.state.WithReasoningResult(len(thinking.Iterations), thinking.Confidence)

	x.step(agent.StepAnswerGeneration, "Generating the final answer", nil)
	var final string
	err = x.stage("answer_generation", func(ctx context.Context) (err error) {
		final, err = o.components.Generator.Generate(ctx, answer.Input{
			Question:         question,
			Plan:             plan,
			Memories:         memories,
			Thoughts:         thinking.Thoughts(),
			ResolvedEntities: entities,
		}, func(chunk string) {
			x.emit(chunkEvent(chunk))
		})
		return err
	})
	if err != nil {
		return err
	}

	return x.complete(final, nil)
}

func (x *execution) stage(name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(x.ctx, "agent."+name, trace.WithAttributes(
		attribute.String("run_id", x.state.ID.String()),
		attribute.String("stage", name),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	details := map[string]interface{}{
		"run_id":      x.state.ID.String(),
		"stage":       name,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		details["error"] = err.Error()
		x.o.logger.Error("ORCHESTRATOR", "Stage failed", details)
		return err
	}
	x.o.logger.Debug("ORCHESTRATOR", "Stage completed", details)
	return nil
}

func (x *execution) transition(next agent.RunStatus) error {
	state, err := x.state.Transition(next)
	if err != nil {
		return err
	}
	x.state = state
	return nil
}

func (x *execution) step(t agent.StepType, description string, analytics *agent.SearchAnalytics) {
	var s agent.ReasoningStep
	x.state, s = x.state.AppendStep(t, description, analytics, x.o.now())
	x.emit(stepEvent(s))
}

func (x *execution) emit(e Event) bool {
	select {
	case x.out <- e:
		return true
	case <-x.ctx.Done():
		return false
	}
}

// replay streams a stored answer in fixed-size chunks.
func (x *execution) replay(text string) error {
	for i, chunk := range ChunkText(text, x.o.cfg.ReuseChunkSize) {
		if i > 0 && x.o.cfg.ReuseChunkDelay > 0 {
			timer := time.NewTimer(x.o.cfg.ReuseChunkDelay)
			select {
			case <-timer.C:
			case <-x.ctx.Done():
				timer.Stop()
				return x.ctx.Err()
			}
		}
		if !x.emit(chunkEvent(chunk)) {
			return x.ctx.Err()
		}
	}
	return nil
}

func (x *execution) complete(text string, reusedFrom *uuid.UUID) error {
	state, err := x.state.Complete(text, reusedFrom, x.o.now())
	if err != nil {
		return err
	}
	x.state = state
	x.emit(Event{Kind: EventComplete, RunID: state.ID})

	x.o.logger.Info("ORCHESTRATOR", "Run completed", map[string]interface{}{
		"run_id":  state.ID.String(),
		"user_id": state.UserID.String(),
		"reused":  reusedFrom != nil,
		"steps":   len(state.ReasoningSteps),
	})
	return nil
}

func (x *execution) fail(err error) {
	x.state = x.state.Fail(err, x.o.now())
	e := Event{Kind: EventError, Message: err.Error()}

	// not raced against ctx: a cancelled run still owes its consumer the error event,
	// and consumers drain out until it is closed
	x.out <- e

	x.o.logger.Error("ORCHESTRATOR", "Run failed", map[string]interface{}{
		"run_id":  x.state.ID.String(),
		"user_id": x.state.UserID.String(),
		"error":   err.Error(),
	})
}

type reuseReason string

const (
	reuseOriginal reuseReason = "original question match"
	reuseResolved reuseReason = "resolved question match"
)

// reuseCandidate applies the reuse priority: an original-question match that does not
// need memory first, then a resolved-question match.
func reuseCandidate(d agent.MemoryDecision) (*agent.MatchedRun, reuseReason) {
	if d.Existence.SimilarQuestionExists && !d.Dependency.RequiresMemory && d.Existence.ExistingAnswer() != "" {
		return d.Existence.Match, reuseOriginal
	}
	if d.ResolvedExistence != nil && d.ResolvedExistence.ExistingAnswer() != "" {
		return d.ResolvedExistence.Match, reuseResolved
	}
	return nil, ""
}

// ChunkText splits s into pieces of at most size runes whose concatenation is s.
func ChunkText(s string, size int) []string {
	if size <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func clarificationAnswer(refs []agent.AmbiguousReference) string {
	var b strings.Builder
	b.WriteString("Your question could refer to more than one thing I talked about. ")
	for _, r := range refs {
		fmt.Fprintf(&b, "%q could mean %s. ", r.Pronoun, joinOr(r.Candidates))
	}
	b.WriteString("Which one do you mean?")
	return b.String()
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}

func describeExistence(e agent.ExistenceCheck) string {
	if e.SimilarQuestionExists && e.Match != nil {
		return fmt.Sprintf("Similar question found via %s search (tier %d): %q", e.SearchMethod, e.Tier, e.Match.Question)
	}
	return fmt.Sprintf("No similar question found (%d candidate(s) checked)", e.CandidateCount)
}

func describeDependency(d agent.DependencyDecision) string {
	var b strings.Builder
	if d.RequiresMemory {
		b.WriteString("Prior context required: ")
	} else {
		b.WriteString("Question is self-contained: ")
	}
	b.WriteString(d.Reason)
	for _, e := range d.ResolvedEntities() {
		fmt.Fprintf(&b, " [%s -> %s]", e.Pronoun, e.ResolvedTo)
	}
	return b.String()
}

func existenceAnalytics(e agent.ExistenceCheck) *agent.SearchAnalytics {
	a := &agent.SearchAnalytics{
		Method:          e.SearchMethod,
		Tier:            e.Tier,
		Query:           e.SearchQuery,
		CandidateCount:  e.CandidateCount,
		SimilarityScore: e.SimilarityScore,
	}
	if e.Match != nil {
		a.MatchedRunID = e.Match.RunID.String()
	}
	return a
}
