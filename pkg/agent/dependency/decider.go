package dependency

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ai-memory-agent-be/internal/pkg/logger"
	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/llm"

	"github.com/google/uuid"
)

const DefaultHistoryWindow = 10

type entityOutput struct {
	Pronoun    string   `json:"pronoun" validate:"required"`
	ResolvedTo string   `json:"resolvedTo" validate:"required"`
	Confidence *float64 `json:"confidence" validate:"required"`
	SourceRank *int     `json:"sourceRank" validate:"required,min=0"`
}

type resolutionOutput struct {
	HasPronouns         *bool          `json:"hasPronouns" validate:"required"`
	PronounsFound       []string       `json:"pronounsFound"`
	ResolutionAttempted *bool          `json:"resolutionAttempted" validate:"required"`
	Resolved            *bool          `json:"resolved" validate:"required"`
	ResolvedEntities    []entityOutput `json:"resolvedEntities" validate:"dive"`
	Explanation         string         `json:"explanation"`
}

type decisionOutput struct {
	RequiresMemory    *bool             `json:"requiresMemory" validate:"required"`
	Reason            string            `json:"reason"`
	ContextNeeded     []string          `json:"contextNeeded"`
	PronounResolution *resolutionOutput `json:"pronounResolution" validate:"required"`
}

// Decider decides whether prior context is required and resolves references
// against the user's recency-ranked history.
type Decider struct {
	llmProvider   llm.LLMProvider
	store         agent.HistoryStore
	detector      *Detector
	historyWindow int
	logger        logger.ILogger
}

func NewDecider(llmProvider llm.LLMProvider, store agent.HistoryStore, historyWindow int, log logger.ILogger) *Decider {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Decider{
		llmProvider:   llmProvider,
		store:         store,
		detector:      NewDetector(),
		historyWindow: historyWindow,
		logger:        log,
	}
}

func (d *Decider) Decide(
	ctx context.Context,
	userID uuid.UUID,
	question string,
	existence agent.ExistenceCheck,
	plan agent.Plan,
) (agent.DependencyDecision, error) {
	recent, err := d.store.ListRecentForUser(ctx, userID, d.historyWindow)
	if err != nil {
		return agent.DependencyDecision{}, fmt.Errorf("load recent history: %w", err)
	}
	history := agent.RankHistory(recent)
	detected := d.detector.Detect(question)

	var out decisionOutput
	prompt := buildPrompt(question, existence, plan, history, detected)
	if err := llm.GenerateStructured(ctx, d.llmProvider, prompt, &out); err != nil {
		d.logger.Error("DEPENDENCY", "Dependency decision failed", map[string]interface{}{"error": err.Error()})
		return agent.DependencyDecision{}, agent.NewOracleError(agent.TaskDependency, err)
	}

	resolution := d.toResolution(out.PronounResolution, detected, len(history))
	decision := agent.DependencyDecision{
		RequiresMemory:    *out.RequiresMemory,
		Reason:            strings.TrimSpace(out.Reason),
		ContextNeeded:     out.ContextNeeded,
		PronounResolution: &resolution,
	}

	d.logger.Info("DEPENDENCY", "Dependency decided", map[string]interface{}{
		"user_id":         userID.String(),
		"requires_memory": decision.RequiresMemory,
		"has_pronouns":    resolution.HasPronouns,
		"resolved":        resolution.Resolved,
		"ambiguous":       resolution.Ambiguous,
		"detected":        detected,
		"history_size":    len(history),
	})
	return decision, nil
}

// toResolution merges the local detector's findings into the oracle's answer and
// applies the recency rule: for each pronoun the referent with the lowest rank wins.
// Distinct referents sharing that lowest rank make the pronoun ambiguous.
func (d *Decider) toResolution(out *resolutionOutput, detected []string, historySize int) agent.PronounResolution {
	res := agent.PronounResolution{
		HasPronouns:         *out.HasPronouns,
		PronounsFound:       mergeLower(out.PronounsFound, detected),
		ResolutionAttempted: *out.ResolutionAttempted,
		Resolved:            *out.Resolved,
		ResolvedEntities:    []agent.ResolvedEntity{},
		Explanation:         strings.TrimSpace(out.Explanation),
	}

	if len(detected) > 0 && !res.HasPronouns {
		d.logger.Warn("DEPENDENCY", "Oracle missed references found locally", map[string]interface{}{"detected": detected})
		res.HasPronouns = true
	}

	byPronoun := make(map[string][]agent.ResolvedEntity)
	var order []string
	for _, e := range out.ResolvedEntities {
		rank := *e.SourceRank
		if rank >= historySize {
			d.logger.Warn("DEPENDENCY", "Dropping entity from unknown history rank", map[string]interface{}{
				"pronoun": e.Pronoun, "rank": rank, "history_size": historySize,
			})
			continue
		}
		key := strings.ToLower(strings.TrimSpace(e.Pronoun))
		if _, ok := byPronoun[key]; !ok {
			order = append(order, key)
		}
		byPronoun[key] = append(byPronoun[key], agent.ResolvedEntity{
			Pronoun:    key,
			ResolvedTo: strings.TrimSpace(e.ResolvedTo),
			Confidence: *e.Confidence,
			SourceRank: rank,
		})
	}

	for _, pronoun := range order {
		winner, rivals := pickMostRecent(byPronoun[pronoun])
		if len(rivals) > 1 {
			res.Ambiguous = true
			res.AmbiguousReferences = append(res.AmbiguousReferences, agent.AmbiguousReference{
				Pronoun:    pronoun,
				Candidates: rivals,
				SourceRank: winner.SourceRank,
			})
			continue
		}
		res.ResolvedEntities = append(res.ResolvedEntities, winner)
	}

	if res.Ambiguous {
		res.Resolved = false
	}
	return res
}

// pickMostRecent returns the lowest-rank entity and the distinct referents at that rank.
func pickMostRecent(entities []agent.ResolvedEntity) (agent.ResolvedEntity, []string) {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].SourceRank != entities[j].SourceRank {
			return entities[i].SourceRank < entities[j].SourceRank
		}
		return entities[i].Confidence > entities[j].Confidence
	})

	winner := entities[0]
	var rivals []string
	seen := make(map[string]struct{})
	for _, e := range entities {
		if e.SourceRank != winner.SourceRank {
			break
		}
		k := strings.ToLower(e.ResolvedTo)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rivals = append(rivals, e.ResolvedTo)
	}
	return winner, rivals
}

func mergeLower(a, b []string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			k := strings.ToLower(strings.TrimSpace(s))
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func buildPrompt(
	question string,
	existence agent.ExistenceCheck,
	plan agent.Plan,
	history []agent.RankedMemory,
	detected []string,
) string {
	var b strings.Builder
	b.WriteString(agent.TaskHeader(agent.TaskDependency))
	b.WriteString("Decide whether answering the current question REQUIRES the user's earlier questions and answers.\n")
	b.WriteString("This is independent of whether a similar question was asked before.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. If the question contains any pronoun or implicit reference (he, it, they, that, \"the company\"...),\n")
	b.WriteString("   resolution is MANDATORY: set resolutionAttempted to true and resolve each one from the history.\n")
	b.WriteString("2. History items carry an explicit rank. Rank 0 is the most recent. When several referents are\n")
	b.WriteString("   plausible ALWAYS prefer the one from rank 0. Report unresolved only if rank 0 has no plausible referent.\n")
	b.WriteString("3. For every resolved entity give the rank it came from as sourceRank and a confidence in [0,1].\n")
	b.WriteString("4. If two different referents in the SAME rank fit equally, list both for that pronoun.\n\n")

	agent.WriteQuestion(&b, question)
	fmt.Fprintf(&b, "<plan_hint requiresMemory=\"%t\">%s</plan_hint>\n", plan.RequiresMemory, plan.Objective)
	if existence.SimilarQuestionExists && existence.Match != nil {
		fmt.Fprintf(&b, "<similar_question_found>%s</similar_question_found>\n", existence.Match.Question)
	}
	if len(detected) > 0 {
		fmt.Fprintf(&b, "<detected_references>%s</detected_references>\n", strings.Join(detected, ", "))
	}

	b.WriteString("\n<history>\n")
	if len(history) == 0 {
		b.WriteString("(no earlier questions)\n")
	}
	for _, h := range history {
		agent.WriteMemory(&b, "item", fmt.Sprintf(" rank=\"%d\"", h.Rank), h.RetrievedMemory, 300)
	}
	b.WriteString("</history>\n\n")

	b.WriteString("Respond with JSON only:\n")
	b.WriteString(`{"requiresMemory": false, "reason": "...", "contextNeeded": [], "pronounResolution": {`)
	b.WriteString(`"hasPronouns": false, "pronounsFound": [], "resolutionAttempted": false, "resolved": false, `)
	b.WriteString(`"resolvedEntities": [{"pronoun": "...", "resolvedTo": "...", "confidence": 0.9, "sourceRank": 0}], "explanation": "..."}}`)
	b.WriteString("\n")
	return b.String()
}
