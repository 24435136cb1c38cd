package validator

import (
	"fmt"
	"strings"

	"ai-memory-agent-be/pkg/agent"

	"github.com/google/uuid"
)

// LowConfidence is the resolution confidence below which a warning is raised.
const LowConfidence = 0.3

// Result of validating one memory decision. Warnings never invalidate it.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Err returns a *agent.ValidationError when the result is invalid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &agent.ValidationError{Errors: r.Errors, Warnings: r.Warnings}
}

var acknowledgements = []string{"similar", "previous", "prior", "before", "earlier", "already", "existing", "asked", "same"}

// Validate checks an existence check and a dependency decision for consistency.
// It has no side effects.
func Validate(existence agent.ExistenceCheck, dependency agent.DependencyDecision) Result {
	var r Result

	if strings.TrimSpace(existence.SearchQuery) == "" {
		r.Errors = append(r.Errors, "existence check has an empty search query")
	}
	if strings.TrimSpace(existence.Explanation) == "" {
		r.Errors = append(r.Errors, "existence check has an empty explanation")
	}
	if existence.SimilarQuestionExists {
		m := existence.Match
		if m == nil || m.RunID == uuid.Nil || strings.TrimSpace(m.Question) == "" || strings.TrimSpace(m.Answer) == "" {
			r.Errors = append(r.Errors, "similar question reported but the matched run reference is incomplete")
		}
	}
	if s := existence.SimilarityScore; s != nil && outOfUnit(*s) {
		r.Errors = append(r.Errors, fmt.Sprintf("similarity score %.3f outside [0,1]", *s))
	}

	if strings.TrimSpace(dependency.Reason) == "" {
		r.Errors = append(r.Errors, "dependency decision has an empty reason")
	}

	if pr := dependency.PronounResolution; pr != nil {
		if pr.HasPronouns && !pr.ResolutionAttempted {
			r.Errors = append(r.Errors, "pronouns present but resolution was not attempted")
		}
		if pr.ResolutionAttempted && strings.TrimSpace(pr.Explanation) == "" {
			r.Errors = append(r.Errors, "resolution attempted without an explanation")
		}
		if pr.Resolved && len(pr.ResolvedEntities) == 0 {
			r.Errors = append(r.Errors, "resolution reported as resolved but no entities were given")
		}
		if pr.Ambiguous && len(pr.AmbiguousReferences) == 0 {
			r.Errors = append(r.Errors, "resolution reported as ambiguous but no candidates were given")
		}
		for _, e := range pr.ResolvedEntities {
			if outOfUnit(e.Confidence) {
				r.Errors = append(r.Errors, fmt.Sprintf("confidence %.3f for %q outside [0,1]", e.Confidence, e.Pronoun))
				continue
			}
			if e.Confidence < LowConfidence {
				r.Warnings = append(r.Warnings, fmt.Sprintf("low-confidence resolution of %q to %q (%.2f)", e.Pronoun, e.ResolvedTo, e.Confidence))
			}
		}
		if pr.Resolved && len(pr.ResolvedEntities) > 0 && !dependency.RequiresMemory {
			r.Warnings = append(r.Warnings, "pronouns were resolved from history but memory is not required")
		}
	}

	if existence.SimilarQuestionExists && !acknowledges(dependency.Reason) {
		r.Warnings = append(r.Warnings, "a similar question exists but the dependency reason does not mention it")
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func acknowledges(reason string) bool {
	lower := strings.ToLower(reason)
	for _, w := range acknowledgements {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func outOfUnit(v float64) bool {
	return v < 0 || v > 1 || v != v
}
