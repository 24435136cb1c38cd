package agenttest

import (
	"encoding/json"
	"strings"
)

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// EchoSearchPhrase answers the search-phrase task with the question itself.
func EchoSearchPhrase(prompt string) (string, error) {
	return mustJSON(map[string]any{"searchQuery": QuestionOf(prompt)}), nil
}

// JudgeExactQuestion treats a candidate as similar when its question or resolved
// question equals the asked question, ignoring case and surrounding space.
func JudgeExactQuestion(prompt string) (string, error) {
	q := strings.TrimSpace(QuestionOf(prompt))
	ids := []string{}
	for _, c := range CandidatesOf(prompt) {
		if strings.EqualFold(strings.TrimSpace(c.Question), q) || strings.EqualFold(strings.TrimSpace(c.Resolved), q) {
			ids = append(ids, c.ID)
		}
	}
	explanation := "no candidate asks the same thing"
	if len(ids) > 0 {
		explanation = "the same question was asked before"
	}
	return mustJSON(map[string]any{
		"similarQuestionExists": len(ids) > 0,
		"matchingRunIds":        ids,
		"explanation":           explanation,
	}), nil
}

// Plan returns a one-step plan response.
func Plan(objective string, requiresMemory bool) string {
	return mustJSON(map[string]any{
		"objective":      objective,
		"steps":          []map[string]any{{"action": "answer the question", "reasoning": "direct"}},
		"requiresMemory": requiresMemory,
	})
}

// Entity is a resolved entity in a dependency response.
type Entity struct {
	Pronoun    string
	ResolvedTo string
	Confidence float64
	SourceRank int
}

// SelfContained is a dependency response for a question without references.
func SelfContained(reason string) string {
	return mustJSON(map[string]any{
		"requiresMemory": false,
		"reason":         reason,
		"contextNeeded":  []string{},
		"pronounResolution": map[string]any{
			"hasPronouns":         false,
			"pronounsFound":       []string{},
			"resolutionAttempted": false,
			"resolved":            false,
			"resolvedEntities":    []any{},
			"explanation":         "",
		},
	})
}

// Resolved is a dependency response that resolves the given entities from history.
func Resolved(reason string, entities ...Entity) string {
	found := []string{}
	list := []map[string]any{}
	for _, e := range entities {
		found = append(found, e.Pronoun)
		list = append(list, map[string]any{
			"pronoun":    e.Pronoun,
			"resolvedTo": e.ResolvedTo,
			"confidence": e.Confidence,
			"sourceRank": e.SourceRank,
		})
	}
	return mustJSON(map[string]any{
		"requiresMemory": true,
		"reason":         reason,
		"contextNeeded":  []string{"previous subject"},
		"pronounResolution": map[string]any{
			"hasPronouns":         true,
			"pronounsFound":       found,
			"resolutionAttempted": true,
			"resolved":            true,
			"resolvedEntities":    list,
			"explanation":         "resolved from the most recent history item",
		},
	})
}

// Iteration is a reasoning-loop response.
func Iteration(thoughts string, needsMore bool, confidence float64) string {
	return mustJSON(map[string]any{
		"thoughts":           thoughts,
		"needsMoreReasoning": needsMore,
		"confidence":         confidence,
	})
}
