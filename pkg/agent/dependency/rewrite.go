package dependency

import (
	"regexp"
	"sort"
	"strings"

	"ai-memory-agent-be/pkg/agent"
)

// ResolveQuestion substitutes every resolved pronoun in question with its entity.
// Matching is whole-word and case-insensitive and happens in a single pass, so a
// replacement is never itself rewritten. Returns question unchanged when nothing applies.
func ResolveQuestion(question string, entities []agent.ResolvedEntity) string {
	replacements := make(map[string]string, len(entities))
	for _, e := range entities {
		p := strings.ToLower(strings.TrimSpace(e.Pronoun))
		to := strings.TrimSpace(e.ResolvedTo)
		if p == "" || to == "" {
			continue
		}
		if _, exists := replacements[p]; !exists {
			replacements[p] = to
		}
	}
	if len(replacements) == 0 {
		return question
	}

	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	// longer alternatives first so "the company" wins over a shorter overlap
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	re := regexp.MustCompile(`(?i)\b(` + strings.Join(keys, "|") + `)\b`)
	return re.ReplaceAllStringFunc(question, func(m string) string {
		return replacements[strings.ToLower(m)]
	})
}
