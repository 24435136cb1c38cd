package agent

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Task names tag every oracle prompt so a single provider can serve all stages
// and logs can tell the calls apart.
const (
	TaskPlanning          = "planning"
	TaskSearchPhrase      = "search_phrase"
	TaskExistenceJudgment = "existence_judgment"
	TaskDependency        = "dependency_decision"
	TaskReasoning         = "reasoning"
	TaskAnswer            = "answer_generation"
)

var taskPattern = regexp.MustCompile(`<task name="([a-z_]+)">`)

// TaskHeader opens a prompt for the named task.
func TaskHeader(name string) string {
	return fmt.Sprintf("<task name=%q>\n", name)
}

// TaskOf returns the task a prompt was built for, or "".
func TaskOf(prompt string) string {
	m := taskPattern.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	return m[1]
}

// WriteQuestion writes the question block shared by all prompts.
func WriteQuestion(b *strings.Builder, question string) {
	b.WriteString("<question>")
	b.WriteString(question)
	b.WriteString("</question>\n")
}

// WriteMemory writes one prior run as a tagged block.
func WriteMemory(b *strings.Builder, tag string, attrs string, m RetrievedMemory, answerLimit int) {
	fmt.Fprintf(b, "<%s id=%q created=%q%s>\n", tag, m.RunID.String(), m.CreatedAt.UTC().Format(time.RFC3339), attrs)
	fmt.Fprintf(b, "question: %s\n", m.Question)
	if m.ResolvedQuestion != "" {
		fmt.Fprintf(b, "resolved: %s\n", m.ResolvedQuestion)
	}
	fmt.Fprintf(b, "answer: %s\n", Truncate(m.Answer, answerLimit))
	fmt.Fprintf(b, "</%s>\n", tag)
}

// ResolvedContext renders resolved pronouns as an annotation the reasoning and
// answer prompts must treat as the definitive subject of the question.
func ResolvedContext(entities []ResolvedEntity) string {
	if len(entities) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<resolved_context>\n")
	for _, e := range entities {
		fmt.Fprintf(&b, "%q refers to %s\n", e.Pronoun, e.ResolvedTo)
	}
	b.WriteString("These references are definitive: answer about the resolved entities, not the literal pronouns.\n")
	b.WriteString("</resolved_context>\n")
	return b.String()
}

// Truncate cuts s to at most n runes, marking the cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
