// Package agenttest provides deterministic oracles for pipeline tests.
package agenttest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"ai-memory-agent-be/pkg/agent"
	"ai-memory-agent-be/pkg/llm"
)

// Handler produces the raw oracle response for a prompt.
type Handler func(prompt string) (string, error)

// ScriptedLLM routes each prompt to a handler by its task marker and counts calls.
type ScriptedLLM struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
	prompts  map[string][]string

	// ChunkSize is the number of runes per streamed token.
	ChunkSize int
}

var _ llm.LLMProvider = (*ScriptedLLM)(nil)

func NewScriptedLLM() *ScriptedLLM {
	return &ScriptedLLM{
		handlers:  make(map[string]Handler),
		calls:     make(map[string]int),
		prompts:   make(map[string][]string),
		ChunkSize: 8,
	}
}

// On registers a handler for a task.
func (s *ScriptedLLM) On(task string, h Handler) *ScriptedLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[task] = h
	return s
}

// Reply registers a fixed response for a task.
func (s *ScriptedLLM) Reply(task, response string) *ScriptedLLM {
	return s.On(task, func(string) (string, error) { return response, nil })
}

// Calls returns how often a task was invoked.
func (s *ScriptedLLM) Calls(task string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[task]
}

// Prompts returns the prompts received for a task, oldest first.
func (s *ScriptedLLM) Prompts(task string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts[task]...)
}

func (s *ScriptedLLM) dispatch(prompt string) (string, error) {
	task := agent.TaskOf(prompt)

	s.mu.Lock()
	h, ok := s.handlers[task]
	s.calls[task]++
	s.prompts[task] = append(s.prompts[task], prompt)
	s.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("agenttest: no handler for task %q", task)
	}
	return h(prompt)
}

func (s *ScriptedLLM) Chat(_ context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	parts := make([]string, len(history))
	for i, m := range history {
		parts[i] = m.Content
	}
	return s.dispatch(strings.Join(parts, "\n"))
}

func (s *ScriptedLLM) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	return s.dispatch(prompt)
}

func (s *ScriptedLLM) Stream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamToken, error) {
	full, err := s.Chat(ctx, history, opts...)
	if err != nil {
		return nil, err
	}

	size := s.ChunkSize
	if size <= 0 {
		size = len(full) + 1
	}

	runes := []rune(full)
	ch := make(chan llm.StreamToken, len(runes)/size+2)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		ch <- llm.StreamToken{Content: string(runes[start:end])}
	}
	ch <- llm.StreamToken{Done: true}
	close(ch)
	return ch, nil
}

var (
	questionPattern  = regexp.MustCompile(`<question>(.*?)</question>`)
	candidatePattern = regexp.MustCompile(`(?s)<candidate id="([^"]+)"[^>]*>\n(.*?)</candidate>`)
)

// Candidate is a candidate block parsed from an existence judgment prompt.
type Candidate struct {
	ID       string
	Question string
	Resolved string
}

// QuestionOf extracts the question from a prompt.
func QuestionOf(prompt string) string {
	m := questionPattern.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	return m[1]
}

// CandidatesOf extracts the candidates from an existence judgment prompt.
func CandidatesOf(prompt string) []Candidate {
	var out []Candidate
	for _, m := range candidatePattern.FindAllStringSubmatch(prompt, -1) {
		c := Candidate{ID: m[1]}
		for _, line := range strings.Split(m[2], "\n") {
			switch {
			case strings.HasPrefix(line, "question: "):
				c.Question = strings.TrimPrefix(line, "question: ")
			case strings.HasPrefix(line, "resolved: "):
				c.Resolved = strings.TrimPrefix(line, "resolved: ")
			}
		}
		out = append(out, c)
	}
	return out
}
