package dependency

import (
	"testing"

	"ai-memory-agent-be/pkg/agent"

	"github.com/stretchr/testify/assert"
)

func TestDetector_Detect(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{name: "no references", question: "What is the capital of France?", want: []string{}},
		{name: "personal pronoun", question: "How old is he?", want: []string{"he"}},
		{name: "several pronouns in order", question: "Did she meet them before his talk?", want: []string{"she", "them", "his"}},
		{name: "case insensitive and deduplicated", question: "It is big but is IT old?", want: []string{"it"}},
		{name: "standalone demonstrative", question: "Is that true?", want: []string{"that"}},
		{name: "demonstrative at the end", question: "Tell me more about those", want: []string{"those"}},
		{name: "demonstrative as determiner", question: "Is that movie good?", want: []string{}},
		{name: "implicit reference", question: "Where is the company based?", want: []string{"the company"}},
		{name: "word boundaries", question: "Is Helsinki in Ithaca?", want: []string{}},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.question))
			assert.Equal(t, len(tt.want) > 0, d.HasReferences(tt.question))
		})
	}
}

func TestResolveQuestion(t *testing.T) {
	tests := []struct {
		name     string
		question string
		entities []agent.ResolvedEntity
		want     string
	}{
		{
			name:     "single pronoun",
			question: "How old is he?",
			entities: []agent.ResolvedEntity{{Pronoun: "he", ResolvedTo: "Elon Musk"}},
			want:     "How old is Elon Musk?",
		},
		{
			name:     "case insensitive whole word",
			question: "Is It bigger than the item it replaced?",
			entities: []agent.ResolvedEntity{{Pronoun: "it", ResolvedTo: "the park"}},
			want:     "Is the park bigger than the item the park replaced?",
		},
		{
			name:     "replacement is not rewritten",
			question: "Does he like her?",
			entities: []agent.ResolvedEntity{
				{Pronoun: "he", ResolvedTo: "the man who met her"},
				{Pronoun: "her", ResolvedTo: "Alice"},
			},
			want: "Does the man who met her like Alice?",
		},
		{
			name:     "longer phrase first",
			question: "When was the company founded?",
			entities: []agent.ResolvedEntity{
				{Pronoun: "the company", ResolvedTo: "SpaceX"},
				{Pronoun: "company", ResolvedTo: "firm"},
			},
			want: "When was SpaceX founded?",
		},
		{
			name:     "nothing to resolve",
			question: "How old is he?",
			entities: nil,
			want:     "How old is he?",
		},
		{
			name:     "blank entity ignored",
			question: "How old is he?",
			entities: []agent.ResolvedEntity{{Pronoun: "he", ResolvedTo: "  "}},
			want:     "How old is he?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveQuestion(tt.question, tt.entities))
		})
	}
}
