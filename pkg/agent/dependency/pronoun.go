package dependency

import (
	"regexp"
	"strings"
)

var (
	personalPronouns = regexp.MustCompile(`(?i)\b(he|she|it|they|him|her|them|his|hers|its|their|theirs|himself|herself|itself|themselves)\b`)

	// Demonstratives only count when they stand in for a noun ("is that true", "what about those?").
	demonstratives = regexp.MustCompile(`(?i)\b(this|that|these|those)\b\s*([?.!,]|$|\b(is|was|are|were|one|ones|mean|means|true|false)\b)`)

	implicitReferences = regexp.MustCompile(`(?i)\bthe (company|person|man|woman|guy|place|city|country|park|product|movie|film|book|song|game|team|organization|band|show|same one|same thing|former|latter|previous one|last one)\b`)
)

// Detector is a regex sanity check for pronouns and implicit references.
// It runs independently of the oracle.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the referring expressions found in question, lowercased and
// deduplicated in order of appearance.
func (d *Detector) Detect(question string) []string {
	type hit struct {
		pos  int
		text string
	}
	var hits []hit

	for _, loc := range personalPronouns.FindAllStringIndex(question, -1) {
		hits = append(hits, hit{loc[0], question[loc[0]:loc[1]]})
	}
	for _, m := range demonstratives.FindAllStringSubmatchIndex(question, -1) {
		hits = append(hits, hit{m[2], question[m[2]:m[3]]})
	}
	for _, loc := range implicitReferences.FindAllStringIndex(question, -1) {
		hits = append(hits, hit{loc[0], question[loc[0]:loc[1]]})
	}

	// insertion sort, the list is tiny
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	seen := make(map[string]struct{}, len(hits))
	found := make([]string, 0, len(hits))
	for _, h := range hits {
		w := strings.ToLower(h.text)
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		found = append(found, w)
	}
	return found
}

// HasReferences reports whether question contains any referring expression.
func (d *Detector) HasReferences(question string) bool {
	return len(d.Detect(question)) > 0
}
