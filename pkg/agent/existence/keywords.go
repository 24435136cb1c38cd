package existence

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a an and are as at be been being but by can could did do does doing for from had has have
		having how i if in into is it its me my of on or our please should so than that the their
		them then there these they this those to too up us was we were what when where which who
		whom whose why will with would you your tell about explain give show`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether w (lowercase) carries no search value.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords returns the tokens of text with stop-words removed, in order of appearance.
func Keywords(text string) []string {
	tokens := Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !IsStopWord(t) {
			out = append(out, t)
		}
	}
	return out
}
