package planner

import "strings"

// stopwords are the English navigation verbs, articles and fillers that can
// never name a navigation node. Filtering them first keeps the fuzzy matcher
// away from words like "go" and "open" that would otherwise collide with
// half the label space.
var stopwords = map[string]struct{}{
	// articles, conjunctions, pronouns
	"the": {}, "and": {}, "then": {}, "also": {}, "this": {}, "that": {},
	"it": {}, "my": {}, "your": {},
	// prepositions
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "by": {}, "for": {},
	"with": {}, "from": {}, "into": {}, "onto": {}, "via": {},
	"after": {}, "before": {},
	// navigation verbs
	"go": {}, "goto": {}, "navigate": {}, "navigation": {}, "open": {},
	"show": {}, "view": {}, "enter": {}, "select": {}, "press": {},
	"click": {}, "tap": {}, "switch": {}, "move": {}, "take": {},
	"get": {}, "launch": {},
	// verification verbs
	"check": {}, "verify": {}, "confirm": {}, "ensure": {}, "make": {},
	"sure": {}, "test": {},
	// fillers and quantifiers
	"please": {}, "now": {}, "next": {}, "first": {}, "each": {},
	"every": {}, "all": {}, "times": {}, "time": {}, "repeat": {},
}

func isStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}

// ExtractPhrases tokenizes the prompt into candidate node phrases. Tokens
// are runs of letters, digits and underscores, lowercased. A phrase is kept
// iff it is at least three characters, not a stopword, and every
// underscore-separated part is either three-plus characters or carries a
// digit. Rejected phrases are dropped, never rewritten. The result is
// deduplicated in first-seen order, so the filter is idempotent.
func ExtractPhrases(prompt string) []string {
	tokens := tokenize(prompt)

	var out []string
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if !validPhrase(tok) || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		case r == '_':
			return false
		}
		return true
	})
}

func validPhrase(phrase string) bool {
	if len(phrase) < 3 || isStopword(phrase) {
		return false
	}
	for _, part := range strings.Split(phrase, "_") {
		if len(part) >= 3 {
			continue
		}
		if !containsDigit(part) {
			return false
		}
	}
	return true
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
