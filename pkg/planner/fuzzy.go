package planner

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// Suggestion is one candidate node label for an unmatched phrase.
type Suggestion struct {
	Label      string
	Similarity float64
}

// Ambiguity reports a phrase the matcher could not settle, with its ranked
// suggestions. Callers resolve it interactively and resubmit.
type Ambiguity struct {
	Original    string   `json:"original"`
	Suggestions []string `json:"suggestions"`
}

// matchOutcome classifies one phrase against the label space.
type matchOutcome int

const (
	matchNone matchOutcome = iota // no candidate: phrase passes through
	matchCorrected                // exactly one acceptable candidate
	matchAmbiguous                // several live candidates
)

// similarity is edit distance normalized to [0,1]; 1 is an exact match.
func similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.Distance(a, b, nil)
	return 1 - float64(dist)/float64(longest)
}

// matchPhrase classifies a phrase against the label space. A label is a
// candidate when the phrase occurs inside it ("live" names both live_tv and
// live_radio) or when edit-distance similarity reaches the threshold.
// Exactly one candidate that is contained or strictly above the threshold is
// corrected silently; a lone candidate sitting exactly at the threshold, or
// two or more candidates, force disambiguation; no candidates pass the
// phrase through untouched.
func matchPhrase(phrase string, labels []string, threshold float64, maxSuggestions int) (matchOutcome, string, []Suggestion) {
	needle := strings.ToLower(phrase)

	var pool []Suggestion
	strong := 0
	for _, label := range labels {
		sim := similarity(phrase, label)
		contained := strings.Contains(strings.ToLower(label), needle)
		if !contained && sim < threshold {
			continue
		}
		pool = append(pool, Suggestion{Label: label, Similarity: sim})
		if contained || sim > threshold {
			strong++
		}
	}

	switch {
	case len(pool) == 0:
		return matchNone, "", nil
	case len(pool) == 1 && strong == 1:
		return matchCorrected, pool[0].Label, nil
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Similarity != pool[j].Similarity {
			return pool[i].Similarity > pool[j].Similarity
		}
		return pool[i].Label < pool[j].Label
	})
	if maxSuggestions > 0 && len(pool) > maxSuggestions {
		pool = pool[:maxSuggestions]
	}
	return matchAmbiguous, "", pool
}

func suggestionLabels(suggestions []Suggestion) []string {
	out := make([]string, len(suggestions))
	for i, s := range suggestions {
		out[i] = s.Label
	}
	return out
}
