package planner

import (
	"regexp"
	"strconv"
	"strings"
)

// StructureType classifies the shape of the plan a prompt asks for.
type StructureType string

const (
	StructureSingle           StructureType = "single"
	StructureSequence         StructureType = "sequence"
	StructureSequenceWithLoop StructureType = "sequence_with_loop"
	StructureConditional      StructureType = "conditional"
)

// Intent is the structured reading of a prompt: which phrases belong to
// which plan category, plus the control-flow patterns the wording implies.
// Extraction is pure regex and keyword classes; no LLM is involved.
type Intent struct {
	Navigation    []string
	Actions       []string
	Verifications []string

	HasLoop        bool
	LoopCount      int
	HasSequence    bool
	HasConditional bool

	Structure StructureType
}

var (
	// "2 times", "3x", "twice"
	loopCountRe = regexp.MustCompile(`\b(\d+)\s*(?:times|x)\b`)
	twiceRe     = regexp.MustCompile(`\btwice\b`)
	// "for each", "every", "repeat"
	loopWordRe = regexp.MustCompile(`\b(?:for each|each|every|repeat|loop)\b`)

	sequenceRe    = regexp.MustCompile(`\b(?:then|and then|after that|afterwards|next|followed by)\b`)
	conditionalRe = regexp.MustCompile(`\b(?:if|when|unless|otherwise|in case)\b`)
)

// verb classes that bind the phrase that follows them to a category.
var (
	verificationVerbs = map[string]bool{
		"check": true, "verify": true, "confirm": true, "ensure": true,
		"test": true, "validate": true, "assert": true,
	}
	actionVerbs = map[string]bool{
		"press": true, "click": true, "tap": true, "zap": true,
		"play": true, "pause": true, "stop": true, "type": true,
		"launch": true, "start": true, "scroll": true, "swipe": true,
	}
	navigationVerbs = map[string]bool{
		"go": true, "goto": true, "navigate": true, "open": true,
		"enter": true, "switch": true, "move": true, "visit": true,
		"show": true, "view": true,
	}
)

// ExtractIntent parses a prompt into its structured intent. Valid phrases
// are classified by the last verb class seen before them; phrases with no
// governing verb default to navigation, since bare names in prompts are
// nearly always screens. Action-verb phrases themselves ("zap") count as
// actions even though the verb is also the command.
func ExtractIntent(prompt string) Intent {
	lower := strings.ToLower(prompt)
	intent := Intent{}

	if m := loopCountRe.FindStringSubmatch(lower); m != nil {
		intent.HasLoop = true
		intent.LoopCount, _ = strconv.Atoi(m[1])
	} else if twiceRe.MatchString(lower) {
		intent.HasLoop = true
		intent.LoopCount = 2
	} else if loopWordRe.MatchString(lower) {
		intent.HasLoop = true
		intent.LoopCount = 1
	}
	intent.HasSequence = sequenceRe.MatchString(lower)
	intent.HasConditional = conditionalRe.MatchString(lower)

	// Classification pass: walk every token, remembering the last verb
	// class, and bucket the valid phrases.
	mode := "navigation"
	seen := map[string]bool{}
	for _, tok := range tokenize(lower) {
		switch {
		case verificationVerbs[tok]:
			mode = "verification"
		case navigationVerbs[tok]:
			mode = "navigation"
		case actionVerbs[tok]:
			mode = "action"
			if validPhrase(tok) && !seen[tok] {
				seen[tok] = true
				intent.Actions = append(intent.Actions, tok)
			}
		case validPhrase(tok):
			if seen[tok] {
				continue
			}
			seen[tok] = true
			switch mode {
			case "verification":
				intent.Verifications = append(intent.Verifications, tok)
			case "action":
				intent.Actions = append(intent.Actions, tok)
			default:
				intent.Navigation = append(intent.Navigation, tok)
			}
		}
	}

	total := len(intent.Navigation) + len(intent.Actions) + len(intent.Verifications)
	switch {
	case intent.HasConditional:
		intent.Structure = StructureConditional
	case intent.HasLoop:
		intent.Structure = StructureSequenceWithLoop
	case intent.HasSequence || total > 1:
		intent.Structure = StructureSequence
	default:
		intent.Structure = StructureSingle
	}
	return intent
}
