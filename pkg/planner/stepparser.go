package planner

import (
	"regexp"
	"strconv"
	"strings"
)

// StepKind is the typed step category the LLM response parser emits.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepAction   StepKind = "action"
	StepVerify   StepKind = "verify"
	StepSleep    StepKind = "sleep"
)

// Step is one parsed plan step. Loop bodies nest via Body on a step with
// Repeat > 0.
type Step struct {
	Kind        StepKind
	Target      string // navigate: node label
	Command     string // action: device command
	Description string // action: optional parenthesized description
	Verification string // verify: verification type
	DurationMs  int    // sleep

	Repeat int    // loop marker: iteration count
	Body   []Step // loop body steps
}

// ParsedResponse is the structured form of one LLM completion.
type ParsedResponse struct {
	Analysis string
	Steps    []Step
}

// Step line grammar. Numbering and bullets are optional; matching is
// case-insensitive. Unknown lines are skipped, never fatal: the parser is
// total by contract.
var (
	analysisRe = regexp.MustCompile(`(?i)^\s*ANALYSIS\s*:\s*(.*)$`)
	stepsRe    = regexp.MustCompile(`(?i)^\s*STEPS\s*:\s*$`)
	stepLineRe = regexp.MustCompile(`(?i)^\s*(?:\d+[.)]\s*|[-*]\s*)?(navigate to|navigate|go to|action|verify|sleep|wait|repeat|end repeat)\s*:?\s*(.*?)\s*$`)

	actionDescRe = regexp.MustCompile(`^(.*?)\s*\((.*)\)\s*$`)
	repeatRe     = regexp.MustCompile(`(?i)^(\d+)\s*(?:times|x)?\s*:?$`)
	durationRe   = regexp.MustCompile(`(?i)^(\d+)\s*(ms|milliseconds?|s|seconds?)?$`)
)

// ParseResponse converts an LLM completion into analysis text and an
// ordered step list. "Repeat: N times:" opens a loop whose body runs until
// "End repeat" or the end of the list. Lines that match nothing are
// ignored; an empty step list is the caller's signal to retry or fail.
func ParseResponse(text string) ParsedResponse {
	var resp ParsedResponse
	var loopBody *[]Step
	var loopStep *Step

	appendStep := func(s Step) {
		if loopBody != nil {
			*loopBody = append(*loopBody, s)
			return
		}
		resp.Steps = append(resp.Steps, s)
	}
	closeLoop := func() {
		if loopStep == nil {
			return
		}
		resp.Steps = append(resp.Steps, *loopStep)
		loopStep = nil
		loopBody = nil
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		if m := analysisRe.FindStringSubmatch(line); m != nil {
			resp.Analysis = strings.TrimSpace(m[1])
			continue
		}
		if stepsRe.MatchString(line) {
			continue
		}
		m := stepLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		verb := strings.ToLower(m[1])
		rest := strings.TrimSpace(m[2])

		switch verb {
		case "navigate to", "navigate", "go to":
			if rest != "" {
				appendStep(Step{Kind: StepNavigate, Target: rest})
			}
		case "action":
			cmd, desc := rest, ""
			if dm := actionDescRe.FindStringSubmatch(rest); dm != nil {
				cmd, desc = strings.TrimSpace(dm[1]), strings.TrimSpace(dm[2])
			}
			if cmd != "" {
				appendStep(Step{Kind: StepAction, Command: cmd, Description: desc})
			}
		case "verify":
			if rest != "" {
				appendStep(Step{Kind: StepVerify, Verification: rest})
			}
		case "sleep", "wait":
			if ms, ok := parseDuration(rest); ok {
				appendStep(Step{Kind: StepSleep, DurationMs: ms})
			}
		case "repeat":
			rm := repeatRe.FindStringSubmatch(rest)
			if rm == nil {
				continue
			}
			count, _ := strconv.Atoi(rm[1])
			closeLoop()
			loopStep = &Step{Repeat: count}
			loopBody = &loopStep.Body
		case "end repeat":
			closeLoop()
		}
	}
	closeLoop()
	return resp
}

func parseDuration(s string) (int, bool) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	unit := strings.ToLower(m[2])
	if strings.HasPrefix(unit, "s") {
		n *= 1000
	}
	return n, true
}
