package core

import (
	"fmt"
	"regexp"
	"strings"
)

// Label grammar: terminals are uppercase START/SUCCESS/FAILURE; every other
// block is labelled <type>_<n>:<target_or_command> with n >= 1 increasing
// per type within a graph.
var labelRe = regexp.MustCompile(`^(START|SUCCESS|FAILURE|(navigation|action|verification|sleep|set_variable|evaluate_condition|loop|subgraph)_[1-9][0-9]*:.+)$`)

// ValidLabel reports whether label matches the enforced grammar.
func ValidLabel(label string) bool {
	return labelRe.MatchString(label)
}

// FormatLabel builds the canonical label for a node of type t. n is the
// per-type ordinal (ignored for start and terminals); target is the node
// target, command, or other suffix appropriate to the type.
func FormatLabel(t NodeType, n int, target string) string {
	switch t {
	case NodeStart:
		return "START"
	case NodeSuccess:
		return "SUCCESS"
	case NodeFailure:
		return "FAILURE"
	}
	return fmt.Sprintf("%s_%d:%s", t, n, target)
}

// LabelMatchesType reports whether label is well-formed for a node of the
// given type. Terminal labels are accepted case-insensitively on input
// graphs; emitted graphs always carry the canonical uppercase form.
func LabelMatchesType(label string, t NodeType) bool {
	switch t {
	case NodeStart:
		return strings.EqualFold(label, "START")
	case NodeSuccess:
		return strings.EqualFold(label, "SUCCESS")
	case NodeFailure:
		return strings.EqualFold(label, "FAILURE")
	}
	prefix := string(t) + "_"
	if !strings.HasPrefix(label, prefix) {
		return false
	}
	return labelRe.MatchString(label)
}
