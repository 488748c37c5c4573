package executor

import (
	"regexp"

	"github.com/virtualpytest/pilot/pkg/core"
)

// Variable names the executor maintains itself. Verification blocks publish
// their verdict, evaluate_condition blocks publish their evaluation.
const (
	varVerificationResult   = "verification_result"
	varVerificationObserved = "verification_observed"
	varResultOutput         = "result_output"
	varResultSuccess        = "result_success"
	varErrorMsg             = "error_msg"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Vars is the flat per-execution variable map. Substitution syntax is
// {name} inside string fields; an unresolved name fails the block.
type Vars map[string]string

// Substitute replaces every {name} placeholder in s. All placeholders must
// resolve; the first unresolved name aborts with invalid_input.
func (v Vars) Substitute(s string) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		val, ok := v[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return match
		}
		return val
	})
	if missing != "" {
		return "", core.Errf(core.KindInvalidInput, "unresolved variable {%s}", missing)
	}
	return out, nil
}

// SubstituteParams applies Substitute to every string value in a parameter
// map, recursing into nested maps and slices. Non-string values pass
// through unchanged.
func (v Vars) SubstituteParams(params map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out := make(map[string]any, len(params))
	for key, val := range params {
		sub, err := v.substituteValue(val)
		if err != nil {
			return nil, err
		}
		out[key] = sub
	}
	return out, nil
}

func (v Vars) substituteValue(val any) (any, error) {
	switch tv := val.(type) {
	case string:
		return v.Substitute(tv)
	case map[string]any:
		return v.SubstituteParams(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			sub, err := v.substituteValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return val, nil
	}
}

// Snapshot copies the map for inclusion in results.
func (v Vars) Snapshot() map[string]string {
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
