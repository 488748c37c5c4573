package planner

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/zeebo/blake3"
)

// Fingerprint derives the plan cache key from the normalized prompt and the
// context signature. Two calls with the same lowercased prompt over the same
// device model, interface and node set hash identically regardless of node
// declaration order; any tree or catalog change produces a new key.
func Fingerprint(prompt string, sig Signature) string {
	normalized := strings.ToLower(strings.TrimSpace(prompt))

	// Struct marshalling keeps field order fixed; the node list is sorted by
	// the caller.
	payload, err := json.Marshal(sig)
	if err != nil {
		// Signature holds only strings and a string slice.
		panic("planner: marshal context signature: " + err.Error())
	}

	h := blake3.New()
	_, _ = h.Write([]byte(normalized))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
