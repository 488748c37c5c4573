package planner

import (
	"fmt"
	"strings"
)

const systemInstructions = `You are a test automation planner for a device under test.
You turn a natural-language request into an ordered list of steps drawn ONLY
from the provided context. Never invent node names, commands or verification
types: every value you emit must appear verbatim in the context sections.

Respond in EXACTLY this plain-text format, nothing else:

ANALYSIS: <one or two sentences of reasoning>
STEPS:
1. Navigate to: <node>
2. Action: <command> (optional description)
3. Verify: <verification_type>

Additional step forms:
- Sleep: <n> ms
- Repeat: <n> times:  (following steps form the loop body)
- End repeat  (closes the loop body)

Rules:
- Steps are executed strictly in order.
- Navigate steps move the device to a screen; use them before acting on it.
- If the request repeats something N times, wrap the repeated steps in
  Repeat/End repeat.
- Keep the list minimal: no setup or teardown the request did not ask for.`

const strictRetryInstructions = `Your previous response could not be parsed.
Respond again using ONLY the exact format below. Do not add prose, markdown,
code fences or blank sections. The first line MUST start with "ANALYSIS:" and
the second with "STEPS:"; every following line MUST be a numbered step.

ANALYSIS: <reasoning>
STEPS:
1. Navigate to: <node>
2. Action: <command>
3. Verify: <verification_type>`

// buildUserPrompt composes the filtered context, the structure hints and
// the request into the user message of the single plan completion.
func buildUserPrompt(prompt string, intent Intent, fc FilteredContext, deviceModel, iface string) string {
	var sb strings.Builder

	sb.WriteString("## Device Context\n")
	fmt.Fprintf(&sb, "Device model: %s\nInterface: %s\n\n", deviceModel, iface)

	sb.WriteString("## Available Navigation Nodes\n")
	writeCatalog(&sb, fc.Nodes)
	sb.WriteString("\n## Available Actions\n")
	writeCatalog(&sb, fc.Actions)
	sb.WriteString("\n## Available Verifications\n")
	writeCatalog(&sb, fc.Verifications)

	sb.WriteString("\n## Request Structure\n")
	fmt.Fprintf(&sb, "Structure: %s\n", intent.Structure)
	if intent.HasLoop {
		fmt.Fprintf(&sb, "The request asks for a loop of %d iterations; use Repeat/End repeat.\n", intent.LoopCount)
	}
	if intent.HasConditional {
		sb.WriteString("The request contains a condition; order the steps so the verification precedes the dependent actions.\n")
	}

	sb.WriteString("\n## Request\n")
	sb.WriteString(strings.TrimSpace(prompt))
	sb.WriteString("\n")
	return sb.String()
}

func writeCatalog(sb *strings.Builder, items []string) {
	if len(items) == 0 {
		sb.WriteString("(none)\n")
		return
	}
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
}
