// Package blocks is the block registry: the typed catalog of plan graph
// block types, each with a parameter schema compiled at startup. Graphs are
// validated against the registry at load time, so unknown block types and
// malformed parameters fail before execution, never during it.
package blocks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/virtualpytest/pilot/pkg/core"
)

// Registry maps block types to their compiled parameter schemas. Build one
// with New at startup and share it; it is immutable afterwards.
type Registry struct {
	schemas map[core.NodeType]*jsonschema.Schema
}

// paramSchemas declares, per block type, the JSON schema its node data must
// satisfy. Terminals and start need nothing beyond their label.
var paramSchemas = map[core.NodeType]map[string]any{
	core.NodeStart:   {"type": "object"},
	core.NodeSuccess: {"type": "object"},
	core.NodeFailure: {"type": "object"},
	core.NodeNavigation: {
		"type":     "object",
		"required": []any{"target_node"},
		"properties": map[string]any{
			"target_node": map[string]any{"type": "string", "minLength": 1},
		},
	},
	core.NodeAction: {
		"type":     "object",
		"required": []any{"command"},
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "minLength": 1},
			"delay":   map[string]any{"type": "integer", "minimum": 0},
		},
	},
	core.NodeVerification: {
		"type":     "object",
		"required": []any{"verification_type"},
		"properties": map[string]any{
			"verification_type": map[string]any{"type": "string", "minLength": 1},
		},
	},
	// duration_ms and iterations marshal with omitempty, so a zero value is
	// simply absent: the schemas constrain them when present.
	core.NodeSleep: {
		"type": "object",
		"properties": map[string]any{
			"duration_ms": map[string]any{"type": "integer", "minimum": 0},
		},
	},
	core.NodeSetVariable: {
		"type":     "object",
		"required": []any{"name", "value"},
		"properties": map[string]any{
			"name":  map[string]any{"type": "string", "minLength": 1},
			"value": map[string]any{"type": "string"},
		},
	},
	core.NodeEvaluateCondition: {
		"type":     "object",
		"required": []any{"operand_type", "condition", "left_operand", "right_operand"},
		"properties": map[string]any{
			"operand_type": map[string]any{"enum": []any{"int", "str", "bool"}},
			"condition": map[string]any{"enum": []any{
				"==", "!=", "<", "<=", ">", ">=", "contains", "starts_with",
			}},
			"left_operand":  map[string]any{"type": "string"},
			"right_operand": map[string]any{"type": "string"},
		},
	},
	core.NodeLoop: {
		"type": "object",
		"properties": map[string]any{
			"iterations": map[string]any{"type": "integer", "minimum": 0},
		},
	},
	core.NodeSubgraph: {
		"type":     "object",
		"required": []any{"body"},
	},
}

// New compiles the parameter schema of every block type. Compilation only
// fails on a programming error in paramSchemas, so the error is fatal for
// the caller.
func New() (*Registry, error) {
	r := &Registry{schemas: make(map[core.NodeType]*jsonschema.Schema, len(paramSchemas))}
	for blockType, params := range paramSchemas {
		schema, err := compileSchema(string(blockType), params)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", blockType, err)
		}
		r.schemas[blockType] = schema
	}
	return r, nil
}

// MustNew is New for wiring paths where a compile failure is a bug.
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := c.AddResource(url, strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Known reports whether the block type is registered.
func (r *Registry) Known(t core.NodeType) bool {
	_, ok := r.schemas[t]
	return ok
}

// ValidateNode checks one node's data against its type's schema.
func (r *Registry) ValidateNode(n *core.Node) error {
	schema, ok := r.schemas[n.Type]
	if !ok {
		return core.Errf(core.KindInvalidInput, "block %s has unknown type %q", n.ID, n.Type)
	}

	// Round-trip through JSON so the schema sees the wire shape of the data.
	raw, err := json.Marshal(n.Data)
	if err != nil {
		return core.WrapErr(core.KindInternal, err, "failed to marshal block %s data", n.ID)
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return core.WrapErr(core.KindInternal, err, "failed to unmarshal block %s data", n.ID)
	}
	if err := schema.Validate(payload); err != nil {
		return core.WrapErr(core.KindInvalidInput, err, "block %s (%s) has invalid parameters", n.ID, n.Type)
	}
	return nil
}
