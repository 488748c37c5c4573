package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/core"
)

func condData(operandType, condition, left, right string) *core.NodeData {
	return &core.NodeData{
		OperandType: operandType, Condition: condition,
		LeftOperand: left, RightOperand: right,
	}
}

func TestEvaluateConditionInt(t *testing.T) {
	tests := []struct {
		op      string
		left    string
		right   string
		verdict bool
	}{
		{"==", "7", "7", true},
		{"==", "7", "8", false},
		{"!=", "7", "8", true},
		{"<", "3", "5", true},
		{"<=", "5", "5", true},
		{">", "5", "3", true},
		{">=", "2", "3", false},
	}
	for _, tt := range tests {
		t.Run(tt.left+tt.op+tt.right, func(t *testing.T) {
			_, verdict, err := evaluateCondition(Vars{}, condData("int", tt.op, tt.left, tt.right))
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, verdict)
		})
	}
}

func TestEvaluateConditionStr(t *testing.T) {
	_, verdict, err := evaluateCondition(Vars{}, condData("str", "contains", "live_tv_screen", "live"))
	require.NoError(t, err)
	assert.True(t, verdict)

	_, verdict, err = evaluateCondition(Vars{}, condData("str", "starts_with", "live_tv", "tv"))
	require.NoError(t, err)
	assert.False(t, verdict)

	_, verdict, err = evaluateCondition(Vars{}, condData("str", "<", "abc", "abd"))
	require.NoError(t, err)
	assert.True(t, verdict)
}

func TestEvaluateConditionBool(t *testing.T) {
	_, verdict, err := evaluateCondition(Vars{}, condData("bool", "==", "true", "true"))
	require.NoError(t, err)
	assert.True(t, verdict)

	_, _, err = evaluateCondition(Vars{}, condData("bool", "<", "true", "false"))
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))
}

func TestEvaluateConditionResolvesVariables(t *testing.T) {
	vars := Vars{"verification_result": "true"}
	output, verdict, err := evaluateCondition(vars, condData("bool", "==", "{verification_result}", "true"))
	require.NoError(t, err)
	assert.True(t, verdict)
	assert.Contains(t, output, "true == true")
}

func TestEvaluateConditionBadOperand(t *testing.T) {
	_, _, err := evaluateCondition(Vars{}, condData("int", "==", "seven", "7"))
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidInput, core.KindOf(err))

	_, _, err = evaluateCondition(Vars{}, condData("int", "contains", "7", "7"))
	require.Error(t, err)

	_, _, err = evaluateCondition(Vars{}, condData("float", "==", "1", "1"))
	require.Error(t, err)
}
