package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/virtualpytest/pilot/pkg/core"
)

// evaluateCondition resolves both operands through the variable map, parses
// them according to operand_type, and applies the operator. The returned
// verdict drives edge selection: a false condition follows the block's
// failure handle.
func evaluateCondition(vars Vars, data *core.NodeData) (output string, verdict bool, err error) {
	left, err := vars.Substitute(data.LeftOperand)
	if err != nil {
		return "", false, err
	}
	right, err := vars.Substitute(data.RightOperand)
	if err != nil {
		return "", false, err
	}

	switch data.OperandType {
	case "int":
		verdict, err = compareInt(left, right, data.Condition)
	case "str":
		verdict, err = compareStr(left, right, data.Condition)
	case "bool":
		verdict, err = compareBool(left, right, data.Condition)
	default:
		err = core.Errf(core.KindInvalidInput, "unknown operand_type %q", data.OperandType)
	}
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("%s %s %s -> %t", left, data.Condition, right, verdict), verdict, nil
}

func compareInt(left, right, op string) (bool, error) {
	l, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return false, core.Errf(core.KindInvalidInput, "left operand %q is not an int", left)
	}
	r, err := strconv.Atoi(strings.TrimSpace(right))
	if err != nil {
		return false, core.Errf(core.KindInvalidInput, "right operand %q is not an int", right)
	}
	switch op {
	case "==":
		return l == r, nil
	case "!=":
		return l != r, nil
	case "<":
		return l < r, nil
	case "<=":
		return l <= r, nil
	case ">":
		return l > r, nil
	case ">=":
		return l >= r, nil
	case "contains", "starts_with":
		return false, core.Errf(core.KindInvalidInput, "operator %q is not defined for int operands", op)
	}
	return false, core.Errf(core.KindInvalidInput, "unknown operator %q", op)
}

func compareStr(left, right, op string) (bool, error) {
	switch op {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case "<":
		return left < right, nil
	case "<=":
		return left <= right, nil
	case ">":
		return left > right, nil
	case ">=":
		return left >= right, nil
	case "contains":
		return strings.Contains(left, right), nil
	case "starts_with":
		return strings.HasPrefix(left, right), nil
	}
	return false, core.Errf(core.KindInvalidInput, "unknown operator %q", op)
}

func compareBool(left, right, op string) (bool, error) {
	l, err := strconv.ParseBool(strings.TrimSpace(left))
	if err != nil {
		return false, core.Errf(core.KindInvalidInput, "left operand %q is not a bool", left)
	}
	r, err := strconv.ParseBool(strings.TrimSpace(right))
	if err != nil {
		return false, core.Errf(core.KindInvalidInput, "right operand %q is not a bool", right)
	}
	switch op {
	case "==":
		return l == r, nil
	case "!=":
		return l != r, nil
	case "<", "<=", ">", ">=", "contains", "starts_with":
		return false, core.Errf(core.KindInvalidInput, "operator %q is not defined for bool operands", op)
	}
	return false, core.Errf(core.KindInvalidInput, "unknown operator %q", op)
}
