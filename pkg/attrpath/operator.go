package attrpath

import (
	"strconv"
	"strings"

	"github.com/archestra-ai/gateway/pkg/models"
)

// Result is the outcome of evaluating a path+operator+value condition
// against a JSON document.
type Result struct {
	Matched       bool
	MatchedValues []string
}

// EvaluateCondition parses path, evaluates it against raw JSON, and applies
// op/compareValue to every matched scalar. It matches if at least one
// matched value satisfies the operator. A malformed path fails closed:
// Matched is false and no values are returned.
func EvaluateCondition(raw []byte, rawPath string, op models.Operator, compareValue string) (Result, error) {
	path, err := Parse(rawPath)
	if err != nil {
		return Result{}, err
	}

	values, err := EvaluateJSON(raw, path)
	if err != nil {
		return Result{}, err
	}

	var matchedValues []string
	matched := false
	for _, v := range values {
		s := ToScalarString(v)
		if applyOperator(op, s, compareValue) {
			matched = true
			matchedValues = append(matchedValues, s)
		}
	}

	return Result{Matched: matched, MatchedValues: matchedValues}, nil
}

func applyOperator(op models.Operator, value, compareValue string) bool {
	switch op {
	case models.OperatorEqual:
		return value == compareValue
	case models.OperatorNotEqual:
		return value != compareValue
	case models.OperatorContains:
		return strings.Contains(value, compareValue)
	case models.OperatorNotContains:
		return !strings.Contains(value, compareValue)
	case models.OperatorStartsWith:
		return strings.HasPrefix(value, compareValue)
	case models.OperatorEndsWith:
		return strings.HasSuffix(value, compareValue)
	case models.OperatorGreaterThan:
		a, errA := strconv.ParseFloat(value, 64)
		b, errB := strconv.ParseFloat(compareValue, 64)
		return errA == nil && errB == nil && a > b
	case models.OperatorLessThan:
		a, errA := strconv.ParseFloat(value, 64)
		b, errB := strconv.ParseFloat(compareValue, 64)
		return errA == nil && errB == nil && a < b
	default:
		return false
	}
}
