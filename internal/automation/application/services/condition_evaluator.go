package services

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/calloutapp/callout/internal/automation/domain"
)

// EvaluateConditions evaluates a condition block against the flattened
// trigger data. A nil block or empty rules slice is vacuously true. The
// block combines with AND unless its operator is OR. Evaluation never
// mutates data and never panics: unknown fields fail closed.
func EvaluateConditions(block *domain.ConditionBlock, data map[string]any) bool {
	if block == nil || len(block.Rules) == 0 {
		return true
	}
	if block.Operator == domain.BlockOperatorOR {
		for _, c := range block.Rules {
			if evaluateCondition(c, data) {
				return true
			}
		}
		return false
	}
	return EvaluateAll(block.Rules, data)
}

// EvaluateAll applies AND semantics across a plain condition list, as used
// by trigger conditions.
func EvaluateAll(conditions []domain.Condition, data map[string]any) bool {
	for _, c := range conditions {
		if !evaluateCondition(c, data) {
			return false
		}
	}
	return true
}

func evaluateCondition(c domain.Condition, data map[string]any) bool {
	value, exists := data[c.Field]

	switch c.Operator {
	case domain.OperatorEquals:
		return exists && valuesEqual(value, c.Value)
	case domain.OperatorNotEquals:
		return !exists || !valuesEqual(value, c.Value)
	case domain.OperatorContains:
		if !exists || value == nil {
			return false
		}
		return strings.Contains(coerceString(value), coerceString(c.Value))
	case domain.OperatorGreaterThan:
		a, aok := toFloat64(value)
		b, bok := toFloat64(c.Value)
		return aok && bok && a > b
	case domain.OperatorLessThan:
		a, aok := toFloat64(value)
		b, bok := toFloat64(c.Value)
		return aok && bok && a < b
	default:
		return false
	}
}

// valuesEqual compares strictly, normalizing numeric types so int 3 and
// float64 3 (the JSON decode shape) compare equal.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat64(a); ok {
		if bf, ok := toFloat64(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
