package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/platformbuilds/vigil-core/internal/models"
)

// Operator is the closed set of rule comparison operators. Parsing funnels
// arbitrary strings into this set once, so evaluation is a total switch and
// an unknown operator can never crash an evaluation.
type Operator int

const (
	OpUnknown Operator = iota
	OpGreaterThan
	OpLessThan
	OpGreaterOrEqual
	OpLessOrEqual
	OpEqual
	OpNotEqual
	OpIn
	OpNotIn
	OpContains
	OpRegex
)

// floatEqualityEpsilon bounds = and != comparisons on floats.
const floatEqualityEpsilon = 1e-9

func ParseOperator(s string) (Operator, bool) {
	switch strings.TrimSpace(s) {
	case ">":
		return OpGreaterThan, true
	case "<":
		return OpLessThan, true
	case ">=":
		return OpGreaterOrEqual, true
	case "<=":
		return OpLessOrEqual, true
	case "=", "==":
		return OpEqual, true
	case "!=":
		return OpNotEqual, true
	case "in":
		return OpIn, true
	case "not_in":
		return OpNotIn, true
	case "contains":
		return OpContains, true
	case "regex":
		return OpRegex, true
	default:
		return OpUnknown, false
	}
}

func (op Operator) String() string {
	switch op {
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	case OpGreaterOrEqual:
		return ">="
	case OpLessOrEqual:
		return "<="
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpIn:
		return "in"
	case OpNotIn:
		return "not_in"
	case OpContains:
		return "contains"
	case OpRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// Matches evaluates the operator for a sample. String operators compare
// against the sample's "value" context entry when present, falling back to
// the formatted numeric value. Errors (bad regex, unknown operator) are
// returned so the caller can log and treat the condition as not holding.
func (op Operator) Matches(value float64, cond models.AlertCondition, context map[string]string) (bool, error) {
	switch op {
	case OpGreaterThan:
		return value > cond.Threshold, nil
	case OpLessThan:
		return value < cond.Threshold, nil
	case OpGreaterOrEqual:
		return value >= cond.Threshold, nil
	case OpLessOrEqual:
		return value <= cond.Threshold, nil
	case OpEqual:
		return math.Abs(value-cond.Threshold) <= floatEqualityEpsilon, nil
	case OpNotEqual:
		return math.Abs(value-cond.Threshold) > floatEqualityEpsilon, nil
	case OpIn:
		s := stringValue(value, context)
		for _, candidate := range cond.ValueSet {
			if s == candidate {
				return true, nil
			}
		}
		return false, nil
	case OpNotIn:
		s := stringValue(value, context)
		for _, candidate := range cond.ValueSet {
			if s == candidate {
				return false, nil
			}
		}
		return true, nil
	case OpContains:
		return strings.Contains(stringValue(value, context), cond.Pattern), nil
	case OpRegex:
		re, err := regexp.Compile(cond.Pattern)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", cond.Pattern, err)
		}
		return re.MatchString(stringValue(value, context)), nil
	default:
		return false, fmt.Errorf("unknown operator")
	}
}

func stringValue(value float64, context map[string]string) string {
	if s, ok := context["value"]; ok {
		return s
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
