package rule

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"
)

// Attributes are the record fields a condition is evaluated against.
type Attributes map[string]any

type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"

	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpFuzzy      Operator = "fuzzy"

	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpBetween        Operator = "between"

	OpIsTrue  Operator = "is_true"
	OpIsFalse Operator = "is_false"

	OpExists    Operator = "exists"
	OpNotExists Operator = "not_exists"
)

// Kind groups operators that share value semantics.
type Kind string

const (
	KindEquality    Kind = "equality"
	KindContainment Kind = "containment"
	KindRange       Kind = "range"
	KindBoolean     Kind = "boolean"
	KindPresence    Kind = "presence"
)

var operatorKinds = map[Operator]Kind{
	OpEquals:         KindEquality,
	OpNotEquals:      KindEquality,
	OpIn:             KindContainment,
	OpNotIn:          KindContainment,
	OpContains:       KindContainment,
	OpStartsWith:     KindContainment,
	OpFuzzy:          KindContainment,
	OpGreaterThan:    KindRange,
	OpGreaterOrEqual: KindRange,
	OpLessThan:       KindRange,
	OpLessOrEqual:    KindRange,
	OpBetween:        KindRange,
	OpIsTrue:         KindBoolean,
	OpIsFalse:        KindBoolean,
	OpExists:         KindPresence,
	OpNotExists:      KindPresence,
}

func (o Operator) Kind() (Kind, bool) {
	k, ok := operatorKinds[o]
	return k, ok
}

// Condition is one predicate clause of a rule.
type Condition struct {
	Field    string   `json:"field" yaml:"field" toml:"field"`
	Operator Operator `json:"operator" yaml:"operator" toml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
}

// Validate checks that the value shape fits the operator.
func (c Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("condition field is required")
	}
	kind, ok := c.Operator.Kind()
	if !ok {
		return fmt.Errorf("condition %q: unknown operator %q", c.Field, c.Operator)
	}
	switch kind {
	case KindEquality:
		if c.Value == nil {
			return fmt.Errorf("condition %q: %s requires a value", c.Field, c.Operator)
		}
	case KindContainment:
		if c.Operator == OpIn || c.Operator == OpNotIn {
			if _, ok := toList(c.Value); !ok {
				return fmt.Errorf("condition %q: %s requires a list value", c.Field, c.Operator)
			}
			return nil
		}
		if c.Value == nil || toString(c.Value) == "" {
			return fmt.Errorf("condition %q: %s requires a non-empty value", c.Field, c.Operator)
		}
	case KindRange:
		if c.Operator == OpBetween {
			bounds, ok := toList(c.Value)
			if !ok || len(bounds) != 2 {
				return fmt.Errorf("condition %q: between requires [min, max]", c.Field)
			}
			lo, okLo := toDecimal(bounds[0])
			hi, okHi := toDecimal(bounds[1])
			if !okLo || !okHi || lo.GreaterThan(hi) {
				return fmt.Errorf("condition %q: between requires numeric min <= max", c.Field)
			}
			return nil
		}
		if _, ok := toDecimal(c.Value); !ok {
			return fmt.Errorf("condition %q: %s requires a numeric value", c.Field, c.Operator)
		}
	case KindBoolean, KindPresence:
	}
	return nil
}

// Evaluate reports whether attrs satisfy c. Missing attributes satisfy only not_exists.
func Evaluate(c Condition, attrs Attributes) bool {
	actual, present := attrs[c.Field]
	if present && isEmpty(actual) {
		present = false
	}

	switch c.Operator {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	}
	if !present {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return valuesEqual(actual, c.Value)
	case OpNotEquals:
		return !valuesEqual(actual, c.Value)
	case OpIn:
		return inList(actual, c.Value)
	case OpNotIn:
		return !inList(actual, c.Value)
	case OpContains:
		return contains(actual, c.Value)
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(toString(actual)), strings.ToLower(toString(c.Value)))
	case OpFuzzy:
		return fuzzy.MatchFold(toString(c.Value), toString(actual))
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return compare(c.Operator, actual, c.Value)
	case OpBetween:
		bounds, ok := toList(c.Value)
		if !ok || len(bounds) != 2 {
			return false
		}
		return compare(OpGreaterOrEqual, actual, bounds[0]) && compare(OpLessOrEqual, actual, bounds[1])
	case OpIsTrue:
		b, ok := toBool(actual)
		return ok && b
	case OpIsFalse:
		b, ok := toBool(actual)
		return ok && !b
	default:
		return false
	}
}

func valuesEqual(actual, expected any) bool {
	if a, ok := toDecimal(actual); ok {
		if e, ok := toDecimal(expected); ok {
			return a.Equal(e)
		}
	}
	if a, ok := actual.(bool); ok {
		e, ok := toBool(expected)
		return ok && a == e
	}
	return strings.EqualFold(strings.TrimSpace(toString(actual)), strings.TrimSpace(toString(expected)))
}

func inList(actual, list any) bool {
	items, ok := toList(list)
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(actual, item) {
			return true
		}
	}
	return false
}

func contains(actual, expected any) bool {
	if items, ok := toList(actual); ok {
		return inList(expected, items)
	}
	return strings.Contains(strings.ToLower(toString(actual)), strings.ToLower(toString(expected)))
}

func compare(op Operator, actual, expected any) bool {
	a, ok := toDecimal(actual)
	if !ok {
		return false
	}
	e, ok := toDecimal(expected)
	if !ok {
		return false
	}
	switch op {
	case OpGreaterThan:
		return a.GreaterThan(e)
	case OpGreaterOrEqual:
		return a.GreaterThanOrEqual(e)
	case OpLessThan:
		return a.LessThan(e)
	case OpLessOrEqual:
		return a.LessThanOrEqual(e)
	default:
		return false
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int8:
		return decimal.NewFromInt(int64(t)), true
	case int16:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case uint:
		return decimal.NewFromUint64(uint64(t)), true
	case uint8:
		return decimal.NewFromUint64(uint64(t)), true
	case uint16:
		return decimal.NewFromUint64(uint64(t)), true
	case uint32:
		return decimal.NewFromUint64(uint64(t)), true
	case uint64:
		return decimal.NewFromUint64(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case float64:
		return decimal.NewFromFloat(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "yes", "y", "on":
				return true, true
			case "no", "n", "off":
				return false, true
			}
			return false, false
		}
		return b, true
	default:
		if d, ok := toDecimal(v); ok {
			return !d.IsZero(), true
		}
		return false, false
	}
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
