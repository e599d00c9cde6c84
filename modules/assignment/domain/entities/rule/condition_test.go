package rule

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	attrs := Attributes{
		"source":       "Web Form",
		"country":      "US",
		"company_size": 750,
		"amount":       "12500.50",
		"tags":         []string{"inbound", "priority"},
		"vip":          true,
		"newsletter":   "no",
		"company":      "Acme Corporation",
		"empty":        "  ",
		"score":        json.Number("42"),
	}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals is case-insensitive", Condition{Field: "source", Operator: OpEquals, Value: "web form"}, true},
		{"equals numeric across types", Condition{Field: "company_size", Operator: OpEquals, Value: "750"}, true},
		{"not_equals", Condition{Field: "country", Operator: OpNotEquals, Value: "CA"}, true},
		{"not_equals on missing field", Condition{Field: "region", Operator: OpNotEquals, Value: "EU"}, false},
		{"in", Condition{Field: "country", Operator: OpIn, Value: []any{"CA", "US"}}, true},
		{"in folds case", Condition{Field: "country", Operator: OpIn, Value: []string{"ca", "us"}}, true},
		{"not_in folds case", Condition{Field: "country", Operator: OpNotIn, Value: []string{"us"}}, false},
		{"contains folds case", Condition{Field: "company", Operator: OpContains, Value: "CORP"}, true},
		{"starts_with folds case", Condition{Field: "company", Operator: OpStartsWith, Value: "ACME"}, true},
		{"not_in", Condition{Field: "country", Operator: OpNotIn, Value: []string{"CA", "MX"}}, true},
		{"contains substring", Condition{Field: "company", Operator: OpContains, Value: "corp"}, true},
		{"contains list element", Condition{Field: "tags", Operator: OpContains, Value: "priority"}, true},
		{"starts_with", Condition{Field: "company", Operator: OpStartsWith, Value: "acme"}, true},
		{"fuzzy", Condition{Field: "company", Operator: OpFuzzy, Value: "acmcorp"}, true},
		{"fuzzy miss", Condition{Field: "company", Operator: OpFuzzy, Value: "globex"}, false},
		{"gt decimal string", Condition{Field: "amount", Operator: OpGreaterThan, Value: 12500}, true},
		{"lte", Condition{Field: "company_size", Operator: OpLessOrEqual, Value: 750.0}, true},
		{"lt", Condition{Field: "score", Operator: OpLessThan, Value: decimal.NewFromInt(40)}, false},
		{"range on non-numeric", Condition{Field: "country", Operator: OpGreaterThan, Value: 1}, false},
		{"between inclusive", Condition{Field: "company_size", Operator: OpBetween, Value: []any{500, 750}}, true},
		{"between outside", Condition{Field: "amount", Operator: OpBetween, Value: []any{1, 100}}, false},
		{"is_true", Condition{Field: "vip", Operator: OpIsTrue}, true},
		{"is_false from string", Condition{Field: "newsletter", Operator: OpIsFalse}, true},
		{"exists", Condition{Field: "country", Operator: OpExists}, true},
		{"blank string does not exist", Condition{Field: "empty", Operator: OpExists}, false},
		{"not_exists", Condition{Field: "region", Operator: OpNotExists}, true},
		{"unknown operator", Condition{Field: "country", Operator: "matches", Value: "US"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Evaluate(tc.cond, attrs))
		})
	}
}

func TestConditionValidate(t *testing.T) {
	require.NoError(t, Condition{Field: "a", Operator: OpEquals, Value: 1}.Validate())
	require.NoError(t, Condition{Field: "a", Operator: OpExists}.Validate())
	require.NoError(t, Condition{Field: "a", Operator: OpBetween, Value: []any{1, "2.5"}}.Validate())

	require.ErrorContains(t, Condition{Operator: OpEquals, Value: 1}.Validate(), "field is required")
	require.ErrorContains(t, Condition{Field: "a", Operator: "regex", Value: "x"}.Validate(), "unknown operator")
	require.ErrorContains(t, Condition{Field: "a", Operator: OpIn, Value: "x"}.Validate(), "list value")
	require.ErrorContains(t, Condition{Field: "a", Operator: OpGreaterThan, Value: "abc"}.Validate(), "numeric")
	require.ErrorContains(t, Condition{Field: "a", Operator: OpBetween, Value: []any{5, 1}}.Validate(), "min <= max")
	require.ErrorContains(t, Condition{Field: "a", Operator: OpContains}.Validate(), "non-empty")
}

func TestOperatorKind(t *testing.T) {
	kind, ok := OpFuzzy.Kind()
	require.True(t, ok)
	require.Equal(t, KindContainment, kind)

	_, ok = Operator("nope").Kind()
	require.False(t, ok)
}
