package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"church-automation/internal/models"
)

func TestEvaluateOperators(t *testing.T) {
	payload := map[string]interface{}{
		"amount":       float64(150),
		"name":         "Maria Gonzalez",
		"visitor_type": "FIRST_TIME",
		"member": map[string]interface{}{
			"email": "maria@example.com",
		},
		"empty":     "",
		"joined_at": "2026-03-01",
	}

	tests := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{
			name:      "equals matches json number against int value",
			condition: models.Condition{Field: "amount", Operator: models.OpEquals, Value: 150},
			expected:  true,
		},
		{
			name:      "equals mismatch",
			condition: models.Condition{Field: "amount", Operator: models.OpEquals, Value: 151},
			expected:  false,
		},
		{
			name:      "not equals on missing field matches",
			condition: models.Condition{Field: "missing", Operator: models.OpNotEquals, Value: "x"},
			expected:  true,
		},
		{
			name:      "contains is case insensitive",
			condition: models.Condition{Field: "name", Operator: models.OpContains, Value: "gonzalez"},
			expected:  true,
		},
		{
			name:      "not contains",
			condition: models.Condition{Field: "name", Operator: models.OpNotContains, Value: "smith"},
			expected:  true,
		},
		{
			name:      "greater than",
			condition: models.Condition{Field: "amount", Operator: models.OpGreaterThan, Value: 100},
			expected:  true,
		},
		{
			name:      "greater than fails on missing field",
			condition: models.Condition{Field: "missing", Operator: models.OpGreaterThan, Value: 1},
			expected:  false,
		},
		{
			name:      "less or equal boundary",
			condition: models.Condition{Field: "amount", Operator: models.OpLessOrEqual, Value: 150},
			expected:  true,
		},
		{
			name:      "greater than non numeric field fails",
			condition: models.Condition{Field: "name", Operator: models.OpGreaterThan, Value: 1},
			expected:  false,
		},
		{
			name:      "in list",
			condition: models.Condition{Field: "visitor_type", Operator: models.OpIn, Value: []interface{}{"FIRST_TIME", "RETURN"}},
			expected:  true,
		},
		{
			name:      "not in list",
			condition: models.Condition{Field: "visitor_type", Operator: models.OpNotIn, Value: []interface{}{"RETURN"}},
			expected:  true,
		},
		{
			name:      "not in fails on missing field",
			condition: models.Condition{Field: "missing", Operator: models.OpNotIn, Value: []interface{}{"x"}},
			expected:  false,
		},
		{
			name:      "exists on nested field",
			condition: models.Condition{Field: "member.email", Operator: models.OpExists},
			expected:  true,
		},
		{
			name:      "exists rejects empty string",
			condition: models.Condition{Field: "empty", Operator: models.OpExists},
			expected:  false,
		},
		{
			name:      "not exists on missing field",
			condition: models.Condition{Field: "member.phone", Operator: models.OpNotExists},
			expected:  true,
		},
		{
			name:      "date before",
			condition: models.Condition{Field: "joined_at", Operator: models.OpDateBefore, Value: "2026-04-01"},
			expected:  true,
		},
		{
			name:      "date after",
			condition: models.Condition{Field: "joined_at", Operator: models.OpDateAfter, Value: "2026-02-01"},
			expected:  true,
		},
		{
			name: "date between inclusive",
			condition: models.Condition{
				Field:    "joined_at",
				Operator: models.OpDateBetween,
				Value:    []interface{}{"2026-03-01", "2026-03-31"},
			},
			expected: true,
		},
		{
			name: "date between outside range",
			condition: models.Condition{
				Field:    "joined_at",
				Operator: models.OpDateBetween,
				Value:    []interface{}{"2026-04-01", "2026-04-30"},
			},
			expected: false,
		},
		{
			name:      "unknown operator fails closed",
			condition: models.Condition{Field: "name", Operator: "regex", Value: ".*"},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Evaluate([]models.Condition{tt.condition}, payload)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluateEmptyConditionsMatch(t *testing.T) {
	assert.True(t, Evaluate(nil, map[string]interface{}{"anything": 1}))
	assert.True(t, Evaluate([]models.Condition{}, nil))
}

func TestEvaluateLogicalOperatorMerge(t *testing.T) {
	payload := map[string]interface{}{
		"amount": float64(500),
		"method": "cash",
	}

	tests := []struct {
		name       string
		conditions []models.Condition
		expected   bool
	}{
		{
			name: "default AND requires both",
			conditions: []models.Condition{
				{Field: "amount", Operator: models.OpGreaterThan, Value: 100},
				{Field: "method", Operator: models.OpEquals, Value: "card"},
			},
			expected: false,
		},
		{
			name: "OR on second condition rescues the group",
			conditions: []models.Condition{
				{Field: "amount", Operator: models.OpGreaterThan, Value: 1000},
				{Field: "method", Operator: models.OpEquals, Value: "cash", Logical: models.LogicalOr},
			},
			expected: true,
		},
		{
			name: "first condition ignores its own operator",
			conditions: []models.Condition{
				{Field: "amount", Operator: models.OpGreaterThan, Value: 1000, Logical: models.LogicalOr},
			},
			expected: false,
		},
		{
			name: "mixed AND then OR evaluates left to right",
			conditions: []models.Condition{
				{Field: "amount", Operator: models.OpGreaterThan, Value: 100},
				{Field: "method", Operator: models.OpEquals, Value: "card"},
				{Field: "method", Operator: models.OpEquals, Value: "cash", Logical: models.LogicalOr},
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.conditions, payload))
		})
	}
}

func TestEvaluateGroupsCombineWithOr(t *testing.T) {
	payload := map[string]interface{}{
		"amount": float64(50),
		"method": "cash",
	}

	failing := models.Condition{GroupID: "g1", Field: "amount", Operator: models.OpGreaterThan, Value: 1000}
	passing := models.Condition{GroupID: "g2", Field: "method", Operator: models.OpEquals, Value: "cash"}

	assert.True(t, Evaluate([]models.Condition{failing, passing}, payload))
	assert.False(t, Evaluate([]models.Condition{failing}, payload))

	// Ungrouped conditions share one implicit group and still AND together.
	ungrouped := []models.Condition{
		{Field: "method", Operator: models.OpEquals, Value: "cash"},
		{Field: "amount", Operator: models.OpGreaterThan, Value: 1000},
	}
	assert.False(t, Evaluate(ungrouped, payload))
}

func TestLookup(t *testing.T) {
	payload := map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{
				"c": 42,
			},
		},
		"flat": "value",
	}

	value, found := Lookup(payload, "a.b.c")
	assert.True(t, found)
	assert.Equal(t, 42, value)

	value, found = Lookup(payload, "flat")
	assert.True(t, found)
	assert.Equal(t, "value", value)

	_, found = Lookup(payload, "a.b.missing")
	assert.False(t, found)

	// Traversal into a non-map value is absence, not an error.
	_, found = Lookup(payload, "flat.deeper")
	assert.False(t, found)

	_, found = Lookup(payload, "")
	assert.False(t, found)
}
