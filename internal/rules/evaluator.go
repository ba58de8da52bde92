package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"church-automation/internal/models"
)

// Evaluate reports whether the condition set matches the payload.
//
// Conditions are partitioned by group ID (ungrouped conditions form one
// default group). Within a group the first condition seeds an
// accumulator and each subsequent condition merges into it using that
// condition's own logical operator (AND by default). Groups combine
// with OR; a single group's result is returned directly. An empty
// condition set always matches.
func Evaluate(conditions []models.Condition, payload map[string]interface{}) bool {
	if len(conditions) == 0 {
		return true
	}

	groupOrder := make([]string, 0)
	groups := make(map[string][]models.Condition)
	for _, c := range conditions {
		key := c.GroupID
		if key == "" {
			key = "default"
		}
		if _, seen := groups[key]; !seen {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], c)
	}

	if len(groupOrder) == 1 {
		return evaluateGroup(groups[groupOrder[0]], payload)
	}

	for _, key := range groupOrder {
		if evaluateGroup(groups[key], payload) {
			return true
		}
	}
	return false
}

func evaluateGroup(conditions []models.Condition, payload map[string]interface{}) bool {
	result := true
	for i, c := range conditions {
		conditionResult := evaluateCondition(c, payload)
		if i == 0 {
			result = conditionResult
			continue
		}
		if c.Logical == models.LogicalOr {
			result = result || conditionResult
		} else {
			result = result && conditionResult
		}
	}
	return result
}

func evaluateCondition(c models.Condition, payload map[string]interface{}) bool {
	fieldValue, found := Lookup(payload, c.Field)

	switch c.Operator {
	case models.OpExists:
		return found && !isEmpty(fieldValue)
	case models.OpNotExists:
		return !found || isEmpty(fieldValue)
	}

	switch c.Operator {
	case models.OpEquals:
		return found && valuesEqual(fieldValue, c.Value)

	case models.OpNotEquals:
		return !found || !valuesEqual(fieldValue, c.Value)

	case models.OpContains:
		return found && strings.Contains(
			strings.ToLower(stringify(fieldValue)),
			strings.ToLower(stringify(c.Value)))

	case models.OpNotContains:
		return !found || !strings.Contains(
			strings.ToLower(stringify(fieldValue)),
			strings.ToLower(stringify(c.Value)))

	case models.OpGreaterThan, models.OpLessThan,
		models.OpGreaterOrEqual, models.OpLessOrEqual:
		if !found {
			return false
		}
		left, lerr := toFloat64(fieldValue)
		right, rerr := toFloat64(c.Value)
		if lerr != nil || rerr != nil {
			return false
		}
		switch c.Operator {
		case models.OpGreaterThan:
			return left > right
		case models.OpLessThan:
			return left < right
		case models.OpGreaterOrEqual:
			return left >= right
		default:
			return left <= right
		}

	case models.OpIn:
		return found && sequenceContains(c.Value, fieldValue)

	case models.OpNotIn:
		if !found {
			return false
		}
		return !sequenceContains(c.Value, fieldValue)

	case models.OpDateBefore:
		left, right, ok := datePair(fieldValue, c.Value, found)
		return ok && left.Before(right)

	case models.OpDateAfter:
		left, right, ok := datePair(fieldValue, c.Value, found)
		return ok && left.After(right)

	case models.OpDateBetween:
		if !found {
			return false
		}
		bounds, ok := c.Value.([]interface{})
		if !ok || len(bounds) != 2 {
			return false
		}
		fieldDate, err := toTime(fieldValue)
		if err != nil {
			return false
		}
		start, serr := toTime(bounds[0])
		end, eerr := toTime(bounds[1])
		if serr != nil || eerr != nil {
			return false
		}
		return !fieldDate.Before(start) && !fieldDate.After(end)

	default:
		return false
	}
}

// valuesEqual compares via string rendering so JSON-decoded numbers
// (always float64) compare equal to configured integer values.
func valuesEqual(a, b interface{}) bool {
	if af, aerr := toFloat64(a); aerr == nil {
		if bf, berr := toFloat64(b); berr == nil {
			return af == bf
		}
	}
	return stringify(a) == stringify(b)
}

func sequenceContains(seq, value interface{}) bool {
	switch items := seq.(type) {
	case []interface{}:
		for _, item := range items {
			if valuesEqual(item, value) {
				return true
			}
		}
	case []string:
		for _, item := range items {
			if valuesEqual(item, value) {
				return true
			}
		}
	}
	return false
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}

// dateFormats are tried in order when parsing condition values.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range dateFormats {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", v)
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot parse %T as a timestamp", value)
	}
}

func datePair(fieldValue, conditionValue interface{}, found bool) (time.Time, time.Time, bool) {
	if !found {
		return time.Time{}, time.Time{}, false
	}
	left, lerr := toTime(fieldValue)
	right, rerr := toTime(conditionValue)
	if lerr != nil || rerr != nil {
		return time.Time{}, time.Time{}, false
	}
	return left, right, true
}
