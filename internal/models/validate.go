package models

import (
	"fmt"
)

var validOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true,
	OpContains: true, OpNotContains: true,
	OpGreaterThan: true, OpLessThan: true,
	OpGreaterOrEqual: true, OpLessOrEqual: true,
	OpIn: true, OpNotIn: true,
	OpExists: true, OpNotExists: true,
	OpDateBefore: true, OpDateAfter: true, OpDateBetween: true,
}

var validActionTypes = map[ActionType]bool{
	ActionSendEmail: true, ActionSendSMS: true, ActionSendWhatsApp: true,
	ActionSendPush: true, ActionSchedulePhoneCall: true,
	ActionNotifyStaff: true, ActionCreateFollowUp: true,
}

var validChannels = map[ChannelType]bool{
	ChannelEmail: true, ChannelSMS: true, ChannelWhatsApp: true,
	ChannelPush: true, ChannelPhone: true,
}

// ValidationError describes a malformed rule field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// ValidOperator reports whether op belongs to the supported operator set.
func ValidOperator(op Operator) bool {
	return validOperators[op]
}

// ValidActionType reports whether t belongs to the supported action set.
func ValidActionType(t ActionType) bool {
	return validActionTypes[t]
}

// Validate checks the rule definition for structural problems. Rules are
// validated when stored and again when loaded so a malformed rule is
// skipped (and logged) instead of failing mid-dispatch.
func (r *AutomationRule) Validate() error {
	if r.ID == "" {
		return ValidationError{Field: "id", Message: "rule ID is required"}
	}
	if r.Name == "" {
		return ValidationError{Field: "name", Message: "rule name is required"}
	}
	if r.ChurchID == "" {
		return ValidationError{Field: "church_id", Message: "church ID is required"}
	}
	if len(r.TriggerTypes) == 0 {
		return ValidationError{Field: "trigger_types", Message: "must respond to at least one trigger type"}
	}
	if len(r.Actions) == 0 {
		return ValidationError{Field: "actions", Message: "must have at least one action"}
	}

	for i, c := range r.Conditions {
		if err := c.validate(); err != nil {
			return fmt.Errorf("condition %d is invalid: %w", i, err)
		}
	}
	for i, a := range r.Actions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("action %d is invalid: %w", i, err)
		}
	}

	if rc := r.RetryConfig; rc != nil {
		if rc.MaxRetries < 1 {
			return ValidationError{Field: "retry_config.max_retries", Message: "must be at least 1"}
		}
		if rc.BackoffMultiplier < 1 {
			return ValidationError{Field: "retry_config.backoff_multiplier", Message: "must be at least 1"}
		}
		if rc.InitialDelayMs < 0 {
			return ValidationError{Field: "retry_config.initial_delay_ms", Message: "must not be negative"}
		}
	}

	for _, ch := range r.FallbackChannels {
		if !validChannels[ch] {
			return ValidationError{Field: "fallback_channels", Message: fmt.Sprintf("unsupported channel: %s", ch)}
		}
	}

	if bh := r.BusinessHours; bh != nil {
		if bh.Timezone == "" {
			return ValidationError{Field: "business_hours.timezone", Message: "timezone is required"}
		}
		for _, d := range bh.DaysOfWeek {
			if d < 0 || d > 6 {
				return ValidationError{Field: "business_hours.days_of_week", Message: fmt.Sprintf("invalid day: %d", d)}
			}
		}
		if !validClockTime(bh.StartTime) || !validClockTime(bh.EndTime) {
			return ValidationError{Field: "business_hours", Message: "start/end must be HH:MM"}
		}
	}

	if esc := r.Escalation; esc != nil && esc.Enabled {
		if esc.EscalateTo == "" && !esc.NotifyAllPastors {
			return ValidationError{Field: "escalation", Message: "escalate_to or notify_all_pastors is required"}
		}
		if esc.MaxEscalations < 0 {
			return ValidationError{Field: "escalation.max_escalations", Message: "must not be negative"}
		}
	}

	if r.MaxExecutions < 0 {
		return ValidationError{Field: "max_executions", Message: "must not be negative"}
	}

	return nil
}

func (c Condition) validate() error {
	if c.Field == "" && c.Operator != OpExists && c.Operator != OpNotExists {
		return ValidationError{Field: "field", Message: "condition field is required"}
	}
	if !validOperators[c.Operator] {
		return ValidationError{Field: "operator", Message: fmt.Sprintf("unsupported operator: %s", c.Operator)}
	}
	switch c.Operator {
	case OpIn, OpNotIn:
		if _, ok := c.Value.([]interface{}); !ok {
			if _, ok := c.Value.([]string); !ok {
				return ValidationError{Field: "value", Message: "in/not_in require a sequence value"}
			}
		}
	case OpDateBetween:
		seq, ok := c.Value.([]interface{})
		if !ok || len(seq) != 2 {
			return ValidationError{Field: "value", Message: "date_between requires a two-element sequence"}
		}
	}
	if c.Logical != "" && c.Logical != LogicalAnd && c.Logical != LogicalOr {
		return ValidationError{Field: "logicalOperator", Message: fmt.Sprintf("unsupported logical operator: %s", c.Logical)}
	}
	return nil
}

func (a Action) validate() error {
	if !validActionTypes[a.Type] {
		return ValidationError{Field: "type", Message: fmt.Sprintf("unsupported action type: %s", a.Type)}
	}
	if a.DelaySeconds < 0 {
		return ValidationError{Field: "delay_seconds", Message: "must not be negative"}
	}
	return nil
}

// validClockTime accepts "HH:MM" with 24-hour values.
func validClockTime(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	for _, c := range []byte{s[0], s[1], s[3], s[4]} {
		if c < '0' || c > '9' {
			return false
		}
	}
	return h >= 0 && h < 24 && m >= 0 && m < 60
}
