package models

import (
	"time"
)

// Operator is a closed set of condition operators. Rules carrying an
// unknown operator are rejected at load time, not at dispatch time.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpExists         Operator = "exists"
	OpNotExists      Operator = "not_exists"
	OpDateBefore     Operator = "date_before"
	OpDateAfter      Operator = "date_after"
	OpDateBetween    Operator = "date_between"
)

// LogicalOperator controls how a condition's result merges into the
// running result of its group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Condition tests one dot-path field of the trigger payload. Conditions
// sharing a GroupID are combined left-to-right using each condition's own
// Logical operator; distinct groups are OR'd together.
type Condition struct {
	Field   string          `json:"field"`
	Operator Operator        `json:"operator"`
	Value   interface{}     `json:"value,omitempty"`
	Logical LogicalOperator `json:"logicalOperator,omitempty"`
	GroupID string          `json:"groupId,omitempty"`
}

// ActionType is a closed set of action kinds, each mapping to a delivery
// channel (or an internal operation for follow-up creation).
type ActionType string

const (
	ActionSendEmail         ActionType = "send_email"
	ActionSendSMS           ActionType = "send_sms"
	ActionSendWhatsApp      ActionType = "send_whatsapp"
	ActionSendPush          ActionType = "send_push"
	ActionSchedulePhoneCall ActionType = "schedule_phone_call"
	ActionNotifyStaff       ActionType = "notify_staff"
	ActionCreateFollowUp    ActionType = "create_follow_up"
)

// Action is one step of a rule. Configuration is channel-specific and may
// contain {{field.path}} template placeholders resolved against the
// trigger payload at dispatch time.
type Action struct {
	ID            string                 `json:"id"`
	Type          ActionType             `json:"type"`
	Configuration map[string]interface{} `json:"configuration"`
	DelaySeconds  int                    `json:"delay_seconds"`
	OrderIndex    int                    `json:"order_index"`
}

// RequiresAcknowledgment reports whether the action represents a request
// for a human response and is therefore subject to escalation.
func (a Action) RequiresAcknowledgment() bool {
	return a.Type == ActionSchedulePhoneCall || a.Type == ActionNotifyStaff
}

// RetryConfig controls retries on an action's primary channel.
type RetryConfig struct {
	MaxRetries        int     `json:"max_retries"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	InitialDelayMs    int     `json:"initial_delay_ms"`
}

// Delay returns the backoff delay before the attempt following the given
// attempt number (1-based): initialDelay * multiplier^(attempt-1).
func (rc RetryConfig) Delay(attempt int) time.Duration {
	delay := float64(rc.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delay *= rc.BackoffMultiplier
	}
	return time.Duration(delay) * time.Millisecond
}

// BusinessHoursConfig describes the timezone-aware window in which
// non-urgent actions may dispatch.
type BusinessHoursConfig struct {
	Timezone          string `json:"timezone"`
	DaysOfWeek        []int  `json:"days_of_week"` // 0=Sunday .. 6=Saturday
	StartTime         string `json:"start_time"`   // "09:00"
	EndTime           string `json:"end_time"`     // "18:00"
	DeferOutsideHours bool   `json:"defer_outside_hours"`
}

// EscalationConfig controls supervisor notification when an
// acknowledgment-requiring action gets no response.
type EscalationConfig struct {
	Enabled              bool     `json:"enabled"`
	EscalateAfterMinutes int      `json:"escalate_after_minutes"`
	EscalateTo           string   `json:"escalate_to,omitempty"` // staff ID or role
	NotifyAllPastors     bool     `json:"notify_all_pastors"`
	EscalationPriority   Priority `json:"escalation_priority,omitempty"`
	MaxEscalations       int      `json:"max_escalations"`
}

// AutomationRule is a named, church-scoped configuration of triggers,
// conditions and actions.
type AutomationRule struct {
	ID           string        `json:"id"`
	ChurchID     string        `json:"church_id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	TriggerTypes []TriggerType `json:"trigger_types"`
	Conditions   []Condition   `json:"conditions"`
	Actions      []Action      `json:"actions"`

	Priority       int  `json:"priority"`
	IsActive       bool `json:"is_active"`
	BypassApproval bool `json:"bypass_approval"`
	UrgentMode24x7 bool `json:"urgent_mode_24x7"`

	RetryConfig      *RetryConfig         `json:"retry_config,omitempty"`
	FallbackChannels []ChannelType        `json:"fallback_channels,omitempty"`
	BusinessHours    *BusinessHoursConfig `json:"business_hours,omitempty"`
	Escalation       *EscalationConfig    `json:"escalation,omitempty"`

	CreateManualTaskOnFail bool `json:"create_manual_task_on_fail"`

	// MaxExecutions caps total firings; zero means unlimited.
	MaxExecutions  int        `json:"max_executions"`
	ExecuteOnce    bool       `json:"execute_once"`
	ExecutionCount int        `json:"execution_count"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RespondsTo reports whether the rule's trigger set contains the type.
func (r *AutomationRule) RespondsTo(t TriggerType) bool {
	for _, tt := range r.TriggerTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// Exhausted reports whether the rule's execution budget is spent.
func (r *AutomationRule) Exhausted() bool {
	if r.ExecuteOnce && r.ExecutionCount > 0 {
		return true
	}
	if r.MaxExecutions > 0 && r.ExecutionCount >= r.MaxExecutions {
		return true
	}
	return false
}
