package models

import (
	"time"
)

// ExecutionStatus is the lifecycle state of one rule firing.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionSuccess   ExecutionStatus = "SUCCESS"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionEscalated ExecutionStatus = "ESCALATED"
)

// ActionResult records the outcome of one action within a firing.
type ActionResult struct {
	ActionID     string      `json:"action_id"`
	ActionType   ActionType  `json:"action_type"`
	ChannelUsed  ChannelType `json:"channel_used,omitempty"`
	Attempts     int         `json:"attempts"`
	FallbackUsed bool        `json:"fallback_used"`
	Success      bool        `json:"success"`
	Error        string      `json:"error,omitempty"`
}

// ExecutionRecord is the audit entry for one rule firing. It is created
// in RUNNING state and becomes immutable once CompletedAt is set.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	RuleID        string          `json:"rule_id"`
	ChurchID      string          `json:"church_id"`
	TriggerEvent  TriggerEvent    `json:"trigger_event"`
	Status        ExecutionStatus `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	ActionResults []ActionResult  `json:"action_results,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// ApprovalStatus is the state of a pending human decision.
type ApprovalStatus string

const (
	ApprovalPendingStatus ApprovalStatus = "pending"
	ApprovalApproved      ApprovalStatus = "approved"
	ApprovalRejected      ApprovalStatus = "rejected"
)

// ApprovalRecord links a suspended rule firing to a pending human
// decision. It transitions out of pending exactly once.
type ApprovalRecord struct {
	ID           string         `json:"id"`
	RuleID       string         `json:"rule_id"`
	ExecutionID  string         `json:"execution_id"`
	ChurchID     string         `json:"church_id"`
	Status       ApprovalStatus `json:"status"`
	AssignedTo   string         `json:"assigned_to"`
	DecidedBy    string         `json:"decided_by,omitempty"`
	TriggerEvent TriggerEvent   `json:"trigger_event"`
	CreatedAt    time.Time      `json:"created_at"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
}

// ManualTask is the human fallback created when every automated channel
// for an action is exhausted. Once created it belongs to staff workflow,
// not to the engine.
type ManualTask struct {
	ID           string                 `json:"id"`
	ChurchID     string                 `json:"church_id"`
	RuleID       string                 `json:"rule_id"`
	ActionID     string                 `json:"action_id"`
	Reason       string                 `json:"reason"`
	ActionConfig map[string]interface{} `json:"action_config,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	AssignedTo   string                 `json:"assigned_to,omitempty"`
	Priority     Priority               `json:"priority"`
	Status       string                 `json:"status"` // pending, done
	CreatedAt    time.Time              `json:"created_at"`
}

// FollowUpTask is a scheduled human follow-up produced by the
// create_follow_up action.
type FollowUpTask struct {
	ID           string    `json:"id"`
	ChurchID     string    `json:"church_id"`
	FollowUpType string    `json:"follow_up_type"`
	Notes        string    `json:"notes,omitempty"`
	AssignedTo   string    `json:"assigned_to,omitempty"`
	Priority     Priority  `json:"priority"`
	Status       string    `json:"status"` // pending, done
	ScheduledAt  time.Time `json:"scheduled_at"`
	// Notified flags that a FOLLOW_UP_DUE trigger has been emitted for
	// this task, so the daily sweep fires it at most once.
	Notified  bool      `json:"notified"`
	CreatedAt time.Time `json:"created_at"`
}

// Acknowledgment tracks a dispatched action awaiting human response.
// The escalation manager sweeps unacknowledged entries past their due
// time and notifies supervisors.
type Acknowledgment struct {
	ID               string     `json:"id"`
	ChurchID         string     `json:"church_id"`
	RuleID           string     `json:"rule_id"`
	ExecutionID      string     `json:"execution_id"`
	ActionID         string     `json:"action_id"`
	RequestedAt      time.Time  `json:"requested_at"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy   string     `json:"acknowledged_by,omitempty"`
	EscalationCount  int        `json:"escalation_count"`
	NextEscalationAt *time.Time `json:"next_escalation_at,omitempty"`
}

// DeferredFiring is a rule firing parked outside business hours. The
// engine only records the deferral; the scheduler re-enters the pipeline
// at the start of the next valid window.
type DeferredFiring struct {
	ID           string       `json:"id"`
	RuleID       string       `json:"rule_id"`
	ChurchID     string       `json:"church_id"`
	ExecutionID  string       `json:"execution_id"`
	TriggerEvent TriggerEvent `json:"trigger_event"`
	ResumeAt     time.Time    `json:"resume_at"`
	Processed    bool         `json:"processed"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Staff is a member of the church staff directory.
type Staff struct {
	ID        string    `json:"id"`
	ChurchID  string    `json:"church_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"` // PASTOR, ADMIN, STAFF
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
