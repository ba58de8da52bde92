// Package engine contains the rule dispatch pipeline: trigger fan-out,
// approval gating, business-hours deferral, per-action retry/fallback,
// escalation, and the execution ledger.
package engine

import (
	"fmt"
	"time"
)

// Ledger reason strings for firings that stop before dispatch.
const (
	ReasonAlreadyExecuted = "already executed"
	ReasonConditionsNot   = "conditions not met"
	ReasonPendingApproval = "pending approval"
	ReasonOutsideHours    = "outside business hours"
	ReasonAllFailed       = "all actions failed"
	ReasonAcknowledged    = "acknowledged"
	ReasonEscalated       = "escalation triggered"
	ReasonRuleDeactivated = "rule deactivated"
)

// RuleValidationError marks a malformed rule definition. The dispatcher
// skips the rule and continues with the rest.
type RuleValidationError struct {
	RuleID string
	Cause  error
}

func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("rule %s is invalid: %v", e.RuleID, e.Cause)
}

func (e *RuleValidationError) Unwrap() error {
	return e.Cause
}

// BusinessHoursDeferral is a deferred state, not a failure: the firing
// is parked until ResumeAt and re-entered by the scheduler.
type BusinessHoursDeferral struct {
	RuleID   string
	ResumeAt time.Time
}

func (e *BusinessHoursDeferral) Error() string {
	return fmt.Sprintf("rule %s deferred outside business hours until %s", e.RuleID, e.ResumeAt.Format(time.RFC3339))
}

// ApprovalPending is a deferred state awaiting a human decision.
type ApprovalPending struct {
	RuleID     string
	ApprovalID string
}

func (e *ApprovalPending) Error() string {
	return fmt.Sprintf("rule %s suspended pending approval %s", e.RuleID, e.ApprovalID)
}

// ChannelsExhaustedError is terminal for one action: every retry on the
// primary channel and every fallback failed.
type ChannelsExhaustedError struct {
	ActionID string
	LastErr  error
}

func (e *ChannelsExhaustedError) Error() string {
	return fmt.Sprintf("action %s exhausted all channels: %v", e.ActionID, e.LastErr)
}

func (e *ChannelsExhaustedError) Unwrap() error {
	return e.LastErr
}

// EscalationTimeout reports an unacknowledged action past its deadline.
// It triggers an escalation notification without failing the action.
type EscalationTimeout struct {
	AcknowledgmentID string
	Escalations      int
}

func (e *EscalationTimeout) Error() string {
	return fmt.Sprintf("acknowledgment %s timed out, escalation %d", e.AcknowledgmentID, e.Escalations)
}
