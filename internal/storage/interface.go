// Package storage defines the persistence ports consumed by the
// automation engine. Adapters exist for SQLite and PostgreSQL.
package storage

import (
	"context"
	"time"

	"church-automation/internal/models"
)

// Storage aggregates every store the engine depends on. A single
// interface keeps wiring simple; test doubles live in internal/testutil.
type Storage interface {
	Close() error
	Health() error

	RuleStore
	ExecutionStore
	ApprovalStore
	ManualTaskStore
	FollowUpStore
	AcknowledgmentStore
	DeferredFiringStore
	StaffDirectory
	MemberDirectory
	NotificationStore
}

// RuleStore persists automation rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *models.AutomationRule) error
	GetRule(ctx context.Context, id string) (*models.AutomationRule, error)
	UpdateRule(ctx context.Context, rule *models.AutomationRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context, churchID string) ([]*models.AutomationRule, error)

	// FindActiveRules returns active rules for the church whose trigger
	// set contains the type, ordered by priority descending with
	// creation time then ID ascending as tie-breaks. Exhausted rules are
	// included; the engine records the refusal.
	FindActiveRules(ctx context.Context, churchID string, triggerType models.TriggerType) ([]*models.AutomationRule, error)

	// ReserveExecution atomically increments the rule's execution count
	// and stamps last_executed_at, refusing when the budget is already
	// spent. Returns false without error when the reservation is denied.
	ReserveExecution(ctx context.Context, ruleID string, now time.Time) (bool, error)
}

// ExecutionStore persists the execution ledger.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, rec *models.ExecutionRecord) error
	// CompleteExecution sets the final status, reason, action results and
	// completion time. Records that already carry a completion time are
	// left untouched.
	CompleteExecution(ctx context.Context, rec *models.ExecutionRecord) error
	// UpdateExecutionResults replaces the per-action results of a still
	// running record without completing it.
	UpdateExecutionResults(ctx context.Context, id string, results []models.ActionResult) error
	GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error)
	ListExecutions(ctx context.Context, churchID string, limit, offset int) ([]*models.ExecutionRecord, error)
	ListExecutionsByRule(ctx context.Context, ruleID string, limit, offset int) ([]*models.ExecutionRecord, error)
}

// ApprovalStore persists pending human decisions.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, rec *models.ApprovalRecord) error
	GetApproval(ctx context.Context, id string) (*models.ApprovalRecord, error)
	ListPendingApprovals(ctx context.Context, churchID string) ([]*models.ApprovalRecord, error)

	// TransitionApproval moves a pending approval to approved or
	// rejected. Returns false when the record was not pending, making a
	// second decision a detectable no-op.
	TransitionApproval(ctx context.Context, id string, status models.ApprovalStatus, decidedBy string, at time.Time) (bool, error)
}

// ManualTaskStore persists human fallback tasks.
type ManualTaskStore interface {
	CreateManualTask(ctx context.Context, task *models.ManualTask) error
	ListManualTasks(ctx context.Context, churchID string, limit, offset int) ([]*models.ManualTask, error)
}

// FollowUpStore persists scheduled follow-up tasks.
type FollowUpStore interface {
	CreateFollowUp(ctx context.Context, task *models.FollowUpTask) error
	ListFollowUps(ctx context.Context, churchID string, limit, offset int) ([]*models.FollowUpTask, error)

	// ListDueFollowUps returns pending, not yet notified tasks whose
	// scheduled time is at or before the given instant.
	ListDueFollowUps(ctx context.Context, now time.Time) ([]*models.FollowUpTask, error)
	// MarkFollowUpNotified claims a task for trigger emission. Returns
	// false when it was already claimed.
	MarkFollowUpNotified(ctx context.Context, id string) (bool, error)
}

// AcknowledgmentStore tracks dispatched actions awaiting human response.
type AcknowledgmentStore interface {
	CreateAcknowledgment(ctx context.Context, ack *models.Acknowledgment) error
	GetAcknowledgment(ctx context.Context, id string) (*models.Acknowledgment, error)

	// Acknowledge marks the entry acknowledged; returns false when it was
	// already acknowledged.
	Acknowledge(ctx context.Context, id, byStaffID string, at time.Time) (bool, error)

	// ListDueEscalations returns unacknowledged entries whose next
	// escalation time is at or before the given instant.
	ListDueEscalations(ctx context.Context, now time.Time) ([]*models.Acknowledgment, error)

	// RecordEscalation bumps the escalation count and sets (or clears)
	// the next escalation time.
	RecordEscalation(ctx context.Context, id string, count int, next *time.Time) error
}

// DeferredFiringStore parks firings deferred outside business hours.
type DeferredFiringStore interface {
	CreateDeferredFiring(ctx context.Context, f *models.DeferredFiring) error
	// ListDueDeferredFirings returns unprocessed firings whose resume
	// time is at or before the given instant.
	ListDueDeferredFirings(ctx context.Context, now time.Time) ([]*models.DeferredFiring, error)
	// MarkDeferredProcessed flags a firing so it is resumed exactly once.
	// Returns false when it was already processed.
	MarkDeferredProcessed(ctx context.Context, id string) (bool, error)
}

// StaffDirectory resolves approvers, escalation targets and task
// assignees.
type StaffDirectory interface {
	CreateStaff(ctx context.Context, s *models.Staff) error
	// FindStaff returns active staff for the church holding any of the
	// given roles, ordered by creation time then ID for deterministic
	// assignment.
	FindStaff(ctx context.Context, churchID string, roles []string) ([]*models.Staff, error)
}

// MemberDirectory holds the member records behind the scheduled date
// triggers.
type MemberDirectory interface {
	CreateMember(ctx context.Context, m *models.Member) error
	ListMembers(ctx context.Context, churchID string, limit, offset int) ([]*models.Member, error)

	// ListMembersWithBirthday returns active members across all churches
	// whose birth date falls on the given month and day.
	ListMembersWithBirthday(ctx context.Context, month time.Month, day int) ([]*models.Member, error)
	// ListMembersWithAnniversary is the same query over the anniversary
	// date.
	ListMembersWithAnniversary(ctx context.Context, month time.Month, day int) ([]*models.Member, error)
}

// Notification is an in-app notification produced by the push channel.
type Notification struct {
	ID        string                 `json:"id"`
	ChurchID  string                 `json:"church_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Role      string                 `json:"role,omitempty"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Priority  models.Priority        `json:"priority,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NotificationStore persists in-app notifications for push delivery.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, churchID string, limit, offset int) ([]*Notification, error)
}
