package engine

import (
	"context"
	"fmt"
	"time"

	"church-automation/internal/common/logging"
	"church-automation/internal/models"
)

// SweepEscalations notifies supervisors about unacknowledged actions
// past their deadline. Invoked periodically by the cron scheduler.
func (e *Engine) SweepEscalations(ctx context.Context) {
	now := e.clock.Now().UTC()
	due, err := e.store.ListDueEscalations(ctx, now)
	if err != nil {
		e.logger.Error("failed to list due escalations", err)
		return
	}
	for _, ack := range due {
		e.escalate(ctx, ack, now)
	}
}

func (e *Engine) escalate(ctx context.Context, ack *models.Acknowledgment, now time.Time) {
	rule, err := e.store.GetRule(ctx, ack.RuleID)
	if err != nil || rule.Escalation == nil || !rule.Escalation.Enabled {
		// Orphaned entry; stop sweeping it.
		if rerr := e.store.RecordEscalation(ctx, ack.ID, ack.EscalationCount, nil); rerr != nil {
			e.logger.Error("failed to retire acknowledgment", rerr, logging.String("ack_id", ack.ID))
		}
		return
	}
	esc := rule.Escalation
	count := ack.EscalationCount + 1

	timeout := &EscalationTimeout{AcknowledgmentID: ack.ID, Escalations: count}
	e.logger.Warn("acknowledgment overdue, escalating",
		logging.String("rule_id", rule.ID),
		logging.String("ack_id", ack.ID),
		logging.Int("escalation", count),
		logging.String("detail", timeout.Error()))

	e.notifyEscalation(ctx, rule, ack, count)

	if count == 1 {
		// First escalation flips the still-running ledger entry.
		if rec, err := e.store.GetExecution(ctx, ack.ExecutionID); err == nil && rec.CompletedAt == nil {
			e.complete(ctx, rec, models.ExecutionEscalated, ReasonEscalated)
		}
	}

	maxEscalations := esc.MaxEscalations
	if maxEscalations <= 0 {
		maxEscalations = 1
	}
	var next *time.Time
	if count < maxEscalations {
		// Each repeat waits longer than the last.
		base := e.escalationDelay(rule, models.PriorityNormal)
		t := now.Add(base * time.Duration(count+1))
		next = &t
	}
	if err := e.store.RecordEscalation(ctx, ack.ID, count, next); err != nil {
		e.logger.Error("failed to record escalation", err, logging.String("ack_id", ack.ID))
	}
}

// notifyEscalation pushes the overdue notice to the configured target:
// a specific staff member or role, or every pastor.
func (e *Engine) notifyEscalation(ctx context.Context, rule *models.AutomationRule, ack *models.Acknowledgment, count int) {
	push, ok := e.registry.Get(models.ChannelPush)
	if !ok {
		return
	}
	esc := rule.Escalation

	to := models.Recipient{Role: "PASTOR"}
	switch {
	case esc.NotifyAllPastors:
	case esc.EscalateTo == "PASTOR" || esc.EscalateTo == "ADMIN" || esc.EscalateTo == "STAFF":
		to = models.Recipient{Role: esc.EscalateTo}
	case esc.EscalateTo != "":
		to = models.Recipient{UserID: esc.EscalateTo}
	}

	priority := esc.EscalationPriority
	if priority == "" {
		priority = models.PriorityHigh
	}

	msg := models.Message{
		ChurchID: rule.ChurchID,
		To:       to,
		Subject:  "Unacknowledged automation action",
		Body: fmt.Sprintf("Rule %q dispatched an action requiring a response that is still unacknowledged (escalation %d).",
			rule.Name, count),
		Priority: priority,
		Meta: map[string]interface{}{
			"rule_id":          rule.ID,
			"execution_id":     ack.ExecutionID,
			"action_id":        ack.ActionID,
			"escalation_count": count,
		},
	}
	if err := push.Send(ctx, msg); err != nil {
		e.logger.Warn("failed to deliver escalation notification",
			logging.String("ack_id", ack.ID),
			logging.String("error", err.Error()))
	}
}
