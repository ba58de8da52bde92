package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"church-automation/internal/channels"
	"church-automation/internal/common/errors"
	"church-automation/internal/common/logging"
	"church-automation/internal/common/utils"
	"church-automation/internal/hours"
	"church-automation/internal/models"
	"church-automation/internal/rules"
	"church-automation/internal/storage"
)

// EscalationDelays maps priority tiers to default escalation delays.
// LOW priority never escalates.
type EscalationDelays struct {
	Urgent time.Duration
	High   time.Duration
	Normal time.Duration
}

// DefaultEscalationDelays returns the stock priority/delay mapping.
func DefaultEscalationDelays() EscalationDelays {
	return EscalationDelays{
		Urgent: 15 * time.Minute,
		High:   2 * time.Hour,
		Normal: 24 * time.Hour,
	}
}

// Options configures an Engine.
type Options struct {
	ChannelTimeout   time.Duration
	EscalationDelays EscalationDelays
	Logger           logging.Logger
}

// Engine is the automation dispatcher. It is a stateless service over
// injected collaborators; all firing state lives in storage.
type Engine struct {
	store       storage.Storage
	registry    *channels.Registry
	coordinator *Coordinator
	gate        *hours.Gate
	clock       hours.Clock
	logger      logging.Logger
	delays      EscalationDelays

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine wires the dispatcher. The engine owns a lifecycle context:
// Shutdown cancels it, stopping scheduled retries while letting
// in-flight attempts finish.
func NewEngine(store storage.Storage, registry *channels.Registry, clock hours.Clock, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	delays := opts.EscalationDelays
	if delays == (EscalationDelays{}) {
		delays = DefaultEscalationDelays()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:       store,
		registry:    registry,
		coordinator: NewCoordinator(registry, opts.ChannelTimeout, logger),
		gate:        hours.NewGate(clock),
		clock:       clock,
		logger:      logger,
		delays:      delays,
		ctx:         ctx,
		cancel:      cancel,
	}
	e.coordinator.ruleActive = e.ruleStillActive
	return e
}

// ruleStillActive re-reads the rule between retry attempts so that
// deactivating a rule stops its scheduled retries. The in-flight
// attempt is allowed to finish; a storage read failure keeps the
// ladder going rather than abandoning a deliverable message.
func (e *Engine) ruleStillActive(ctx context.Context, ruleID string) bool {
	rule, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return true
	}
	return rule.IsActive
}

// Shutdown stops new work, cancels pending backoff waits, and blocks
// until running pipelines return.
func (e *Engine) Shutdown() {
	e.cancel()
	e.wg.Wait()
}

// Wait blocks until all in-flight pipelines finish. Tests use it to
// observe asynchronous firings deterministically.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// ProcessTrigger fans the event out to every matching rule, one
// goroutine per rule. It never returns an error to the producer; all
// failure surfaces through the ledger, manual tasks and logs.
func (e *Engine) ProcessTrigger(ctx context.Context, event models.TriggerEvent) {
	if event.ID == "" {
		event.ID = utils.GenerateEventID(string(event.Type), event.EntityID)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock.Now().UTC()
	}

	matched, err := e.store.FindActiveRules(ctx, event.ChurchID, event.Type)
	if err != nil {
		e.logger.Error("failed to load rules for trigger", err,
			logging.String("church_id", event.ChurchID),
			logging.String("trigger_type", string(event.Type)))
		return
	}
	if len(matched) == 0 {
		return
	}

	e.logger.Info("trigger received",
		logging.String("event_id", event.ID),
		logging.String("trigger_type", string(event.Type)),
		logging.String("church_id", event.ChurchID),
		logging.Int("matching_rules", len(matched)))

	for _, rule := range matched {
		rule := rule
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer e.recoverPipeline(rule.ID, event.ID)
			e.runPipeline(e.ctx, rule, event)
		}()
	}
}

func (e *Engine) recoverPipeline(ruleID, eventID string) {
	if r := recover(); r != nil {
		e.logger.Error("rule pipeline panicked", errors.InternalError("pipeline panic", nil),
			logging.String("rule_id", ruleID),
			logging.String("event_id", eventID),
			logging.Any("panic", r))
	}
}

// runPipeline executes one rule against one event: cap check, condition
// evaluation, approval gate, then the business-hours gate and actions.
func (e *Engine) runPipeline(ctx context.Context, rule *models.AutomationRule, event models.TriggerEvent) {
	rec := e.openRecord(ctx, rule, event)
	if rec == nil {
		return
	}

	if err := rule.Validate(); err != nil {
		verr := &RuleValidationError{RuleID: rule.ID, Cause: err}
		e.logger.Warn("skipping invalid rule", logging.String("rule_id", rule.ID), logging.String("error", verr.Error()))
		e.complete(ctx, rec, models.ExecutionFailed, verr.Error())
		return
	}

	if rule.Exhausted() {
		e.complete(ctx, rec, models.ExecutionFailed, ReasonAlreadyExecuted)
		return
	}

	if !rules.Evaluate(rule.Conditions, event.Payload) {
		e.complete(ctx, rec, models.ExecutionFailed, ReasonConditionsNot)
		return
	}

	if !rule.BypassApproval {
		e.suspendForApproval(ctx, rule, event, rec)
		return
	}

	e.continueFromHoursGate(ctx, rule, event, rec)
}

// suspendForApproval parks the firing behind a pending ApprovalRecord
// assigned to the first eligible pastor or admin.
func (e *Engine) suspendForApproval(ctx context.Context, rule *models.AutomationRule, event models.TriggerEvent, rec *models.ExecutionRecord) {
	now := e.clock.Now().UTC()
	approval := &models.ApprovalRecord{
		ID:           utils.NewID(),
		RuleID:       rule.ID,
		ExecutionID:  rec.ID,
		ChurchID:     rule.ChurchID,
		Status:       models.ApprovalPendingStatus,
		TriggerEvent: event,
		CreatedAt:    now,
	}

	approvers, err := e.store.FindStaff(ctx, rule.ChurchID, []string{"PASTOR", "ADMIN"})
	if err != nil {
		e.logger.Warn("failed to resolve approver pool",
			logging.String("rule_id", rule.ID),
			logging.String("error", err.Error()))
	}
	if len(approvers) > 0 {
		approval.AssignedTo = approvers[0].ID
	}

	if err := e.store.CreateApproval(ctx, approval); err != nil {
		e.logger.Error("failed to create approval", err, logging.String("rule_id", rule.ID))
		e.complete(ctx, rec, models.ExecutionFailed, "failed to create approval")
		return
	}
	e.complete(ctx, rec, models.ExecutionFailed, ReasonPendingApproval)

	e.notifyApprover(ctx, rule, approval)

	e.logger.Info("firing suspended pending approval",
		logging.String("rule_id", rule.ID),
		logging.String("approval_id", approval.ID),
		logging.String("assigned_to", approval.AssignedTo))
}

// notifyApprover pushes an in-app notification to the assigned
// approver. Best effort; a failure only logs.
func (e *Engine) notifyApprover(ctx context.Context, rule *models.AutomationRule, approval *models.ApprovalRecord) {
	push, ok := e.registry.Get(models.ChannelPush)
	if !ok {
		return
	}
	to := models.Recipient{UserID: approval.AssignedTo}
	if approval.AssignedTo == "" {
		to = models.Recipient{Role: "PASTOR"}
	}
	msg := models.Message{
		ChurchID: rule.ChurchID,
		To:       to,
		Subject:  "Automation approval required",
		Body:     "Rule \"" + rule.Name + "\" is waiting for approval before it runs.",
		Priority: models.PriorityHigh,
		Meta:     map[string]interface{}{"approval_id": approval.ID, "rule_id": rule.ID},
	}
	if err := push.Send(ctx, msg); err != nil {
		e.logger.Warn("failed to notify approver",
			logging.String("approval_id", approval.ID),
			logging.String("error", err.Error()))
	}
}

// continueFromHoursGate is the re-entry point shared by the initial
// pipeline, approval resume, and deferred-firing resume.
func (e *Engine) continueFromHoursGate(ctx context.Context, rule *models.AutomationRule, event models.TriggerEvent, rec *models.ExecutionRecord) {
	decision := e.gate.Check(rule.BusinessHours, rule.UrgentMode24x7)
	if !decision.Allowed {
		now := e.clock.Now().UTC()
		deferred := &models.DeferredFiring{
			ID:           utils.NewID(),
			RuleID:       rule.ID,
			ChurchID:     rule.ChurchID,
			ExecutionID:  rec.ID,
			TriggerEvent: event,
			ResumeAt:     decision.NextWindowStart,
			CreatedAt:    now,
		}
		if err := e.store.CreateDeferredFiring(ctx, deferred); err != nil {
			e.logger.Error("failed to record deferred firing", err, logging.String("rule_id", rule.ID))
		}
		e.complete(ctx, rec, models.ExecutionFailed, ReasonOutsideHours)
		e.logger.Info("firing deferred outside business hours",
			logging.String("rule_id", rule.ID),
			logging.String("resume_at", decision.NextWindowStart.Format(time.RFC3339)),
			logging.String("resume_in", utils.FormatDuration(decision.NextWindowStart.Sub(now))))
		return
	}

	reserved, err := e.store.ReserveExecution(ctx, rule.ID, e.clock.Now().UTC())
	if err != nil {
		e.logger.Error("failed to reserve execution", err, logging.String("rule_id", rule.ID))
		e.complete(ctx, rec, models.ExecutionFailed, "failed to reserve execution")
		return
	}
	if !reserved {
		e.complete(ctx, rec, models.ExecutionFailed, ReasonAlreadyExecuted)
		return
	}

	e.runActions(ctx, rule, event, rec)
}

// runActions dispatches the rule's actions sequentially by order index.
// Action failures are isolated from siblings.
func (e *Engine) runActions(ctx context.Context, rule *models.AutomationRule, event models.TriggerEvent, rec *models.ExecutionRecord) {
	actions := make([]models.Action, len(rule.Actions))
	copy(actions, rule.Actions)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].OrderIndex < actions[j].OrderIndex
	})

	priority := EventPriority(event)
	results := make([]models.ActionResult, 0, len(actions))
	anySuccess := false
	awaitingAck := false

	for _, action := range actions {
		result := e.coordinator.DispatchAction(ctx, rule, action, event, priority)
		results = append(results, result)

		if result.Success {
			anySuccess = true
			if action.RequiresAcknowledgment() && escalationEnabled(rule) {
				if e.registerAcknowledgment(ctx, rule, action, rec, priority) {
					awaitingAck = true
				}
			}
			continue
		}

		if rule.CreateManualTaskOnFail {
			e.createManualTask(ctx, rule, action, event, result, priority)
		}
	}

	rec.ActionResults = results

	if awaitingAck {
		// The record stays RUNNING until the action is acknowledged or
		// the escalation manager marks it ESCALATED.
		if err := e.store.UpdateExecutionResults(ctx, rec.ID, results); err != nil {
			e.logger.Error("failed to store action results", err, logging.String("execution_id", rec.ID))
		}
		return
	}

	status := models.ExecutionSuccess
	reason := ""
	if !anySuccess {
		status = models.ExecutionFailed
		reason = ReasonAllFailed
	}
	e.complete(ctx, rec, status, reason)
}

func escalationEnabled(rule *models.AutomationRule) bool {
	return rule.Escalation != nil && rule.Escalation.Enabled
}

// registerAcknowledgment opens the escalation window for an
// ack-requiring action.
func (e *Engine) registerAcknowledgment(ctx context.Context, rule *models.AutomationRule, action models.Action, rec *models.ExecutionRecord, priority models.Priority) bool {
	now := e.clock.Now().UTC()
	delay := e.escalationDelay(rule, priority)
	if delay <= 0 {
		return false
	}
	due := now.Add(delay)
	ack := &models.Acknowledgment{
		ID:               utils.NewID(),
		ChurchID:         rule.ChurchID,
		RuleID:           rule.ID,
		ExecutionID:      rec.ID,
		ActionID:         action.ID,
		RequestedAt:      now,
		NextEscalationAt: &due,
	}
	if err := e.store.CreateAcknowledgment(ctx, ack); err != nil {
		e.logger.Error("failed to register acknowledgment", err,
			logging.String("rule_id", rule.ID),
			logging.String("action_id", action.ID))
		return false
	}
	return true
}

// escalationDelay resolves the delay before the first escalation: the
// rule's explicit setting wins, then the priority tier default.
func (e *Engine) escalationDelay(rule *models.AutomationRule, priority models.Priority) time.Duration {
	if rule.Escalation != nil && rule.Escalation.EscalateAfterMinutes > 0 {
		return time.Duration(rule.Escalation.EscalateAfterMinutes) * time.Minute
	}
	if rule.Escalation != nil && rule.Escalation.EscalationPriority != "" {
		priority = rule.Escalation.EscalationPriority
	}
	switch priority {
	case models.PriorityUrgent:
		return e.delays.Urgent
	case models.PriorityHigh:
		return e.delays.High
	case models.PriorityNormal:
		return e.delays.Normal
	default:
		return 0
	}
}

// createManualTask guarantees a terminally failed action still reaches
// a human.
func (e *Engine) createManualTask(ctx context.Context, rule *models.AutomationRule, action models.Action, event models.TriggerEvent, result models.ActionResult, priority models.Priority) {
	now := e.clock.Now().UTC()
	task := &models.ManualTask{
		ID:           utils.NewID(),
		ChurchID:     rule.ChurchID,
		RuleID:       rule.ID,
		ActionID:     action.ID,
		Reason:       result.Error,
		ActionConfig: action.Configuration,
		Payload:      event.Payload,
		Priority:     priority,
		Status:       "pending",
		CreatedAt:    now,
	}
	staff, err := e.store.FindStaff(ctx, rule.ChurchID, nil)
	if err == nil && len(staff) > 0 {
		task.AssignedTo = staff[0].ID
	}
	if err := e.store.CreateManualTask(ctx, task); err != nil {
		e.logger.Error("failed to create manual task", err,
			logging.String("rule_id", rule.ID),
			logging.String("action_id", action.ID))
		return
	}
	e.logger.Info("manual task created for failed action",
		logging.String("rule_id", rule.ID),
		logging.String("action_id", action.ID),
		logging.String("task_id", task.ID))
}

// Approve resumes a suspended firing. The pending→approved store
// transition happens exactly once; a second call is a conflict no-op.
func (e *Engine) Approve(ctx context.Context, approvalID, approverID string) error {
	ok, err := e.store.TransitionApproval(ctx, approvalID, models.ApprovalApproved, approverID, e.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Warn("approval already decided",
			logging.String("approval_id", approvalID),
			logging.String("approver_id", approverID))
		return errors.ConflictError("approval already decided")
	}

	approval, err := e.store.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	rule, err := e.store.GetRule(ctx, approval.RuleID)
	if err != nil {
		return err
	}
	if !rule.IsActive {
		e.logger.Warn("approved rule is no longer active", logging.String("rule_id", rule.ID))
		return nil
	}

	rec := e.openRecord(ctx, rule, approval.TriggerEvent)
	if rec == nil {
		return errors.InternalError("failed to open execution record", nil)
	}

	e.logger.Info("approval granted, resuming firing",
		logging.String("approval_id", approvalID),
		logging.String("rule_id", rule.ID),
		logging.String("approver_id", approverID))

	event := approval.TriggerEvent
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.recoverPipeline(rule.ID, event.ID)
		e.continueFromHoursGate(e.ctx, rule, event, rec)
	}()
	return nil
}

// Reject closes a pending approval without executing anything.
func (e *Engine) Reject(ctx context.Context, approvalID, approverID string) error {
	ok, err := e.store.TransitionApproval(ctx, approvalID, models.ApprovalRejected, approverID, e.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return errors.ConflictError("approval already decided")
	}
	e.logger.Info("approval rejected",
		logging.String("approval_id", approvalID),
		logging.String("approver_id", approverID))
	return nil
}

// Acknowledge records a staff response to an ack-requiring action and
// closes the execution as SUCCESS if it was still waiting.
func (e *Engine) Acknowledge(ctx context.Context, ackID, staffID string) error {
	ok, err := e.store.Acknowledge(ctx, ackID, staffID, e.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return errors.ConflictError("already acknowledged")
	}

	ack, err := e.store.GetAcknowledgment(ctx, ackID)
	if err != nil {
		return err
	}
	rec, err := e.store.GetExecution(ctx, ack.ExecutionID)
	if err != nil {
		return err
	}
	if rec.CompletedAt == nil {
		e.complete(ctx, rec, models.ExecutionSuccess, ReasonAcknowledged)
	}
	return nil
}

// ResumeDeferredFirings re-enters firings whose business-hours window
// has opened. Invoked by the cron scheduler.
func (e *Engine) ResumeDeferredFirings(ctx context.Context) {
	now := e.clock.Now().UTC()
	due, err := e.store.ListDueDeferredFirings(ctx, now)
	if err != nil {
		e.logger.Error("failed to list deferred firings", err)
		return
	}
	for _, f := range due {
		claimed, err := e.store.MarkDeferredProcessed(ctx, f.ID)
		if err != nil {
			e.logger.Error("failed to claim deferred firing", err, logging.String("deferred_id", f.ID))
			continue
		}
		if !claimed {
			continue
		}
		rule, err := e.store.GetRule(ctx, f.RuleID)
		if err != nil || !rule.IsActive {
			continue
		}
		rec := e.openRecord(ctx, rule, f.TriggerEvent)
		if rec == nil {
			continue
		}
		e.logger.Info("resuming deferred firing",
			logging.String("rule_id", rule.ID),
			logging.String("deferred_id", f.ID))
		e.continueFromHoursGate(ctx, rule, f.TriggerEvent, rec)
	}
}

// openRecord creates the RUNNING ledger entry for one firing.
func (e *Engine) openRecord(ctx context.Context, rule *models.AutomationRule, event models.TriggerEvent) *models.ExecutionRecord {
	rec := &models.ExecutionRecord{
		ID:           utils.NewID(),
		RuleID:       rule.ID,
		ChurchID:     rule.ChurchID,
		TriggerEvent: event,
		Status:       models.ExecutionRunning,
		StartedAt:    e.clock.Now().UTC(),
	}
	if err := e.store.CreateExecution(ctx, rec); err != nil {
		e.logger.Error("failed to create execution record", err, logging.String("rule_id", rule.ID))
		return nil
	}
	return rec
}

// complete finalizes a ledger entry.
func (e *Engine) complete(ctx context.Context, rec *models.ExecutionRecord, status models.ExecutionStatus, reason string) {
	now := e.clock.Now().UTC()
	rec.Status = status
	rec.Reason = reason
	rec.CompletedAt = &now
	if err := e.store.CompleteExecution(ctx, rec); err != nil {
		e.logger.Error("failed to complete execution record", err,
			logging.String("execution_id", rec.ID),
			logging.String("status", string(status)))
	}
}
