// Package testutil provides in-memory test doubles and fixture builders
// shared across the engine, channel and handler tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"church-automation/internal/common/errors"
	"church-automation/internal/models"
	"church-automation/internal/storage"
)

// MockStorage is an in-memory implementation of storage.Storage.
// Methods can be made to fail by registering an error in ErrorOnMethod
// keyed by method name.
type MockStorage struct {
	mu            sync.RWMutex
	rules         map[string]*models.AutomationRule
	executions    map[string]*models.ExecutionRecord
	approvals     map[string]*models.ApprovalRecord
	manualTasks   []*models.ManualTask
	followUps     map[string]*models.FollowUpTask
	acks          map[string]*models.Acknowledgment
	deferred      map[string]*models.DeferredFiring
	staff         []*models.Staff
	members       []*models.Member
	notifications []*storage.Notification

	// ErrorOnMethod injects failures, keyed by method name.
	ErrorOnMethod map[string]error
}

func NewMockStorage() *MockStorage {
	return &MockStorage{
		rules:         make(map[string]*models.AutomationRule),
		executions:    make(map[string]*models.ExecutionRecord),
		approvals:     make(map[string]*models.ApprovalRecord),
		followUps:     make(map[string]*models.FollowUpTask),
		acks:          make(map[string]*models.Acknowledgment),
		deferred:      make(map[string]*models.DeferredFiring),
		ErrorOnMethod: make(map[string]error),
	}
}

func (m *MockStorage) fail(method string) error {
	return m.ErrorOnMethod[method]
}

func (m *MockStorage) Close() error  { return m.fail("Close") }
func (m *MockStorage) Health() error { return m.fail("Health") }

// Rules

func (m *MockStorage) CreateRule(ctx context.Context, rule *models.AutomationRule) error {
	if err := m.fail("CreateRule"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	return nil
}

func (m *MockStorage) GetRule(ctx context.Context, id string) (*models.AutomationRule, error) {
	if err := m.fail("GetRule"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[id]
	if !ok {
		return nil, errors.NotFoundError("rule " + id)
	}
	return rule, nil
}

func (m *MockStorage) UpdateRule(ctx context.Context, rule *models.AutomationRule) error {
	if err := m.fail("UpdateRule"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.ID]; !ok {
		return errors.NotFoundError("rule " + rule.ID)
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *MockStorage) DeleteRule(ctx context.Context, id string) error {
	if err := m.fail("DeleteRule"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return errors.NotFoundError("rule " + id)
	}
	delete(m.rules, id)
	return nil
}

func (m *MockStorage) ListRules(ctx context.Context, churchID string) ([]*models.AutomationRule, error) {
	if err := m.fail("ListRules"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.AutomationRule
	for _, rule := range m.rules {
		if rule.ChurchID == churchID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStorage) FindActiveRules(ctx context.Context, churchID string, triggerType models.TriggerType) ([]*models.AutomationRule, error) {
	if err := m.fail("FindActiveRules"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.AutomationRule
	for _, rule := range m.rules {
		if rule.ChurchID == churchID && rule.IsActive && rule.RespondsTo(triggerType) {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MockStorage) ReserveExecution(ctx context.Context, ruleID string, now time.Time) (bool, error) {
	if err := m.fail("ReserveExecution"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[ruleID]
	if !ok {
		return false, errors.NotFoundError("rule " + ruleID)
	}
	if rule.Exhausted() {
		return false, nil
	}
	rule.ExecutionCount++
	rule.LastExecutedAt = &now
	return true, nil
}

// Executions

func (m *MockStorage) CreateExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	if err := m.fail("CreateExecution"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	m.executions[rec.ID] = &clone
	return nil
}

func (m *MockStorage) CompleteExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	if err := m.fail("CompleteExecution"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.executions[rec.ID]
	if !ok {
		return errors.NotFoundError("execution " + rec.ID)
	}
	if existing.CompletedAt != nil {
		return nil
	}
	clone := *rec
	m.executions[rec.ID] = &clone
	return nil
}

func (m *MockStorage) UpdateExecutionResults(ctx context.Context, id string, results []models.ActionResult) error {
	if err := m.fail("UpdateExecutionResults"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.executions[id]
	if !ok {
		return errors.NotFoundError("execution " + id)
	}
	if existing.CompletedAt != nil {
		return nil
	}
	existing.ActionResults = results
	return nil
}

func (m *MockStorage) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	if err := m.fail("GetExecution"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.executions[id]
	if !ok {
		return nil, errors.NotFoundError("execution " + id)
	}
	clone := *rec
	return &clone, nil
}

func (m *MockStorage) ListExecutions(ctx context.Context, churchID string, limit, offset int) ([]*models.ExecutionRecord, error) {
	if err := m.fail("ListExecutions"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ExecutionRecord
	for _, rec := range m.executions {
		if rec.ChurchID == churchID {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return paginate(out, limit, offset), nil
}

func (m *MockStorage) ListExecutionsByRule(ctx context.Context, ruleID string, limit, offset int) ([]*models.ExecutionRecord, error) {
	if err := m.fail("ListExecutionsByRule"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ExecutionRecord
	for _, rec := range m.executions {
		if rec.RuleID == ruleID {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return paginate(out, limit, offset), nil
}

// Approvals

func (m *MockStorage) CreateApproval(ctx context.Context, rec *models.ApprovalRecord) error {
	if err := m.fail("CreateApproval"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	m.approvals[rec.ID] = &clone
	return nil
}

func (m *MockStorage) GetApproval(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	if err := m.fail("GetApproval"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.approvals[id]
	if !ok {
		return nil, errors.NotFoundError("approval " + id)
	}
	clone := *rec
	return &clone, nil
}

func (m *MockStorage) ListPendingApprovals(ctx context.Context, churchID string) ([]*models.ApprovalRecord, error) {
	if err := m.fail("ListPendingApprovals"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ApprovalRecord
	for _, rec := range m.approvals {
		if rec.ChurchID == churchID && rec.Status == models.ApprovalPendingStatus {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockStorage) TransitionApproval(ctx context.Context, id string, status models.ApprovalStatus, decidedBy string, at time.Time) (bool, error) {
	if err := m.fail("TransitionApproval"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.approvals[id]
	if !ok {
		return false, errors.NotFoundError("approval " + id)
	}
	if rec.Status != models.ApprovalPendingStatus {
		return false, nil
	}
	rec.Status = status
	rec.DecidedBy = decidedBy
	rec.DecidedAt = &at
	return true, nil
}

// Manual tasks

func (m *MockStorage) CreateManualTask(ctx context.Context, task *models.ManualTask) error {
	if err := m.fail("CreateManualTask"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *task
	m.manualTasks = append(m.manualTasks, &clone)
	return nil
}

func (m *MockStorage) ListManualTasks(ctx context.Context, churchID string, limit, offset int) ([]*models.ManualTask, error) {
	if err := m.fail("ListManualTasks"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ManualTask
	for _, task := range m.manualTasks {
		if task.ChurchID == churchID {
			clone := *task
			out = append(out, &clone)
		}
	}
	return paginate(out, limit, offset), nil
}

// Follow-ups

func (m *MockStorage) CreateFollowUp(ctx context.Context, task *models.FollowUpTask) error {
	if err := m.fail("CreateFollowUp"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *task
	m.followUps[task.ID] = &clone
	return nil
}

func (m *MockStorage) ListFollowUps(ctx context.Context, churchID string, limit, offset int) ([]*models.FollowUpTask, error) {
	if err := m.fail("ListFollowUps"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.FollowUpTask
	for _, task := range m.followUps {
		if task.ChurchID == churchID {
			clone := *task
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return paginate(out, limit, offset), nil
}

func (m *MockStorage) ListDueFollowUps(ctx context.Context, now time.Time) ([]*models.FollowUpTask, error) {
	if err := m.fail("ListDueFollowUps"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.FollowUpTask
	for _, task := range m.followUps {
		if task.Status == "pending" && !task.Notified && !task.ScheduledAt.After(now) {
			clone := *task
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *MockStorage) MarkFollowUpNotified(ctx context.Context, id string) (bool, error) {
	if err := m.fail("MarkFollowUpNotified"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.followUps[id]
	if !ok {
		return false, errors.NotFoundError("follow-up " + id)
	}
	if task.Notified {
		return false, nil
	}
	task.Notified = true
	return true, nil
}

// Acknowledgments

func (m *MockStorage) CreateAcknowledgment(ctx context.Context, ack *models.Acknowledgment) error {
	if err := m.fail("CreateAcknowledgment"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *ack
	m.acks[ack.ID] = &clone
	return nil
}

func (m *MockStorage) GetAcknowledgment(ctx context.Context, id string) (*models.Acknowledgment, error) {
	if err := m.fail("GetAcknowledgment"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ack, ok := m.acks[id]
	if !ok {
		return nil, errors.NotFoundError("acknowledgment " + id)
	}
	clone := *ack
	return &clone, nil
}

func (m *MockStorage) Acknowledge(ctx context.Context, id, byStaffID string, at time.Time) (bool, error) {
	if err := m.fail("Acknowledge"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ack, ok := m.acks[id]
	if !ok {
		return false, errors.NotFoundError("acknowledgment " + id)
	}
	if ack.AcknowledgedAt != nil {
		return false, nil
	}
	ack.AcknowledgedAt = &at
	ack.AcknowledgedBy = byStaffID
	ack.NextEscalationAt = nil
	return true, nil
}

func (m *MockStorage) ListDueEscalations(ctx context.Context, now time.Time) ([]*models.Acknowledgment, error) {
	if err := m.fail("ListDueEscalations"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Acknowledgment
	for _, ack := range m.acks {
		if ack.AcknowledgedAt == nil && ack.NextEscalationAt != nil && !ack.NextEscalationAt.After(now) {
			clone := *ack
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (m *MockStorage) RecordEscalation(ctx context.Context, id string, count int, next *time.Time) error {
	if err := m.fail("RecordEscalation"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ack, ok := m.acks[id]
	if !ok {
		return errors.NotFoundError("acknowledgment " + id)
	}
	ack.EscalationCount = count
	ack.NextEscalationAt = next
	return nil
}

// Deferred firings

func (m *MockStorage) CreateDeferredFiring(ctx context.Context, f *models.DeferredFiring) error {
	if err := m.fail("CreateDeferredFiring"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *f
	m.deferred[f.ID] = &clone
	return nil
}

func (m *MockStorage) ListDueDeferredFirings(ctx context.Context, now time.Time) ([]*models.DeferredFiring, error) {
	if err := m.fail("ListDueDeferredFirings"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.DeferredFiring
	for _, f := range m.deferred {
		if !f.Processed && !f.ResumeAt.After(now) {
			clone := *f
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResumeAt.Before(out[j].ResumeAt) })
	return out, nil
}

func (m *MockStorage) MarkDeferredProcessed(ctx context.Context, id string) (bool, error) {
	if err := m.fail("MarkDeferredProcessed"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.deferred[id]
	if !ok {
		return false, errors.NotFoundError("deferred firing " + id)
	}
	if f.Processed {
		return false, nil
	}
	f.Processed = true
	return true, nil
}

// Staff directory

func (m *MockStorage) CreateStaff(ctx context.Context, s *models.Staff) error {
	if err := m.fail("CreateStaff"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.staff = append(m.staff, &clone)
	return nil
}

func (m *MockStorage) FindStaff(ctx context.Context, churchID string, roles []string) ([]*models.Staff, error) {
	if err := m.fail("FindStaff"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	var out []*models.Staff
	for _, s := range m.staff {
		if s.ChurchID != churchID || !s.IsActive {
			continue
		}
		if len(roles) > 0 && !roleSet[s.Role] {
			continue
		}
		clone := *s
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Members

func (m *MockStorage) CreateMember(ctx context.Context, member *models.Member) error {
	if err := m.fail("CreateMember"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *member
	m.members = append(m.members, &clone)
	return nil
}

func (m *MockStorage) ListMembers(ctx context.Context, churchID string, limit, offset int) ([]*models.Member, error) {
	if err := m.fail("ListMembers"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Member
	for _, member := range m.members {
		if member.ChurchID == churchID {
			clone := *member
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, limit, offset), nil
}

func (m *MockStorage) ListMembersWithBirthday(ctx context.Context, month time.Month, day int) ([]*models.Member, error) {
	if err := m.fail("ListMembersWithBirthday"); err != nil {
		return nil, err
	}
	return m.listMembersByDate(func(member *models.Member) *time.Time { return member.BirthDate }, month, day), nil
}

func (m *MockStorage) ListMembersWithAnniversary(ctx context.Context, month time.Month, day int) ([]*models.Member, error) {
	if err := m.fail("ListMembersWithAnniversary"); err != nil {
		return nil, err
	}
	return m.listMembersByDate(func(member *models.Member) *time.Time { return member.AnniversaryDate }, month, day), nil
}

func (m *MockStorage) listMembersByDate(date func(*models.Member) *time.Time, month time.Month, day int) []*models.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Member
	for _, member := range m.members {
		d := date(member)
		if !member.IsActive || d == nil {
			continue
		}
		if d.Month() == month && d.Day() == day {
			clone := *member
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Notifications

func (m *MockStorage) CreateNotification(ctx context.Context, n *storage.Notification) error {
	if err := m.fail("CreateNotification"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *n
	m.notifications = append(m.notifications, &clone)
	return nil
}

func (m *MockStorage) ListNotifications(ctx context.Context, churchID string, limit, offset int) ([]*storage.Notification, error) {
	if err := m.fail("ListNotifications"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*storage.Notification
	for _, n := range m.notifications {
		if n.ChurchID == churchID {
			clone := *n
			out = append(out, &clone)
		}
	}
	return paginate(out, limit, offset), nil
}

// Snapshot accessors used by assertions.

func (m *MockStorage) AllExecutions() []*models.ExecutionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ExecutionRecord
	for _, rec := range m.executions {
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (m *MockStorage) AllApprovals() []*models.ApprovalRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ApprovalRecord
	for _, rec := range m.approvals {
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MockStorage) AllAcknowledgments() []*models.Acknowledgment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Acknowledgment
	for _, ack := range m.acks {
		clone := *ack
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

func (m *MockStorage) AllDeferredFirings() []*models.DeferredFiring {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.DeferredFiring
	for _, f := range m.deferred {
		clone := *f
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MockStorage) AllManualTasks() []*models.ManualTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.ManualTask, 0, len(m.manualTasks))
	for _, task := range m.manualTasks {
		clone := *task
		out = append(out, &clone)
	}
	return out
}

func (m *MockStorage) AllNotifications() []*storage.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*storage.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		clone := *n
		out = append(out, &clone)
	}
	return out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
