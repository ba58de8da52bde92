package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/logging"
	"church-automation/internal/models"
	"church-automation/internal/storage"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "automation.db")
	a, err := NewAdapter(path, logging.NewDefaultLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleRule(id string) *models.AutomationRule {
	return &models.AutomationRule{
		ID:           id,
		ChurchID:     "church-1",
		Name:         "rule " + id,
		TriggerTypes: []models.TriggerType{models.TriggerFirstTimeVisitor},
		Conditions: []models.Condition{
			{Field: "visit_count", Operator: models.OpLessOrEqual, Value: float64(1)},
		},
		Actions: []models.Action{
			{
				ID:   id + "-a1",
				Type: models.ActionSendEmail,
				Configuration: map[string]interface{}{
					"to_email": "{{email}}",
					"subject":  "Welcome",
					"body":     "Hello {{name}}",
				},
			},
		},
		IsActive:       true,
		BypassApproval: true,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRuleRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	rule := sampleRule("r1")
	rule.RetryConfig = &models.RetryConfig{MaxRetries: 5, BackoffMultiplier: 2, InitialDelayMs: 500}
	rule.FallbackChannels = []models.ChannelType{models.ChannelSMS}
	rule.BusinessHours = &models.BusinessHoursConfig{
		Timezone:          "America/Bogota",
		StartTime:         "08:00",
		EndTime:           "18:00",
		DaysOfWeek:        []int{1, 2, 3, 4, 5},
		DeferOutsideHours: true,
	}
	require.NoError(t, a.CreateRule(ctx, rule))

	got, err := a.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, rule.TriggerTypes, got.TriggerTypes)
	assert.Equal(t, rule.Conditions, got.Conditions)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, "{{email}}", got.Actions[0].Configuration["to_email"])
	require.NotNil(t, got.RetryConfig)
	assert.Equal(t, 5, got.RetryConfig.MaxRetries)
	assert.Equal(t, []models.ChannelType{models.ChannelSMS}, got.FallbackChannels)
	require.NotNil(t, got.BusinessHours)
	assert.Equal(t, "America/Bogota", got.BusinessHours.Timezone)

	_, err = a.GetRule(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestUpdateRulePreservesExecutionCounter(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	rule := sampleRule("r1")
	require.NoError(t, a.CreateRule(ctx, rule))

	reserved, err := a.ReserveExecution(ctx, "r1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, reserved)

	rule.Name = "renamed"
	require.NoError(t, a.UpdateRule(ctx, rule))

	got, err := a.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 1, got.ExecutionCount)
	assert.NotNil(t, got.LastExecutedAt)
}

func TestFindActiveRulesOrdering(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	low := sampleRule("r-low")
	low.Priority = 1
	high := sampleRule("r-high")
	high.Priority = 10
	inactive := sampleRule("r-off")
	inactive.Priority = 100
	inactive.IsActive = false
	otherTrigger := sampleRule("r-other")
	otherTrigger.TriggerTypes = []models.TriggerType{models.TriggerBirthday}

	for _, r := range []*models.AutomationRule{low, high, inactive, otherTrigger} {
		require.NoError(t, a.CreateRule(ctx, r))
	}

	matched, err := a.FindActiveRules(ctx, "church-1", models.TriggerFirstTimeVisitor)
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, "r-high", matched[0].ID)
	assert.Equal(t, "r-low", matched[1].ID)
}

func TestReserveExecutionEnforcesCap(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	rule := sampleRule("r1")
	rule.ExecuteOnce = true
	require.NoError(t, a.CreateRule(ctx, rule))

	now := time.Now().UTC()
	first, err := a.ReserveExecution(ctx, "r1", now)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := a.ReserveExecution(ctx, "r1", now)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestExecutionLedgerLifecycle(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	event := models.TriggerEvent{
		ID:       "evt-1",
		Type:     models.TriggerFirstTimeVisitor,
		ChurchID: "church-1",
		Payload:  map[string]interface{}{"name": "Maria"},
	}
	rec := &models.ExecutionRecord{
		ID:           "ex-1",
		RuleID:       "r1",
		ChurchID:     "church-1",
		TriggerEvent: event,
		Status:       models.ExecutionRunning,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, a.CreateExecution(ctx, rec))

	results := []models.ActionResult{
		{ActionID: "a1", ActionType: models.ActionSendEmail, ChannelUsed: models.ChannelEmail, Attempts: 2, Success: true},
	}
	require.NoError(t, a.UpdateExecutionResults(ctx, "ex-1", results))

	got, err := a.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionRunning, got.Status)
	require.Len(t, got.ActionResults, 1)
	assert.Equal(t, 2, got.ActionResults[0].Attempts)
	assert.Equal(t, "Maria", got.TriggerEvent.Payload["name"])

	done := time.Now().UTC()
	rec.Status = models.ExecutionSuccess
	rec.ActionResults = results
	rec.CompletedAt = &done
	require.NoError(t, a.CompleteExecution(ctx, rec))

	got, err = a.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSuccess, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Completed entries are immutable.
	rec.Status = models.ExecutionFailed
	require.NoError(t, a.CompleteExecution(ctx, rec))
	got, err = a.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSuccess, got.Status)

	records, err := a.ListExecutionsByRule(ctx, "r1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestApprovalTransitionIsExactlyOnce(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	approval := &models.ApprovalRecord{
		ID:          "ap-1",
		RuleID:      "r1",
		ExecutionID: "ex-1",
		ChurchID:    "church-1",
		Status:      models.ApprovalPendingStatus,
		AssignedTo:  "s-admin",
		TriggerEvent: models.TriggerEvent{
			ID: "evt-1", Type: models.TriggerFormSubmitted, ChurchID: "church-1",
			Payload: map[string]interface{}{"form": "contact"},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, a.CreateApproval(ctx, approval))

	pending, err := a.ListPendingApprovals(ctx, "church-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "contact", pending[0].TriggerEvent.Payload["form"])

	now := time.Now().UTC()
	ok, err := a.TransitionApproval(ctx, "ap-1", models.ApprovalApproved, "s-admin", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.TransitionApproval(ctx, "ap-1", models.ApprovalRejected, "s-pastor", now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := a.GetApproval(ctx, "ap-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, got.Status)
	assert.Equal(t, "s-admin", got.DecidedBy)

	pending, err = a.ListPendingApprovals(ctx, "church-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAcknowledgmentLifecycle(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	due := now.Add(-time.Minute)
	ack := &models.Acknowledgment{
		ID:               "ack-1",
		ChurchID:         "church-1",
		RuleID:           "r1",
		ExecutionID:      "ex-1",
		ActionID:         "a1",
		RequestedAt:      now.Add(-time.Hour),
		NextEscalationAt: &due,
	}
	require.NoError(t, a.CreateAcknowledgment(ctx, ack))

	overdue, err := a.ListDueEscalations(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	next := now.Add(time.Hour)
	require.NoError(t, a.RecordEscalation(ctx, "ack-1", 1, &next))

	overdue, err = a.ListDueEscalations(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	ok, err := a.Acknowledge(ctx, "ack-1", "s-pastor", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Acknowledge(ctx, "ack-1", "s-other", now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := a.GetAcknowledgment(ctx, "ack-1")
	require.NoError(t, err)
	assert.Equal(t, "s-pastor", got.AcknowledgedBy)
	assert.Equal(t, 1, got.EscalationCount)

	// Acknowledged entries never come due again.
	overdue, err = a.ListDueEscalations(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestDeferredFiringClaim(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	f := &models.DeferredFiring{
		ID:          "df-1",
		RuleID:      "r1",
		ChurchID:    "church-1",
		ExecutionID: "ex-1",
		TriggerEvent: models.TriggerEvent{
			ID: "evt-1", Type: models.TriggerFirstTimeVisitor, ChurchID: "church-1",
			Payload: map[string]interface{}{"name": "Sofia"},
		},
		ResumeAt:  now.Add(-time.Minute),
		CreatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, a.CreateDeferredFiring(ctx, f))

	due, err := a.ListDueDeferredFirings(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "Sofia", due[0].TriggerEvent.Payload["name"])

	claimed, err := a.MarkDeferredProcessed(ctx, "df-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = a.MarkDeferredProcessed(ctx, "df-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	due, err = a.ListDueDeferredFirings(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestFollowUpDueClaim(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	task := &models.FollowUpTask{
		ID:           "fu-1",
		ChurchID:     "church-1",
		FollowUpType: "VISITOR_CALL",
		Notes:        "call back",
		Priority:     models.PriorityNormal,
		Status:       "pending",
		ScheduledAt:  now.Add(-time.Hour),
		CreatedAt:    now.Add(-48 * time.Hour),
	}
	require.NoError(t, a.CreateFollowUp(ctx, task))

	future := &models.FollowUpTask{
		ID:           "fu-2",
		ChurchID:     "church-1",
		FollowUpType: "GENERAL",
		Status:       "pending",
		ScheduledAt:  now.Add(time.Hour),
		CreatedAt:    now,
	}
	require.NoError(t, a.CreateFollowUp(ctx, future))

	due, err := a.ListDueFollowUps(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "fu-1", due[0].ID)

	claimed, err := a.MarkFollowUpNotified(ctx, "fu-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = a.MarkFollowUpNotified(ctx, "fu-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	due, err = a.ListDueFollowUps(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStaffDirectory(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	staff := []*models.Staff{
		{ID: "s-pastor", ChurchID: "church-1", Name: "Pastor", Role: "PASTOR", IsActive: true, CreatedAt: base.Add(time.Hour)},
		{ID: "s-admin", ChurchID: "church-1", Name: "Admin", Role: "ADMIN", IsActive: true, CreatedAt: base},
		{ID: "s-gone", ChurchID: "church-1", Name: "Former", Role: "PASTOR", IsActive: false, CreatedAt: base},
		{ID: "s-other", ChurchID: "church-2", Name: "Elsewhere", Role: "PASTOR", IsActive: true, CreatedAt: base},
	}
	for _, s := range staff {
		require.NoError(t, a.CreateStaff(ctx, s))
	}

	approvers, err := a.FindStaff(ctx, "church-1", []string{"PASTOR", "ADMIN"})
	require.NoError(t, err)
	require.Len(t, approvers, 2)
	// Earliest created first.
	assert.Equal(t, "s-admin", approvers[0].ID)
	assert.Equal(t, "s-pastor", approvers[1].ID)

	all, err := a.FindStaff(ctx, "church-1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestNotifications(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	n := &storage.Notification{
		ID:        "n1",
		ChurchID:  "church-1",
		UserID:    "s-admin",
		Title:     "Approval required",
		Body:      "A rule is waiting",
		Priority:  models.PriorityHigh,
		Meta:      map[string]interface{}{"rule_id": "r1"},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, a.CreateNotification(ctx, n))
	notes, err := a.ListNotifications(ctx, "church-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "s-admin", notes[0].UserID)
}

func TestMemberDirectory(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	birth := time.Date(1990, time.March, 10, 0, 0, 0, 0, time.UTC)
	wedding := time.Date(2016, time.March, 10, 0, 0, 0, 0, time.UTC)
	laterBirth := time.Date(1985, time.July, 2, 0, 0, 0, 0, time.UTC)

	members := []*models.Member{
		{
			ID: "m-1", ChurchID: "church-1", Name: "Pedro Gomez",
			Email: "pedro@example.com", BirthDate: &birth,
			JoinedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			IsActive: true,
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID: "m-2", ChurchID: "church-1", Name: "Lucia Ruiz",
			BirthDate: &laterBirth,
			JoinedAt:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			IsActive:  true,
			CreatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID: "m-3", ChurchID: "church-2", Name: "Diego Silva",
			AnniversaryDate: &wedding,
			JoinedAt:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			IsActive:        true,
			CreatedAt:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID: "m-4", ChurchID: "church-1", Name: "Gone Away",
			BirthDate: &birth,
			JoinedAt:  time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			IsActive:  false,
			CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, m := range members {
		require.NoError(t, a.CreateMember(ctx, m))
	}

	// Listing is church-scoped and ordered by creation time.
	listed, err := a.ListMembers(ctx, "church-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "m-1", listed[0].ID)
	require.NotNil(t, listed[0].BirthDate)
	assert.Equal(t, birth.Year(), listed[0].BirthDate.Year())
	assert.Nil(t, listed[0].AnniversaryDate)

	// The birthday query matches month and day only, skipping inactive
	// members.
	birthdays, err := a.ListMembersWithBirthday(ctx, time.March, 10)
	require.NoError(t, err)
	require.Len(t, birthdays, 1)
	assert.Equal(t, "m-1", birthdays[0].ID)

	birthdays, err = a.ListMembersWithBirthday(ctx, time.July, 2)
	require.NoError(t, err)
	require.Len(t, birthdays, 1)
	assert.Equal(t, "m-2", birthdays[0].ID)

	// Anniversaries span churches.
	anniversaries, err := a.ListMembersWithAnniversary(ctx, time.March, 10)
	require.NoError(t, err)
	require.Len(t, anniversaries, 1)
	assert.Equal(t, "m-3", anniversaries[0].ID)
	assert.Equal(t, "church-2", anniversaries[0].ChurchID)

	none, err := a.ListMembersWithBirthday(ctx, time.December, 25)
	require.NoError(t, err)
	assert.Empty(t, none)
}
