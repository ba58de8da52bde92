package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"church-automation/internal/channels"
	"church-automation/internal/common/errors"
	"church-automation/internal/models"
	"church-automation/internal/testutil"
)

// ackRule builds a rule whose single action requires acknowledgment,
// escalating to the pastor role after 30 minutes.
func ackRule(id string) *models.AutomationRule {
	rule := testutil.NewRule(id, models.TriggerPrayerRequestSubmitted)
	rule.Actions = []models.Action{
		{
			ID:   id + "-notify",
			Type: models.ActionNotifyStaff,
			Configuration: map[string]interface{}{
				"subject": "Urgent prayer request",
				"body":    "Please call {{name}}",
			},
		},
	}
	rule.Escalation = &models.EscalationConfig{
		Enabled:              true,
		EscalateAfterMinutes: 30,
		EscalateTo:           "PASTOR",
	}
	return rule
}

func TestAckRequiringActionKeepsRecordRunning(t *testing.T) {
	store := testutil.NewMockStorage()
	push := testutil.NewMockChannel(models.ChannelPush)
	clock := &stepClock{t: tuesdayMorning(t)}
	e := newTestEngine(store, channels.NewRegistry(push), clock)
	defer e.Shutdown()

	require.NoError(t, store.CreateRule(context.Background(), ackRule("r1")))

	e.ProcessTrigger(context.Background(), testutil.NewEvent(models.TriggerPrayerRequestSubmitted, map[string]interface{}{"name": "Rosa"}))
	e.Wait()

	rec := singleExecution(t, store)
	assert.Equal(t, models.ExecutionRunning, rec.Status)
	assert.Nil(t, rec.CompletedAt)
	require.Len(t, rec.ActionResults, 1)
	assert.True(t, rec.ActionResults[0].Success)

	acks := store.AllAcknowledgments()
	require.Len(t, acks, 1)
	ack := acks[0]
	assert.Equal(t, rec.ID, ack.ExecutionID)
	require.NotNil(t, ack.NextEscalationAt)
	assert.True(t, ack.NextEscalationAt.Equal(ack.RequestedAt.Add(30*time.Minute)))

	require.NoError(t, e.Acknowledge(context.Background(), ack.ID, "s-pastor"))

	rec = singleExecution(t, store)
	assert.Equal(t, models.ExecutionSuccess, rec.Status)
	assert.Equal(t, "acknowledged", rec.Reason)

	err := e.Acknowledge(context.Background(), ack.ID, "s-other")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConflict))

	acked := store.AllAcknowledgments()[0]
	assert.Equal(t, "s-pastor", acked.AcknowledgedBy)
}

func TestSweepEscalationsFlipsRecordAndNotifies(t *testing.T) {
	store := testutil.NewMockStorage()
	push := testutil.NewMockChannel(models.ChannelPush)
	clock := &stepClock{t: tuesdayMorning(t)}
	e := newTestEngine(store, channels.NewRegistry(push), clock)
	defer e.Shutdown()

	rule := ackRule("r1")
	require.NoError(t, store.CreateRule(context.Background(), rule))

	e.ProcessTrigger(context.Background(), testutil.NewEvent(models.TriggerPrayerRequestSubmitted, nil))
	e.Wait()
	require.Equal(t, 1, push.SendCount())

	// Not yet due.
	clock.Advance(29 * time.Minute)
	e.SweepEscalations(context.Background())
	assert.Equal(t, 1, push.SendCount())
	assert.Equal(t, models.ExecutionRunning, singleExecution(t, store).Status)

	clock.Advance(2 * time.Minute)
	e.SweepEscalations(context.Background())

	rec := singleExecution(t, store)
	assert.Equal(t, models.ExecutionEscalated, rec.Status)
	assert.Equal(t, "escalation triggered", rec.Reason)

	sent := push.Sent()
	require.Len(t, sent, 2)
	escMsg := sent[1]
	assert.Equal(t, "PASTOR", escMsg.To.Role)
	assert.Equal(t, models.PriorityHigh, escMsg.Priority)
	assert.Equal(t, 1, escMsg.Meta["escalation_count"])

	// MaxEscalations defaults to one; the entry is retired.
	ack := store.AllAcknowledgments()[0]
	assert.Equal(t, 1, ack.EscalationCount)
	assert.Nil(t, ack.NextEscalationAt)

	clock.Advance(24 * time.Hour)
	e.SweepEscalations(context.Background())
	assert.Equal(t, 2, push.SendCount())
}

func TestSweepEscalationsRepeatsWithGrowingDelay(t *testing.T) {
	store := testutil.NewMockStorage()
	push := testutil.NewMockChannel(models.ChannelPush)
	clock := &stepClock{t: tuesdayMorning(t)}
	e := newTestEngine(store, channels.NewRegistry(push), clock)
	defer e.Shutdown()

	rule := ackRule("r1")
	rule.Escalation.MaxEscalations = 3
	require.NoError(t, store.CreateRule(context.Background(), rule))

	e.ProcessTrigger(context.Background(), testutil.NewEvent(models.TriggerPrayerRequestSubmitted, nil))
	e.Wait()

	clock.Advance(31 * time.Minute)
	e.SweepEscalations(context.Background())

	ack := store.AllAcknowledgments()[0]
	assert.Equal(t, 1, ack.EscalationCount)
	require.NotNil(t, ack.NextEscalationAt)
	// The second escalation waits twice the base delay.
	assert.True(t, ack.NextEscalationAt.Equal(clock.Now().UTC().Add(60*time.Minute)))

	clock.Advance(61 * time.Minute)
	e.SweepEscalations(context.Background())

	ack = store.AllAcknowledgments()[0]
	assert.Equal(t, 2, ack.EscalationCount)
	require.NotNil(t, ack.NextEscalationAt)
	assert.Equal(t, 3, push.SendCount())

	// The record flipped on the first escalation and stays there.
	assert.Equal(t, models.ExecutionEscalated, singleExecution(t, store).Status)

	// A late acknowledgment stops further escalations without
	// rewriting the completed record.
	acks := store.AllAcknowledgments()
	require.NoError(t, e.Acknowledge(context.Background(), acks[0].ID, "s-pastor"))
	assert.Equal(t, models.ExecutionEscalated, singleExecution(t, store).Status)

	clock.Advance(24 * time.Hour)
	e.SweepEscalations(context.Background())
	assert.Equal(t, 3, push.SendCount())
}

func TestSweepRetiresOrphanedAcknowledgment(t *testing.T) {
	store := testutil.NewMockStorage()
	push := testutil.NewMockChannel(models.ChannelPush)
	clock := &stepClock{t: tuesdayMorning(t)}
	e := newTestEngine(store, channels.NewRegistry(push), clock)
	defer e.Shutdown()

	due := clock.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.CreateAcknowledgment(context.Background(), &models.Acknowledgment{
		ID:               "ack-orphan",
		ChurchID:         testutil.ChurchID,
		RuleID:           "rule-deleted",
		ExecutionID:      "exec-gone",
		RequestedAt:      due.Add(-30 * time.Minute),
		NextEscalationAt: &due,
	}))

	e.SweepEscalations(context.Background())

	assert.Zero(t, push.SendCount())
	ack := store.AllAcknowledgments()[0]
	assert.Nil(t, ack.NextEscalationAt)
}

func TestEscalationDelayFallsBackToPriorityTier(t *testing.T) {
	store := testutil.NewMockStorage()
	push := testutil.NewMockChannel(models.ChannelPush)
	clock := &stepClock{t: tuesdayMorning(t)}
	e := newTestEngine(store, channels.NewRegistry(push), clock)
	defer e.Shutdown()

	rule := ackRule("r1")
	rule.Escalation.EscalateAfterMinutes = 0
	rule.Escalation.EscalationPriority = models.PriorityUrgent
	require.NoError(t, store.CreateRule(context.Background(), rule))

	e.ProcessTrigger(context.Background(), testutil.NewEvent(models.TriggerPrayerRequestSubmitted, nil))
	e.Wait()

	acks := store.AllAcknowledgments()
	require.Len(t, acks, 1)
	require.NotNil(t, acks[0].NextEscalationAt)
	assert.True(t, acks[0].NextEscalationAt.Equal(acks[0].RequestedAt.Add(15*time.Minute)))
}

func TestLowPriorityNeverOpensEscalationWindow(t *testing.T) {
	store := testutil.NewMockStorage()
	push := testutil.NewMockChannel(models.ChannelPush)
	clock := &stepClock{t: tuesdayMorning(t)}
	e := newTestEngine(store, channels.NewRegistry(push), clock)
	defer e.Shutdown()

	rule := ackRule("r1")
	rule.Escalation.EscalateAfterMinutes = 0
	rule.Escalation.EscalationPriority = models.PriorityLow
	require.NoError(t, store.CreateRule(context.Background(), rule))

	e.ProcessTrigger(context.Background(), testutil.NewEvent(models.TriggerPrayerRequestSubmitted, nil))
	e.Wait()

	assert.Empty(t, store.AllAcknowledgments())
	rec := singleExecution(t, store)
	assert.Equal(t, models.ExecutionSuccess, rec.Status)
}

func TestEscalationDisabledCompletesImmediately(t *testing.T) {
	store := testutil.NewMockStorage()
	push := testutil.NewMockChannel(models.ChannelPush)
	clock := &stepClock{t: tuesdayMorning(t)}
	e := newTestEngine(store, channels.NewRegistry(push), clock)
	defer e.Shutdown()

	rule := ackRule("r1")
	rule.Escalation = nil
	require.NoError(t, store.CreateRule(context.Background(), rule))

	e.ProcessTrigger(context.Background(), testutil.NewEvent(models.TriggerPrayerRequestSubmitted, nil))
	e.Wait()

	assert.Empty(t, store.AllAcknowledgments())
	assert.Equal(t, models.ExecutionSuccess, singleExecution(t, store).Status)
}
