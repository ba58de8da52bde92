package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"church-automation/internal/channels"
	"church-automation/internal/common/logging"
	"church-automation/internal/models"
	"church-automation/internal/testutil"
)

// newTestCoordinator stubs the backoff wait so tests record delays
// instead of sleeping through them.
func newTestCoordinator(registry *channels.Registry) (*Coordinator, *[]time.Duration) {
	c := NewCoordinator(registry, time.Second, logging.NewDefaultLogger())
	delays := &[]time.Duration{}
	c.wait = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return c, delays
}

func transientErr(t models.ChannelType) error {
	return &channels.DispatchError{Channel: t, Message: "provider unavailable"}
}

func TestDispatchActionFirstAttemptSucceeds(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail)
	c, delays := newTestCoordinator(channels.NewRegistry(email))

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	event := testutil.NewEvent(models.TriggerMemberJoined, map[string]interface{}{"name": "Maria"})

	result := c.DispatchAction(context.Background(), rule, rule.Actions[0], event, models.PriorityNormal)

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, models.ChannelEmail, result.ChannelUsed)
	assert.False(t, result.FallbackUsed)
	assert.Empty(t, *delays)

	require.Len(t, email.Sent(), 1)
	assert.Equal(t, "Hello Maria", email.Sent()[0].Body)
}

func TestDispatchActionRetriesWithExponentialBackoff(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail,
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail))
	c, delays := newTestCoordinator(channels.NewRegistry(email))

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(context.Background(), rule, rule.Actions[0], event, models.PriorityNormal)

	require.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}, *delays)
}

func TestDispatchActionExhaustsRetries(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail,
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail))
	c, delays := newTestCoordinator(channels.NewRegistry(email))

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(context.Background(), rule, rule.Actions[0], event, models.PriorityNormal)

	require.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Contains(t, result.Error, "exhausted all channels")
	// No wait after the final attempt.
	assert.Len(t, *delays, 2)
}

func TestDispatchActionPermanentErrorSkipsRemainingRetries(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail, &channels.DispatchError{
		Channel:   models.ChannelEmail,
		Code:      "550",
		Message:   "no such mailbox",
		Permanent: true,
	})
	c, delays := newTestCoordinator(channels.NewRegistry(email))

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(context.Background(), rule, rule.Actions[0], event, models.PriorityNormal)

	require.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, email.SendCount())
	assert.Empty(t, *delays)
}

func TestDispatchActionFallbackLadder(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail,
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail))
	sms := testutil.NewMockChannel(models.ChannelSMS, transientErr(models.ChannelSMS))
	push := testutil.NewMockChannel(models.ChannelPush)
	c, _ := newTestCoordinator(channels.NewRegistry(email, sms, push))

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	rule.FallbackChannels = []models.ChannelType{models.ChannelSMS, models.ChannelPush}
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(context.Background(), rule, rule.Actions[0], event, models.PriorityHigh)

	require.True(t, result.Success)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, models.ChannelPush, result.ChannelUsed)
	// 3 primary attempts plus the second fallback slot.
	assert.Equal(t, 5, result.Attempts)
	assert.Equal(t, 1, sms.SendCount())
	assert.Equal(t, 1, push.SendCount())
}

func TestDispatchActionFallbackSkipsPrimaryAndUnwired(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail, transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail), transientErr(models.ChannelEmail))
	sms := testutil.NewMockChannel(models.ChannelSMS)
	c, _ := newTestCoordinator(channels.NewRegistry(email, sms))

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	// EMAIL duplicates the primary and WHATSAPP is not wired; both are
	// skipped without counting as attempts.
	rule.FallbackChannels = []models.ChannelType{
		models.ChannelEmail, models.ChannelWhatsApp, models.ChannelSMS,
	}
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(context.Background(), rule, rule.Actions[0], event, models.PriorityNormal)

	require.True(t, result.Success)
	assert.Equal(t, models.ChannelSMS, result.ChannelUsed)
	assert.Equal(t, 6, result.Attempts)
	assert.Equal(t, 3, email.SendCount())
}

func TestDispatchActionHonorsRuleRetryConfig(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail,
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail))
	c, delays := newTestCoordinator(channels.NewRegistry(email))

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	rule.RetryConfig = &models.RetryConfig{MaxRetries: 5, BackoffMultiplier: 3, InitialDelayMs: 100}
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(context.Background(), rule, rule.Actions[0], event, models.PriorityNormal)

	require.True(t, result.Success)
	assert.Equal(t, 5, result.Attempts)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		300 * time.Millisecond,
		900 * time.Millisecond,
		2700 * time.Millisecond,
	}, *delays)
}

func TestDispatchActionDelaySecondsWaitsBeforeDispatch(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail)
	c, delays := newTestCoordinator(channels.NewRegistry(email))

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	action := rule.Actions[0]
	action.DelaySeconds = 90
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(context.Background(), rule, action, event, models.PriorityNormal)

	require.True(t, result.Success)
	require.Len(t, *delays, 1)
	assert.Equal(t, 90*time.Second, (*delays)[0])
}

func TestDispatchActionCancelledContextStopsLadder(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail, transientErr(models.ChannelEmail))
	c, _ := newTestCoordinator(channels.NewRegistry(email))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(ctx, rule, rule.Actions[0], event, models.PriorityNormal)

	require.False(t, result.Success)
	assert.Equal(t, context.Canceled.Error(), result.Error)
	// The first attempt ran; the stubbed wait reported cancellation
	// before a second one could.
	assert.Equal(t, 1, email.SendCount())
}

func TestDispatchActionNoPrimaryChannelWired(t *testing.T) {
	sms := testutil.NewMockChannel(models.ChannelSMS)
	c, _ := newTestCoordinator(channels.NewRegistry(sms))

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	rule.FallbackChannels = []models.ChannelType{models.ChannelSMS}
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(context.Background(), rule, rule.Actions[0], event, models.PriorityNormal)

	require.True(t, result.Success)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, models.ChannelSMS, result.ChannelUsed)
	assert.Equal(t, 4, result.Attempts)
}

func TestDispatchActionStopsRetriesWhenRuleDeactivated(t *testing.T) {
	email := testutil.NewMockChannel(models.ChannelEmail,
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail),
		transientErr(models.ChannelEmail))
	sms := testutil.NewMockChannel(models.ChannelSMS)
	c, delays := newTestCoordinator(channels.NewRegistry(email, sms))

	active := true
	c.ruleActive = func(ctx context.Context, ruleID string) bool { return active }
	recordWait := c.wait
	c.wait = func(ctx context.Context, d time.Duration) error {
		active = false
		return recordWait(ctx, d)
	}

	rule := testutil.NewRule("r1", models.TriggerMemberJoined)
	rule.FallbackChannels = []models.ChannelType{models.ChannelSMS}
	event := testutil.NewEvent(models.TriggerMemberJoined, nil)

	result := c.DispatchAction(context.Background(), rule, rule.Actions[0], event, models.PriorityNormal)

	require.False(t, result.Success)
	assert.Equal(t, ReasonRuleDeactivated, result.Error)
	assert.Equal(t, 1, result.Attempts)
	// One attempt ran, one backoff wait started, then the ladder
	// stopped: no further retries and no fallback dispatch.
	assert.Equal(t, 1, email.SendCount())
	assert.Equal(t, 0, sms.SendCount())
	assert.Len(t, *delays, 1)
}
