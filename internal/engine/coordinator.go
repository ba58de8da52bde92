package engine

import (
	"context"
	"fmt"
	"time"

	"church-automation/internal/channels"
	"church-automation/internal/common/logging"
	"church-automation/internal/models"
)

// defaultRetryConfig applies when a rule carries no retry settings.
var defaultRetryConfig = models.RetryConfig{
	MaxRetries:        3,
	BackoffMultiplier: 2,
	InitialDelayMs:    1000,
}

// Coordinator runs one action through its retry and fallback ladder:
// attempts 1..maxRetries on the primary channel with exponential
// backoff, then each fallback channel exactly once in listed order.
type Coordinator struct {
	registry       *channels.Registry
	logger         logging.Logger
	channelTimeout time.Duration

	// wait blocks for the backoff delay; overridable in tests. The
	// default selects on ctx.Done so shutdown halts further retries.
	wait func(ctx context.Context, d time.Duration) error

	// ruleActive reports whether the rule may keep going after a wait.
	// The engine points it at storage so deactivating a rule stops its
	// in-flight retry ladder without cancelling the running attempt.
	// Nil means always active.
	ruleActive func(ctx context.Context, ruleID string) bool
}

// NewCoordinator builds a coordinator over the channel registry.
func NewCoordinator(registry *channels.Registry, channelTimeout time.Duration, logger logging.Logger) *Coordinator {
	if channelTimeout <= 0 {
		channelTimeout = 15 * time.Second
	}
	return &Coordinator{
		registry:       registry,
		logger:         logger,
		channelTimeout: channelTimeout,
		wait:           waitCtx,
	}
}

func waitCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DispatchAction delivers one action and reports the outcome. The
// result is always populated; a failed ladder carries the last error.
func (c *Coordinator) DispatchAction(ctx context.Context, rule *models.AutomationRule, action models.Action, event models.TriggerEvent, priority models.Priority) models.ActionResult {
	result := models.ActionResult{
		ActionID:   action.ID,
		ActionType: action.Type,
	}

	if action.DelaySeconds > 0 {
		if err := c.wait(ctx, time.Duration(action.DelaySeconds)*time.Second); err != nil {
			result.Error = err.Error()
			return result
		}
		if !c.stillActive(ctx, rule.ID) {
			result.Error = ReasonRuleDeactivated
			return result
		}
	}

	msg := BuildMessage(action, event, priority)
	retry := defaultRetryConfig
	if rule.RetryConfig != nil {
		retry = *rule.RetryConfig
	}

	primary := models.PrimaryChannel(action.Type)
	var lastErr error

	if ch, ok := c.registry.Get(primary); ok {
		for attempt := 1; attempt <= retry.MaxRetries; attempt++ {
			result.Attempts = attempt
			err := c.attempt(ctx, ch, msg)
			if err == nil {
				result.Success = true
				result.ChannelUsed = primary
				return result
			}
			lastErr = err
			c.logger.Warn("channel attempt failed",
				logging.String("rule_id", rule.ID),
				logging.String("action_id", action.ID),
				logging.String("channel", string(primary)),
				logging.Int("attempt", attempt),
				logging.String("error", err.Error()))

			if channels.IsPermanent(err) {
				break
			}
			if attempt < retry.MaxRetries {
				if werr := c.wait(ctx, retry.Delay(attempt)); werr != nil {
					result.Error = werr.Error()
					return result
				}
				if !c.stillActive(ctx, rule.ID) {
					result.Error = ReasonRuleDeactivated
					return result
				}
			}
		}
	} else {
		lastErr = fmt.Errorf("no channel wired for %s", primary)
		result.Attempts = retry.MaxRetries
	}

	for i, fb := range rule.FallbackChannels {
		if fb == primary {
			continue
		}
		fch, ok := c.registry.Get(fb)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Error = err.Error()
			return result
		}
		if !c.stillActive(ctx, rule.ID) {
			result.Error = ReasonRuleDeactivated
			return result
		}
		result.Attempts = retry.MaxRetries + i + 1
		err := c.attempt(ctx, fch, msg)
		if err == nil {
			result.Success = true
			result.ChannelUsed = fb
			result.FallbackUsed = true
			return result
		}
		lastErr = err
		c.logger.Warn("fallback channel failed",
			logging.String("rule_id", rule.ID),
			logging.String("action_id", action.ID),
			logging.String("channel", string(fb)),
			logging.String("error", err.Error()))
	}

	exhausted := &ChannelsExhaustedError{ActionID: action.ID, LastErr: lastErr}
	result.Error = exhausted.Error()
	return result
}

func (c *Coordinator) stillActive(ctx context.Context, ruleID string) bool {
	if c.ruleActive == nil {
		return true
	}
	return c.ruleActive(ctx, ruleID)
}

// attempt dispatches once under the per-attempt timeout so a stalled
// provider cannot stall the retry loop.
func (c *Coordinator) attempt(ctx context.Context, ch channels.Channel, msg models.Message) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.channelTimeout)
	defer cancel()
	return ch.Send(attemptCtx, msg)
}
