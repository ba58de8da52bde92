package channels

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"church-automation/internal/common/logging"
	"church-automation/internal/models"
)

// BreakerChannel wraps a channel in a circuit breaker so a provider
// outage fails fast instead of burning every retry budget against a
// dead endpoint. Permanent dispatch errors do not trip the breaker;
// they say nothing about provider health.
type BreakerChannel struct {
	inner   Channel
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps the channel with default breaker settings.
func WithBreaker(inner Channel, logger logging.Logger) *BreakerChannel {
	settings := gobreaker.Settings{
		Name:        string(inner.Type()),
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("channel circuit breaker state changed",
				logging.String("channel", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return IsPermanent(err)
		},
	}
	return &BreakerChannel{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerChannel) Type() models.ChannelType {
	return b.inner.Type()
}

func (b *BreakerChannel) Send(ctx context.Context, msg models.Message) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.inner.Send(ctx, msg)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &DispatchError{
			Channel: b.inner.Type(),
			Code:    "circuit-open",
			Message: "channel circuit breaker is open",
			Cause:   err,
		}
	}
	return err
}
