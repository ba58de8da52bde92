package triggers

import (
	"context"
	"time"

	"church-automation/internal/common/logging"
	"church-automation/internal/hours"
	"church-automation/internal/storage"
)

// Source is a scheduled producer of trigger events, run by the daily
// sweep. Implementations query their backing store for entries that
// have come due and emit one event per entry.
type Source interface {
	Name() string
	Emit(ctx context.Context) error
}

// FollowUpSource emits FOLLOW_UP_DUE events for pending follow-up tasks
// whose scheduled time has passed. Each task is claimed through the
// notified flag before its event fires, so restarts and overlapping
// sweeps never emit a task twice.
type FollowUpSource struct {
	store     storage.FollowUpStore
	processor Processor
	clock     hours.Clock
	logger    logging.Logger
}

func NewFollowUpSource(store storage.FollowUpStore, processor Processor, clock hours.Clock, logger logging.Logger) *FollowUpSource {
	if clock == nil {
		clock = hours.SystemClock{}
	}
	return &FollowUpSource{store: store, processor: processor, clock: clock, logger: logger}
}

func (s *FollowUpSource) Name() string { return "follow_up_due" }

// Emit sweeps due follow-ups and fires one event per claimed task.
func (s *FollowUpSource) Emit(ctx context.Context) error {
	now := s.clock.Now()
	due, err := s.store.ListDueFollowUps(ctx, now)
	if err != nil {
		return err
	}
	for _, task := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		claimed, err := s.store.MarkFollowUpNotified(ctx, task.ID)
		if err != nil {
			s.logger.Error("Failed to claim due follow-up", err,
				logging.String("follow_up_id", task.ID),
			)
			continue
		}
		if !claimed {
			continue
		}
		s.logger.Info("Follow-up due",
			logging.String("follow_up_id", task.ID),
			logging.String("church_id", task.ChurchID),
			logging.String("follow_up_type", task.FollowUpType),
			logging.Duration("overdue_by", now.Sub(task.ScheduledAt).Round(time.Second)),
		)
		s.processor.ProcessTrigger(ctx, NewFollowUpDueEvent(task))
	}
	return nil
}
