package channels

import (
	"context"
	"fmt"
	"time"

	"church-automation/internal/common/logging"
	"church-automation/internal/common/utils"
	"church-automation/internal/models"
	"church-automation/internal/storage"
)

// PushChannel writes in-app notifications. A message addresses either a
// single user, every active staff member holding a role, or the whole
// church (broadcast).
type PushChannel struct {
	notifications storage.NotificationStore
	staff         storage.StaffDirectory
	logger        logging.Logger
}

// NewPushChannel creates the storage-backed push channel.
func NewPushChannel(notifications storage.NotificationStore, staff storage.StaffDirectory, logger logging.Logger) *PushChannel {
	return &PushChannel{notifications: notifications, staff: staff, logger: logger}
}

func (c *PushChannel) Type() models.ChannelType {
	return models.ChannelPush
}

// Send fans the message out to its targets. Partial failures count as
// delivery when at least one target received the notification.
func (c *PushChannel) Send(ctx context.Context, msg models.Message) error {
	targets, err := c.resolveTargets(ctx, msg)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return &DispatchError{
			Channel:   models.ChannelPush,
			Code:      "invalid-recipient",
			Message:   "no push targets resolved",
			Permanent: true,
		}
	}

	result := models.PushResult{TotalTargets: len(targets)}
	var lastErr error
	for _, userID := range targets {
		n := &storage.Notification{
			ID:        utils.NewID(),
			ChurchID:  msg.ChurchID,
			UserID:    userID,
			Role:      msg.To.Role,
			Title:     msg.Subject,
			Body:      msg.Body,
			Priority:  msg.Priority,
			Meta:      msg.Meta,
			CreatedAt: time.Now().UTC(),
		}
		if err := c.notifications.CreateNotification(ctx, n); err != nil {
			result.Failed++
			lastErr = err
			continue
		}
		result.Succeeded++
	}

	c.logger.Debug("push fan-out complete",
		logging.String("church_id", msg.ChurchID),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed))

	if result.Succeeded == 0 {
		return &DispatchError{
			Channel: models.ChannelPush,
			Message: fmt.Sprintf("all %d push targets failed", result.TotalTargets),
			Cause:   lastErr,
		}
	}
	return nil
}

func (c *PushChannel) resolveTargets(ctx context.Context, msg models.Message) ([]string, error) {
	if msg.To.UserID != "" {
		return []string{msg.To.UserID}, nil
	}

	var roles []string
	if msg.To.Role != "" && !msg.To.Broadcast {
		roles = []string{msg.To.Role}
	}
	staff, err := c.staff.FindStaff(ctx, msg.ChurchID, roles)
	if err != nil {
		return nil, &DispatchError{
			Channel: models.ChannelPush,
			Message: "failed to resolve push targets",
			Cause:   err,
		}
	}
	targets := make([]string, 0, len(staff))
	for _, s := range staff {
		targets = append(targets, s.ID)
	}
	return targets, nil
}
