package channels

import (
	"context"
	"time"

	"church-automation/internal/common/utils"
	"church-automation/internal/models"
	"church-automation/internal/storage"
)

// FollowUpChannel records a follow-up task instead of sending anything.
// Modeling task creation as a channel lets create_follow_up actions
// share the dispatch path, retries included.
type FollowUpChannel struct {
	store storage.FollowUpStore
}

// NewFollowUpChannel creates the storage-backed follow-up channel.
func NewFollowUpChannel(store storage.FollowUpStore) *FollowUpChannel {
	return &FollowUpChannel{store: store}
}

func (c *FollowUpChannel) Type() models.ChannelType {
	return models.ChannelFollowUp
}

// Send creates the follow-up task. Scheduling details travel in Meta:
// follow_up_type, assigned_to, and delay_days relative to now.
func (c *FollowUpChannel) Send(ctx context.Context, msg models.Message) error {
	now := time.Now().UTC()

	followUpType := metaString(msg.Meta, "follow_up_type")
	if followUpType == "" {
		followUpType = "GENERAL"
	}
	scheduledAt := now
	if days, ok := metaFloat(msg.Meta, "delay_days"); ok && days > 0 {
		scheduledAt = now.Add(time.Duration(days*24) * time.Hour)
	}

	task := &models.FollowUpTask{
		ID:           utils.NewID(),
		ChurchID:     msg.ChurchID,
		FollowUpType: followUpType,
		Notes:        msg.Body,
		AssignedTo:   metaString(msg.Meta, "assigned_to"),
		Priority:     msg.Priority,
		Status:       "pending",
		ScheduledAt:  scheduledAt,
		CreatedAt:    now,
	}
	if err := c.store.CreateFollowUp(ctx, task); err != nil {
		return &DispatchError{
			Channel: models.ChannelFollowUp,
			Message: "failed to create follow-up task",
			Cause:   err,
		}
	}
	return nil
}

func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaFloat(meta map[string]interface{}, key string) (float64, bool) {
	if meta == nil {
		return 0, false
	}
	switch v := meta[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
