package engine

import (
	"strings"

	"church-automation/internal/models"
	"church-automation/internal/rules"
)

// BuildMessage turns an action configuration into a channel message,
// resolving {{field.path}} placeholders against the trigger payload.
// Recipient fields are read from the interpolated configuration:
// to_email, to_phone, to_user_id, to_role, broadcast. The full
// interpolated configuration travels in Meta so channels with extra
// needs (follow-up type, delay) can read it.
func BuildMessage(action models.Action, event models.TriggerEvent, priority models.Priority) models.Message {
	cfg := rules.InterpolateConfig(action.Configuration, event.Payload)

	body := configString(cfg, "body")
	if body == "" {
		body = configString(cfg, "message")
	}

	msg := models.Message{
		ChurchID: event.ChurchID,
		Subject:  configString(cfg, "subject"),
		Body:     body,
		Priority: priority,
		Meta:     cfg,
		To: models.Recipient{
			Email:     configString(cfg, "to_email"),
			Phone:     configString(cfg, "to_phone"),
			UserID:    configString(cfg, "to_user_id"),
			Role:      configString(cfg, "to_role"),
			Broadcast: configBool(cfg, "broadcast"),
		},
	}

	// notify_staff with no explicit target goes to all active staff.
	if action.Type == models.ActionNotifyStaff && msg.To.UserID == "" && msg.To.Role == "" {
		msg.To.Broadcast = true
	}
	return msg
}

// EventPriority reads the priority tier from the trigger payload,
// defaulting to NORMAL. Trigger adapters (prayer requests in
// particular) compute and stamp this field.
func EventPriority(event models.TriggerEvent) models.Priority {
	if v, ok := event.Payload["priority"].(string); ok {
		switch models.Priority(strings.ToUpper(v)) {
		case models.PriorityUrgent:
			return models.PriorityUrgent
		case models.PriorityHigh:
			return models.PriorityHigh
		case models.PriorityLow:
			return models.PriorityLow
		}
	}
	return models.PriorityNormal
}

func configString(cfg map[string]interface{}, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func configBool(cfg map[string]interface{}, key string) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return false
}
