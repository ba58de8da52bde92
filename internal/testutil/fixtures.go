package testutil

import (
	"time"

	"church-automation/internal/models"
)

// Fixture defaults shared by engine and handler tests.
const (
	ChurchID = "church-1"
)

// NewRule builds an active rule with one email action, responding to
// the given trigger type.
func NewRule(id string, trigger models.TriggerType) *models.AutomationRule {
	return &models.AutomationRule{
		ID:             id,
		ChurchID:       ChurchID,
		Name:           "rule " + id,
		TriggerTypes:   []models.TriggerType{trigger},
		Actions:        []models.Action{NewEmailAction(id + "-a1")},
		IsActive:       true,
		BypassApproval: true,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// NewEmailAction builds a send_email action with a fixed recipient.
func NewEmailAction(id string) models.Action {
	return models.Action{
		ID:   id,
		Type: models.ActionSendEmail,
		Configuration: map[string]interface{}{
			"to_email": "visitor@example.com",
			"subject":  "Welcome",
			"body":     "Hello {{name}}",
		},
	}
}

// NewEvent builds a trigger event with the given payload.
func NewEvent(t models.TriggerType, payload map[string]interface{}) models.TriggerEvent {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return models.TriggerEvent{
		ID:        "evt-" + string(t),
		Type:      t,
		ChurchID:  ChurchID,
		Payload:   payload,
		Timestamp: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}
}

// NewStaff builds an active staff member.
func NewStaff(id, role string, createdAt time.Time) *models.Staff {
	return &models.Staff{
		ID:        id,
		ChurchID:  ChurchID,
		Name:      "staff " + id,
		Email:     id + "@example.com",
		Role:      role,
		IsActive:  true,
		CreatedAt: createdAt,
	}
}
