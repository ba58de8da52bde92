// Package models defines the domain model for the automation engine:
// trigger events, automation rules with their conditions and actions,
// execution records, approvals, acknowledgments and manual tasks.
package models

import (
	"time"
)

// TriggerType identifies the domain event that may cause rules to fire.
type TriggerType string

const (
	TriggerCheckInCreated         TriggerType = "CHECKIN_CREATED"
	TriggerFirstTimeVisitor       TriggerType = "FIRST_TIME_VISITOR"
	TriggerPrayerRequestSubmitted TriggerType = "PRAYER_REQUEST_SUBMITTED"
	TriggerPrayerRequestApproved  TriggerType = "PRAYER_REQUEST_APPROVED"
	TriggerMemberJoined           TriggerType = "MEMBER_JOINED"
	TriggerFormSubmitted          TriggerType = "FORM_SUBMITTED"
	TriggerDonationReceived       TriggerType = "DONATION_RECEIVED"
	TriggerAttendanceRecorded     TriggerType = "ATTENDANCE_RECORDED"
	TriggerBirthday               TriggerType = "BIRTHDAY"
	TriggerAnniversary            TriggerType = "ANNIVERSARY"
	TriggerFollowUpDue            TriggerType = "FOLLOW_UP_DUE"
)

// TriggerEvent is a domain event delivered to the engine. Payload carries
// arbitrary event data addressed by dot-path in conditions and templates.
type TriggerEvent struct {
	ID         string                 `json:"id"`
	Type       TriggerType            `json:"type"`
	ChurchID   string                 `json:"church_id"`
	EntityID   string                 `json:"entity_id,omitempty"`
	EntityType string                 `json:"entity_type,omitempty"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Priority tiers used for escalation and manual tasks.
type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)
