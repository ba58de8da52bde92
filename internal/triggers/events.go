// Package triggers produces the domain events that feed the automation
// engine: visitor check-ins, prayer requests, membership and giving
// events, and the scheduled sources (birthdays, anniversaries, due
// follow-ups) swept by the cron scheduler.
package triggers

import (
	"context"
	"time"

	"church-automation/internal/common/utils"
	"church-automation/internal/models"
)

// Processor receives trigger events and runs matching rules. The engine
// satisfies this.
type Processor interface {
	ProcessTrigger(ctx context.Context, event models.TriggerEvent)
}

func newEvent(t models.TriggerType, churchID, entityID, entityType string, payload map[string]interface{}) models.TriggerEvent {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return models.TriggerEvent{
		ID:         utils.GenerateEventID("evt", entityID),
		Type:       t,
		ChurchID:   churchID,
		EntityID:   entityID,
		EntityType: entityType,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
}

// NewMemberJoinedEvent announces a new church member.
func NewMemberJoinedEvent(churchID, memberID, name, email, phone string) models.TriggerEvent {
	return newEvent(models.TriggerMemberJoined, churchID, memberID, "member", map[string]interface{}{
		"member_id": memberID,
		"name":      name,
		"email":     email,
		"phone":     phone,
	})
}

// NewDonationEvent announces a received donation.
func NewDonationEvent(churchID, donationID, donorID string, amount float64, fund string) models.TriggerEvent {
	return newEvent(models.TriggerDonationReceived, churchID, donationID, "donation", map[string]interface{}{
		"donation_id": donationID,
		"donor_id":    donorID,
		"amount":      amount,
		"fund":        fund,
	})
}

// NewFormSubmissionEvent announces a submitted form with its field values.
func NewFormSubmissionEvent(churchID, submissionID, formID string, fields map[string]interface{}) models.TriggerEvent {
	return newEvent(models.TriggerFormSubmitted, churchID, submissionID, "form_submission", map[string]interface{}{
		"submission_id": submissionID,
		"form_id":       formID,
		"fields":        fields,
	})
}

// NewAttendanceEvent announces a recorded attendance entry.
func NewAttendanceEvent(churchID, attendanceID, memberID, eventID string, present bool) models.TriggerEvent {
	return newEvent(models.TriggerAttendanceRecorded, churchID, attendanceID, "attendance", map[string]interface{}{
		"attendance_id": attendanceID,
		"member_id":     memberID,
		"event_id":      eventID,
		"present":       present,
	})
}

// NewBirthdayEvent announces that today is the member's birthday.
func NewBirthdayEvent(member *models.Member) models.TriggerEvent {
	payload := map[string]interface{}{
		"member_id": member.ID,
		"name":      member.Name,
		"email":     member.Email,
		"phone":     member.Phone,
	}
	if member.BirthDate != nil {
		payload["birth_date"] = member.BirthDate.Format("2006-01-02")
	}
	return newEvent(models.TriggerBirthday, member.ChurchID, member.ID, "member", payload)
}

// NewAnniversaryEvent announces a membership or wedding anniversary.
func NewAnniversaryEvent(member *models.Member, kind string, years int) models.TriggerEvent {
	return newEvent(models.TriggerAnniversary, member.ChurchID, member.ID, "member", map[string]interface{}{
		"member_id": member.ID,
		"name":      member.Name,
		"email":     member.Email,
		"phone":     member.Phone,
		"kind":      kind,
		"years":     years,
	})
}

// NewFollowUpDueEvent announces that a scheduled follow-up task has come due.
func NewFollowUpDueEvent(task *models.FollowUpTask) models.TriggerEvent {
	return newEvent(models.TriggerFollowUpDue, task.ChurchID, task.ID, "follow_up", map[string]interface{}{
		"follow_up_id":   task.ID,
		"follow_up_type": task.FollowUpType,
		"assigned_to":    task.AssignedTo,
		"priority":       string(task.Priority),
		"notes":          task.Notes,
		"scheduled_at":   task.ScheduledAt.Format(time.RFC3339),
	})
}
