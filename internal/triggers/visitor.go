package triggers

import (
	"context"
	"strings"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/logging"
	"church-automation/internal/common/utils"
	"church-automation/internal/models"
)

// VisitorType classifies a check-in for routing to the right welcome
// sequence.
type VisitorType string

const (
	VisitorFirstTime        VisitorType = "FIRST_TIME"
	VisitorReturn           VisitorType = "RETURN"
	VisitorMinistryInterest VisitorType = "MINISTRY_INTEREST"
	VisitorPrayerRequest    VisitorType = "PRAYER_REQUEST"
)

// CheckIn is a visitor check-in as captured at the welcome desk or a
// self-service kiosk.
type CheckIn struct {
	ID               string   `json:"id"`
	ChurchID         string   `json:"church_id"`
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	Email            string   `json:"email,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	IsFirstTime      bool     `json:"is_first_time"`
	VisitCount       int      `json:"visit_count,omitempty"`
	MinistryInterest []string `json:"ministry_interest,omitempty"`
	PrayerRequest    string   `json:"prayer_request,omitempty"`
	EventID          string   `json:"event_id,omitempty"`
}

// Classify determines the visitor type. A prayer request wins over
// ministry interest, which wins over first-time status.
func (c *CheckIn) Classify() VisitorType {
	switch {
	case strings.TrimSpace(c.PrayerRequest) != "":
		return VisitorPrayerRequest
	case len(c.MinistryInterest) > 0:
		return VisitorMinistryInterest
	case c.IsFirstTime:
		return VisitorFirstTime
	default:
		return VisitorReturn
	}
}

// VisitorService turns check-ins into trigger events. A check-in always
// produces CHECKIN_CREATED; first-time visitors additionally produce
// FIRST_TIME_VISITOR, and check-ins carrying a prayer request are
// forwarded to the prayer service.
type VisitorService struct {
	processor Processor
	prayer    *PrayerService
	logger    logging.Logger
}

func NewVisitorService(processor Processor, prayer *PrayerService, logger logging.Logger) *VisitorService {
	return &VisitorService{processor: processor, prayer: prayer, logger: logger}
}

// Process validates and classifies the check-in, then emits its events.
// Returns the stored classification so callers can echo it back.
func (s *VisitorService) Process(ctx context.Context, checkIn CheckIn) (VisitorType, error) {
	if checkIn.ChurchID == "" {
		return "", errors.ValidationError("check-in church_id is required")
	}
	if checkIn.FirstName == "" && checkIn.LastName == "" {
		return "", errors.ValidationError("check-in requires a visitor name")
	}
	if checkIn.ID == "" {
		checkIn.ID = utils.NewID()
	}

	visitorType := checkIn.Classify()
	payload := map[string]interface{}{
		"check_in_id":   checkIn.ID,
		"first_name":    checkIn.FirstName,
		"last_name":     checkIn.LastName,
		"name":          strings.TrimSpace(checkIn.FirstName + " " + checkIn.LastName),
		"email":         checkIn.Email,
		"phone":         checkIn.Phone,
		"is_first_time": checkIn.IsFirstTime,
		"visit_count":   checkIn.VisitCount,
		"visitor_type":  string(visitorType),
	}
	if checkIn.EventID != "" {
		payload["event_id"] = checkIn.EventID
	}
	if len(checkIn.MinistryInterest) > 0 {
		payload["ministry_interest"] = checkIn.MinistryInterest
	}

	s.logger.Info("Processing visitor check-in",
		logging.String("check_in_id", checkIn.ID),
		logging.String("church_id", checkIn.ChurchID),
		logging.String("visitor_type", string(visitorType)),
	)

	s.processor.ProcessTrigger(ctx, newEvent(models.TriggerCheckInCreated, checkIn.ChurchID, checkIn.ID, "check_in", payload))

	if visitorType == VisitorFirstTime {
		first := make(map[string]interface{}, len(payload))
		for k, v := range payload {
			first[k] = v
		}
		s.processor.ProcessTrigger(ctx, newEvent(models.TriggerFirstTimeVisitor, checkIn.ChurchID, checkIn.ID, "check_in", first))
	}

	if visitorType == VisitorPrayerRequest && s.prayer != nil {
		req := PrayerRequest{
			ChurchID:      checkIn.ChurchID,
			RequesterName: strings.TrimSpace(checkIn.FirstName + " " + checkIn.LastName),
			Email:         checkIn.Email,
			Phone:         checkIn.Phone,
			Message:       checkIn.PrayerRequest,
			Source:        "check_in",
		}
		if _, err := s.prayer.Process(ctx, req); err != nil {
			s.logger.Error("Failed to forward check-in prayer request", err,
				logging.String("check_in_id", checkIn.ID),
			)
		}
	}

	return visitorType, nil
}
