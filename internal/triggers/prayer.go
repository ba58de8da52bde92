package triggers

import (
	"context"
	"strings"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/logging"
	"church-automation/internal/common/utils"
	"church-automation/internal/models"
)

// Keyword lists used to rank incoming prayer requests. The congregation
// is bilingual, so both Spanish and English terms are matched.
var (
	urgentPrayerKeywords = []string{
		"urgente", "emergency", "hospital", "surgery", "cancer", "death", "crisis", "emergencia",
	}
	highPrayerKeywords = []string{
		"enfermo", "sick", "job", "trabajo", "familia", "family", "relationship", "depresion", "anxiety",
	}
)

// CalculatePriority ranks a prayer request by scanning its text for
// urgent and elevated keywords. Matching is case-insensitive substring
// matching.
func CalculatePriority(message string) models.Priority {
	text := strings.ToLower(message)
	for _, kw := range urgentPrayerKeywords {
		if strings.Contains(text, kw) {
			return models.PriorityUrgent
		}
	}
	for _, kw := range highPrayerKeywords {
		if strings.Contains(text, kw) {
			return models.PriorityHigh
		}
	}
	return models.PriorityNormal
}

// IsUrgentPrayer reports whether the request text ranks as urgent.
func IsUrgentPrayer(message string) bool {
	return CalculatePriority(message) == models.PriorityUrgent
}

// PrayerRequest is an incoming prayer request from the prayer wall, a
// form, or a visitor check-in.
type PrayerRequest struct {
	ID            string `json:"id"`
	ChurchID      string `json:"church_id"`
	RequesterName string `json:"requester_name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Message       string `json:"message"`
	Category      string `json:"category,omitempty"`
	IsAnonymous   bool   `json:"is_anonymous,omitempty"`
	Source        string `json:"source,omitempty"`
}

// PrayerService turns prayer requests into PRAYER_REQUEST_SUBMITTED
// trigger events carrying the computed priority.
type PrayerService struct {
	processor Processor
	logger    logging.Logger
}

func NewPrayerService(processor Processor, logger logging.Logger) *PrayerService {
	return &PrayerService{processor: processor, logger: logger}
}

// Process validates the request, ranks it, and emits the trigger event.
// Returns the computed priority so callers can echo it back.
func (s *PrayerService) Process(ctx context.Context, req PrayerRequest) (models.Priority, error) {
	if req.ChurchID == "" {
		return "", errors.ValidationError("prayer request church_id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return "", errors.ValidationError("prayer request message is required")
	}
	if req.ID == "" {
		req.ID = utils.NewID()
	}

	priority := CalculatePriority(req.Message)

	s.logger.Info("Processing prayer request",
		logging.String("prayer_request_id", req.ID),
		logging.String("church_id", req.ChurchID),
		logging.String("priority", string(priority)),
	)

	payload := map[string]interface{}{
		"prayer_request_id": req.ID,
		"requester_name":    req.RequesterName,
		"email":             req.Email,
		"phone":             req.Phone,
		"message":           req.Message,
		"priority":          string(priority),
		"is_anonymous":      req.IsAnonymous,
	}
	if req.Category != "" {
		payload["category"] = req.Category
	}
	if req.Source != "" {
		payload["source"] = req.Source
	}

	s.processor.ProcessTrigger(ctx, newEvent(models.TriggerPrayerRequestSubmitted, req.ChurchID, req.ID, "prayer_request", payload))
	return priority, nil
}
