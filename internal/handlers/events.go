package handlers

import (
	"encoding/json"
	"net/http"

	"church-automation/internal/common/errors"
	"church-automation/internal/models"
	"church-automation/internal/triggers"
)

// HandleEvent ingests a raw trigger event. Rules run asynchronously, so
// the response is 202 regardless of what the matching rules do.
func (h *Handlers) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var event models.TriggerEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if event.Type == "" {
		respondError(w, errors.ValidationError("event type is required"))
		return
	}
	if event.ChurchID == "" {
		event.ChurchID = churchID(r)
	}
	if event.ChurchID == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}

	h.engine.ProcessTrigger(r.Context(), event)
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"type":   string(event.Type),
	})
}

// HandleCheckIn ingests a visitor check-in, classifies it and feeds the
// resulting events to the engine.
func (h *Handlers) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	var checkIn triggers.CheckIn
	if err := json.NewDecoder(r.Body).Decode(&checkIn); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if checkIn.ChurchID == "" {
		checkIn.ChurchID = churchID(r)
	}

	visitorType, err := h.visitors.Process(r.Context(), checkIn)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":       "accepted",
		"visitor_type": string(visitorType),
	})
}

// HandlePrayerRequest ingests a prayer request, ranks its priority and
// feeds the resulting event to the engine.
func (h *Handlers) HandlePrayerRequest(w http.ResponseWriter, r *http.Request) {
	var req triggers.PrayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if req.ChurchID == "" {
		req.ChurchID = churchID(r)
	}

	priority, err := h.prayers.Process(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"priority": string(priority),
	})
}
