package handlers

import (
	"encoding/json"
	"net/http"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/utils"
	"church-automation/internal/models"
	"church-automation/internal/triggers"
)

// CreateMember records a member and emits MEMBER_JOINED. The stored
// record also feeds the daily birthday and anniversary sweep.
func (h *Handlers) CreateMember(w http.ResponseWriter, r *http.Request) {
	var member models.Member
	if err := json.NewDecoder(r.Body).Decode(&member); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if member.ChurchID == "" {
		member.ChurchID = churchID(r)
	}

	created, err := h.members.Record(r.Context(), member)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// GetMembers lists the church's members.
func (h *Handlers) GetMembers(w http.ResponseWriter, r *http.Request) {
	church := churchID(r)
	if church == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	limit, offset := pagination(r)
	members, err := h.storage.ListMembers(r.Context(), church, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	if members == nil {
		members = []*models.Member{}
	}
	respondJSON(w, http.StatusOK, members)
}

type donationRequest struct {
	ID       string  `json:"id"`
	ChurchID string  `json:"church_id"`
	DonorID  string  `json:"donor_id"`
	Amount   float64 `json:"amount"`
	Fund     string  `json:"fund,omitempty"`
}

// HandleDonation ingests a donation and emits DONATION_RECEIVED.
func (h *Handlers) HandleDonation(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if req.ChurchID == "" {
		req.ChurchID = churchID(r)
	}
	if req.ChurchID == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	if req.Amount <= 0 {
		respondError(w, errors.ValidationError("donation amount must be positive"))
		return
	}
	if req.ID == "" {
		req.ID = utils.NewID()
	}

	h.engine.ProcessTrigger(r.Context(), triggers.NewDonationEvent(req.ChurchID, req.ID, req.DonorID, req.Amount, req.Fund))
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":      "accepted",
		"donation_id": req.ID,
	})
}

type attendanceRequest struct {
	ID       string `json:"id"`
	ChurchID string `json:"church_id"`
	MemberID string `json:"member_id"`
	EventID  string `json:"event_id,omitempty"`
	Present  bool   `json:"present"`
}

// HandleAttendance ingests an attendance entry and emits
// ATTENDANCE_RECORDED.
func (h *Handlers) HandleAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if req.ChurchID == "" {
		req.ChurchID = churchID(r)
	}
	if req.ChurchID == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	if req.MemberID == "" {
		respondError(w, errors.ValidationError("member_id is required"))
		return
	}
	if req.ID == "" {
		req.ID = utils.NewID()
	}

	h.engine.ProcessTrigger(r.Context(), triggers.NewAttendanceEvent(req.ChurchID, req.ID, req.MemberID, req.EventID, req.Present))
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":        "accepted",
		"attendance_id": req.ID,
	})
}

type formSubmissionRequest struct {
	ID       string                 `json:"id"`
	ChurchID string                 `json:"church_id"`
	FormID   string                 `json:"form_id"`
	Fields   map[string]interface{} `json:"fields"`
}

// HandleFormSubmission ingests a submitted form and emits
// FORM_SUBMITTED with the field values as the payload.
func (h *Handlers) HandleFormSubmission(w http.ResponseWriter, r *http.Request) {
	var req formSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if req.ChurchID == "" {
		req.ChurchID = churchID(r)
	}
	if req.ChurchID == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	if req.FormID == "" {
		respondError(w, errors.ValidationError("form_id is required"))
		return
	}
	if req.ID == "" {
		req.ID = utils.NewID()
	}

	h.engine.ProcessTrigger(r.Context(), triggers.NewFormSubmissionEvent(req.ChurchID, req.ID, req.FormID, req.Fields))
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":        "accepted",
		"submission_id": req.ID,
	})
}
