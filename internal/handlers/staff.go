package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/utils"
	"church-automation/internal/models"
)

// CreateStaff registers a staff member in the directory used for
// approver selection, escalation targets and task assignment.
func (h *Handlers) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var staff models.Staff
	if err := json.NewDecoder(r.Body).Decode(&staff); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if staff.ChurchID == "" {
		staff.ChurchID = churchID(r)
	}
	if staff.ChurchID == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	if staff.Name == "" {
		respondError(w, errors.ValidationError("staff name is required"))
		return
	}
	switch staff.Role {
	case "PASTOR", "ADMIN", "STAFF":
	default:
		respondError(w, errors.ValidationError("role must be PASTOR, ADMIN or STAFF"))
		return
	}
	if staff.ID == "" {
		staff.ID = utils.NewID()
	}
	staff.IsActive = true
	staff.CreatedAt = time.Now()

	if err := h.storage.CreateStaff(r.Context(), &staff); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, staff)
}

// GetStaff lists active staff, optionally filtered by comma-separated
// roles.
func (h *Handlers) GetStaff(w http.ResponseWriter, r *http.Request) {
	church := churchID(r)
	if church == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	var roles []string
	if raw := r.URL.Query().Get("roles"); raw != "" {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
	}
	staff, err := h.storage.FindStaff(r.Context(), church, roles)
	if err != nil {
		respondError(w, err)
		return
	}
	if staff == nil {
		staff = []*models.Staff{}
	}
	respondJSON(w, http.StatusOK, staff)
}
