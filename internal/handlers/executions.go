package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"church-automation/internal/common/errors"
	"church-automation/internal/models"
	"church-automation/internal/storage"
)

// GetExecutions returns the church's execution ledger, newest last.
// Pass rule_id to narrow to one rule.
func (h *Handlers) GetExecutions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var (
		records []*models.ExecutionRecord
		err     error
	)
	if ruleID := r.URL.Query().Get("rule_id"); ruleID != "" {
		records, err = h.storage.ListExecutionsByRule(r.Context(), ruleID, limit, offset)
	} else {
		church := churchID(r)
		if church == "" {
			respondError(w, errors.ValidationError("church_id is required"))
			return
		}
		records, err = h.storage.ListExecutions(r.Context(), church, limit, offset)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	if records == nil {
		records = []*models.ExecutionRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// GetExecutionByID returns one ledger entry.
func (h *Handlers) GetExecutionByID(w http.ResponseWriter, r *http.Request) {
	rec, err := h.storage.GetExecution(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetManualTasks lists the human fallback tasks for the church.
func (h *Handlers) GetManualTasks(w http.ResponseWriter, r *http.Request) {
	church := churchID(r)
	if church == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	limit, offset := pagination(r)
	tasks, err := h.storage.ListManualTasks(r.Context(), church, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.ManualTask{}
	}
	respondJSON(w, http.StatusOK, tasks)
}

// GetFollowUps lists scheduled follow-up tasks for the church.
func (h *Handlers) GetFollowUps(w http.ResponseWriter, r *http.Request) {
	church := churchID(r)
	if church == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	limit, offset := pagination(r)
	tasks, err := h.storage.ListFollowUps(r.Context(), church, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.FollowUpTask{}
	}
	respondJSON(w, http.StatusOK, tasks)
}

// GetNotifications lists in-app notifications for the church.
func (h *Handlers) GetNotifications(w http.ResponseWriter, r *http.Request) {
	church := churchID(r)
	if church == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	limit, offset := pagination(r)
	notifications, err := h.storage.ListNotifications(r.Context(), church, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*storage.Notification{}
	}
	respondJSON(w, http.StatusOK, notifications)
}
