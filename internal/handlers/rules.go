package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/utils"
	"church-automation/internal/models"
)

// GetRules returns the church's automation rules.
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	church := churchID(r)
	if church == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	rules, err := h.storage.ListRules(r.Context(), church)
	if err != nil {
		respondError(w, err)
		return
	}
	if rules == nil {
		rules = []*models.AutomationRule{}
	}
	respondJSON(w, http.StatusOK, rules)
}

// GetRuleByID returns one rule.
func (h *Handlers) GetRuleByID(w http.ResponseWriter, r *http.Request) {
	rule, err := h.storage.GetRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// CreateRule validates and stores a new rule. Rules with unknown
// operators or action types are rejected here, not at dispatch time.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.AutomationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if rule.ChurchID == "" {
		rule.ChurchID = churchID(r)
	}
	if rule.ID == "" {
		rule.ID = utils.NewID()
	}
	for i := range rule.Actions {
		if rule.Actions[i].ID == "" {
			rule.Actions[i].ID = utils.NewID()
		}
	}
	if err := rule.Validate(); err != nil {
		respondError(w, errors.ValidationError(err.Error()))
		return
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.ExecutionCount = 0
	rule.LastExecutedAt = nil

	if err := h.storage.CreateRule(r.Context(), &rule); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// UpdateRule validates and replaces an existing rule. The execution
// budget counters are preserved from the stored rule.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.storage.GetRule(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	var rule models.AutomationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	rule.ID = id
	if rule.ChurchID == "" {
		rule.ChurchID = existing.ChurchID
	}
	for i := range rule.Actions {
		if rule.Actions[i].ID == "" {
			rule.Actions[i].ID = utils.NewID()
		}
	}
	if err := rule.Validate(); err != nil {
		respondError(w, errors.ValidationError(err.Error()))
		return
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	rule.ExecutionCount = existing.ExecutionCount
	rule.LastExecutedAt = existing.LastExecutedAt

	if err := h.storage.UpdateRule(r.Context(), &rule); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// DeleteRule removes a rule. Its execution history stays in the ledger.
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.DeleteRule(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
