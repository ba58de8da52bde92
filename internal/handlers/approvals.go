package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"church-automation/internal/common/errors"
	"church-automation/internal/models"
)

// GetPendingApprovals lists approvals awaiting a decision.
func (h *Handlers) GetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	church := churchID(r)
	if church == "" {
		respondError(w, errors.ValidationError("church_id is required"))
		return
	}
	approvals, err := h.storage.ListPendingApprovals(r.Context(), church)
	if err != nil {
		respondError(w, err)
		return
	}
	if approvals == nil {
		approvals = []*models.ApprovalRecord{}
	}
	respondJSON(w, http.StatusOK, approvals)
}

// ApproveRule approves a suspended firing; the engine re-enters the
// pipeline with the snapshotted trigger event.
func (h *Handlers) ApproveRule(w http.ResponseWriter, r *http.Request) {
	approverID := r.Header.Get("X-User-ID")
	if approverID == "" {
		respondError(w, errors.ValidationError("approver identity is required"))
		return
	}
	if err := h.engine.Approve(r.Context(), mux.Vars(r)["id"], approverID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// RejectRule rejects a suspended firing; the rule's actions never run.
func (h *Handlers) RejectRule(w http.ResponseWriter, r *http.Request) {
	approverID := r.Header.Get("X-User-ID")
	if approverID == "" {
		respondError(w, errors.ValidationError("approver identity is required"))
		return
	}
	if err := h.engine.Reject(r.Context(), mux.Vars(r)["id"], approverID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// AcknowledgeAction records a staff response to a dispatched action,
// stopping its escalation timer.
func (h *Handlers) AcknowledgeAction(w http.ResponseWriter, r *http.Request) {
	staffID := r.Header.Get("X-User-ID")
	if staffID == "" {
		respondError(w, errors.ValidationError("staff identity is required"))
		return
	}
	if err := h.engine.Acknowledge(r.Context(), mux.Vars(r)["id"], staffID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}
