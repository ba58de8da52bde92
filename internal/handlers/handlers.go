// Package handlers implements the HTTP API: trigger ingestion, rule
// management, approvals, acknowledgments and the execution ledger.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"church-automation/internal/auth"
	"church-automation/internal/common/errors"
	"church-automation/internal/config"
	"church-automation/internal/engine"
	"church-automation/internal/storage"
	"church-automation/internal/triggers"
)

type Handlers struct {
	storage  storage.Storage
	engine   *engine.Engine
	visitors *triggers.VisitorService
	prayers  *triggers.PrayerService
	members  *triggers.MemberService
	auth     *auth.Auth
	config   *config.Config
}

func New(store storage.Storage, eng *engine.Engine, visitors *triggers.VisitorService, prayers *triggers.PrayerService, members *triggers.MemberService, authHandler *auth.Auth, cfg *config.Config) *Handlers {
	return &Handlers{
		storage:  store,
		engine:   eng,
		visitors: visitors,
		prayers:  prayers,
		members:  members,
		auth:     authHandler,
		config:   cfg,
	}
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps application error types to HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsType(err, errors.ErrTypeValidation):
		status = http.StatusBadRequest
	case errors.IsType(err, errors.ErrTypeNotFound):
		status = http.StatusNotFound
	case errors.IsType(err, errors.ErrTypeConflict):
		status = http.StatusConflict
	case errors.IsType(err, errors.ErrTypeAuth):
		status = http.StatusUnauthorized
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

// pagination reads limit and offset query parameters with defaults.
func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// churchID resolves the church scope for a request: the authenticated
// church from the token, or the church_id query parameter on unscoped
// deployments.
func churchID(r *http.Request) string {
	if id := r.Header.Get("X-Church-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("church_id")
}

// HealthCheck reports storage health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Health(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
