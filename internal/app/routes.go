package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"church-automation/internal/handlers"
	"church-automation/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application. Trigger
// ingestion and management endpoints require a bearer token; rule and
// staff mutation additionally require the PASTOR or ADMIN role.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	router.Use(middleware.LoggingMiddleware)

	// Health check (no auth required)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	protected := router.NewRoute().Subrouter()
	protected.Use(authMiddleware)
	api := protected.PathPrefix("/api").Subrouter()

	// Trigger ingestion; returns 202, rules run asynchronously
	api.HandleFunc("/events", h.HandleEvent).Methods("POST")
	api.HandleFunc("/checkins", h.HandleCheckIn).Methods("POST")
	api.HandleFunc("/prayer-requests", h.HandlePrayerRequest).Methods("POST")
	api.HandleFunc("/donations", h.HandleDonation).Methods("POST")
	api.HandleFunc("/attendance", h.HandleAttendance).Methods("POST")
	api.HandleFunc("/form-submissions", h.HandleFormSubmission).Methods("POST")

	// Member directory; members feed the daily date sweep
	api.HandleFunc("/members", h.GetMembers).Methods("GET")
	api.HandleFunc("/members", h.CreateMember).Methods("POST")

	// Rule management
	api.HandleFunc("/rules", h.GetRules).Methods("GET")
	api.Handle("/rules", adminOnly(http.HandlerFunc(h.CreateRule))).Methods("POST")
	api.HandleFunc("/rules/{id}", h.GetRuleByID).Methods("GET")
	api.Handle("/rules/{id}", adminOnly(http.HandlerFunc(h.UpdateRule))).Methods("PUT")
	api.Handle("/rules/{id}", adminOnly(http.HandlerFunc(h.DeleteRule))).Methods("DELETE")

	// Approvals and acknowledgments
	api.HandleFunc("/approvals", h.GetPendingApprovals).Methods("GET")
	api.HandleFunc("/approvals/{id}/approve", h.ApproveRule).Methods("POST")
	api.HandleFunc("/approvals/{id}/reject", h.RejectRule).Methods("POST")
	api.HandleFunc("/acknowledgments/{id}", h.AcknowledgeAction).Methods("POST")

	// Execution ledger and derived work
	api.HandleFunc("/executions", h.GetExecutions).Methods("GET")
	api.HandleFunc("/executions/{id}", h.GetExecutionByID).Methods("GET")
	api.HandleFunc("/manual-tasks", h.GetManualTasks).Methods("GET")
	api.HandleFunc("/follow-ups", h.GetFollowUps).Methods("GET")
	api.HandleFunc("/notifications", h.GetNotifications).Methods("GET")

	// Staff directory
	api.HandleFunc("/staff", h.GetStaff).Methods("GET")
	api.Handle("/staff", adminOnly(http.HandlerFunc(h.CreateStaff))).Methods("POST")
}
