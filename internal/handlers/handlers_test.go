package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"church-automation/internal/auth"
	"church-automation/internal/channels"
	"church-automation/internal/common/logging"
	"church-automation/internal/config"
	"church-automation/internal/engine"
	"church-automation/internal/hours"
	"church-automation/internal/models"
	"church-automation/internal/testutil"
	"church-automation/internal/triggers"
)

type testEnv struct {
	handlers *Handlers
	store    *testutil.MockStorage
	email    *testutil.MockChannel
	engine   *engine.Engine
	router   *mux.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.NewDefaultLogger()
	store := testutil.NewMockStorage()
	email := testutil.NewMockChannel(models.ChannelEmail)
	registry := channels.NewRegistry(email)

	clock := hours.FixedClock{Instant: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
	eng := engine.NewEngine(store, registry, clock, engine.Options{Logger: logger})
	t.Cleanup(eng.Shutdown)

	prayers := triggers.NewPrayerService(eng, logger)
	visitors := triggers.NewVisitorService(eng, prayers, logger)
	members := triggers.NewMemberService(store, eng, clock, logger)
	authHandler := auth.New("0123456789abcdef0123456789abcdef", time.Hour)
	h := New(store, eng, visitors, prayers, members, authHandler, &config.Config{})

	router := mux.NewRouter()
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/events", h.HandleEvent).Methods(http.MethodPost)
	router.HandleFunc("/api/checkins", h.HandleCheckIn).Methods(http.MethodPost)
	router.HandleFunc("/api/prayer-requests", h.HandlePrayerRequest).Methods(http.MethodPost)
	router.HandleFunc("/api/donations", h.HandleDonation).Methods(http.MethodPost)
	router.HandleFunc("/api/attendance", h.HandleAttendance).Methods(http.MethodPost)
	router.HandleFunc("/api/form-submissions", h.HandleFormSubmission).Methods(http.MethodPost)
	router.HandleFunc("/api/members", h.GetMembers).Methods(http.MethodGet)
	router.HandleFunc("/api/members", h.CreateMember).Methods(http.MethodPost)
	router.HandleFunc("/api/rules", h.GetRules).Methods(http.MethodGet)
	router.HandleFunc("/api/rules", h.CreateRule).Methods(http.MethodPost)
	router.HandleFunc("/api/rules/{id}", h.GetRuleByID).Methods(http.MethodGet)
	router.HandleFunc("/api/rules/{id}", h.UpdateRule).Methods(http.MethodPut)
	router.HandleFunc("/api/rules/{id}", h.DeleteRule).Methods(http.MethodDelete)
	router.HandleFunc("/api/approvals", h.GetPendingApprovals).Methods(http.MethodGet)
	router.HandleFunc("/api/approvals/{id}/approve", h.ApproveRule).Methods(http.MethodPost)
	router.HandleFunc("/api/approvals/{id}/reject", h.RejectRule).Methods(http.MethodPost)
	router.HandleFunc("/api/acknowledgments/{id}", h.AcknowledgeAction).Methods(http.MethodPost)
	router.HandleFunc("/api/executions", h.GetExecutions).Methods(http.MethodGet)
	router.HandleFunc("/api/executions/{id}", h.GetExecutionByID).Methods(http.MethodGet)
	router.HandleFunc("/api/manual-tasks", h.GetManualTasks).Methods(http.MethodGet)
	router.HandleFunc("/api/follow-ups", h.GetFollowUps).Methods(http.MethodGet)
	router.HandleFunc("/api/staff", h.GetStaff).Methods(http.MethodGet)
	router.HandleFunc("/api/staff", h.CreateStaff).Methods(http.MethodPost)

	return &testEnv{handlers: h, store: store, email: email, engine: eng, router: router}
}

// do performs a request scoped to the fixture church.
func (env *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Church-ID", testutil.ChurchID)
	req.Header.Set("X-User-ID", "s-admin")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	env.store.ErrorOnMethod["Health"] = assert.AnError
	rec = env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateRule(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]interface{}{
		"name":          "welcome email",
		"trigger_types": []string{"FIRST_TIME_VISITOR"},
		"is_active":     true,
		"actions": []map[string]interface{}{
			{"type": "send_email", "configuration": map[string]interface{}{"to_email": "x@example.com", "body": "hi"}},
		},
		"execution_count": 99,
	}
	rec := env.do(http.MethodPost, "/api/rules", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.AutomationRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Actions[0].ID)
	assert.Equal(t, testutil.ChurchID, created.ChurchID)
	// Client-supplied counters are discarded.
	assert.Zero(t, created.ExecutionCount)
	assert.Nil(t, created.LastExecutedAt)

	stored, err := env.store.GetRule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "welcome email", stored.Name)
}

func TestCreateRuleRejectsInvalidDefinitions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/rules", map[string]interface{}{
		"name":          "broken",
		"trigger_types": []string{"FIRST_TIME_VISITOR"},
		"actions": []map[string]interface{}{
			{"type": "send_fax"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "send_fax")

	req := httptest.NewRequest(http.MethodPost, "/api/rules", bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-Church-ID", testutil.ChurchID)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetRulesReturnsEmptyArray(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetRuleByIDNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/rules/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateRulePreservesCounters(t *testing.T) {
	env := newTestEnv(t)

	existing := testutil.NewRule("r1", models.TriggerFirstTimeVisitor)
	existing.ExecutionCount = 7
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	existing.LastExecutedAt = &last
	require.NoError(t, env.store.CreateRule(context.Background(), existing))

	body := map[string]interface{}{
		"name":          "renamed",
		"trigger_types": []string{"FIRST_TIME_VISITOR"},
		"is_active":     false,
		"actions": []map[string]interface{}{
			{"type": "send_email", "configuration": map[string]interface{}{"to_email": "y@example.com"}},
		},
	}
	rec := env.do(http.MethodPut, "/api/rules/r1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := env.store.GetRule(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 7, updated.ExecutionCount)
	require.NotNil(t, updated.LastExecutedAt)
	assert.True(t, updated.LastExecutedAt.Equal(last))
	assert.True(t, updated.CreatedAt.Equal(existing.CreatedAt))
}

func TestDeleteRule(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateRule(context.Background(), testutil.NewRule("r1", models.TriggerBirthday)))

	rec := env.do(http.MethodDelete, "/api/rules/r1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodDelete, "/api/rules/r1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEventRunsMatchingRules(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateRule(context.Background(), testutil.NewRule("r1", models.TriggerDonationReceived)))

	rec := env.do(http.MethodPost, "/api/events", map[string]interface{}{
		"type":    "DONATION_RECEIVED",
		"payload": map[string]interface{}{"name": "Elena", "amount": 100},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "DONATION_RECEIVED")

	env.engine.Wait()
	require.Len(t, env.email.Sent(), 1)
	assert.Equal(t, "Hello Elena", env.email.Sent()[0].Body)
}

func TestHandleEventValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/events", map[string]interface{}{
		"payload": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No church scope at all.
	req := httptest.NewRequest(http.MethodPost, "/api/events",
		bytes.NewReader([]byte(`{"type":"BIRTHDAY"}`)))
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandleCheckIn(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateRule(context.Background(), testutil.NewRule("r1", models.TriggerFirstTimeVisitor)))

	rec := env.do(http.MethodPost, "/api/checkins", map[string]interface{}{
		"first_name":    "Nina",
		"is_first_time": true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "FIRST_TIME")

	env.engine.Wait()
	assert.Equal(t, 1, env.email.SendCount())
}

func TestHandlePrayerRequest(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/prayer-requests", map[string]interface{}{
		"requester_name": "Oscar",
		"message":        "My father is in the hospital",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "URGENT")

	rec = env.do(http.MethodPost, "/api/prayer-requests", map[string]interface{}{
		"requester_name": "Oscar",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprovalEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rule := testutil.NewRule("r1", models.TriggerFormSubmitted)
	rule.BypassApproval = false
	require.NoError(t, env.store.CreateRule(context.Background(), rule))

	rec := env.do(http.MethodPost, "/api/events", map[string]interface{}{
		"type":    "FORM_SUBMITTED",
		"payload": map[string]interface{}{"name": "Hugo"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.engine.Wait()

	rec = env.do(http.MethodGet, "/api/approvals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var approvals []*models.ApprovalRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approvals))
	require.Len(t, approvals, 1)

	// Identity is mandatory for decisions.
	req := httptest.NewRequest(http.MethodPost, "/api/approvals/"+approvals[0].ID+"/approve", nil)
	req.Header.Set("X-Church-ID", testutil.ChurchID)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	rec = env.do(http.MethodPost, "/api/approvals/"+approvals[0].ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env.engine.Wait()
	assert.Equal(t, 1, env.email.SendCount())

	// The decision is final; a second one conflicts.
	rec = env.do(http.MethodPost, "/api/approvals/"+approvals[0].ID+"/reject", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodGet, "/api/approvals", nil)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestAcknowledgeUnknownID(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/acknowledgments/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetExecutions(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateRule(context.Background(), testutil.NewRule("r1", models.TriggerBirthday)))

	env.do(http.MethodPost, "/api/events", map[string]interface{}{"type": "BIRTHDAY"})
	env.engine.Wait()

	rec := env.do(http.MethodGet, "/api/executions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []*models.ExecutionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, models.ExecutionSuccess, records[0].Status)

	rec = env.do(http.MethodGet, "/api/executions?rule_id=r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 1)

	rec = env.do(http.MethodGet, "/api/executions/"+records[0].ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/executions?rule_id=other", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetExecutionsRequiresChurchScope(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/executions", nil)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStaffEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/staff", map[string]interface{}{
		"name": "Pastor Juan",
		"role": "PASTOR",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Staff
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	rec = env.do(http.MethodPost, "/api/staff", map[string]interface{}{
		"name": "Someone",
		"role": "VOLUNTEER",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/staff?roles=PASTOR,ADMIN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var staff []*models.Staff
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &staff))
	require.Len(t, staff, 1)
	assert.Equal(t, "Pastor Juan", staff[0].Name)

	rec = env.do(http.MethodGet, "/api/staff?roles=STAFF", nil)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestFollowUpsAndManualTasksEmpty(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/follow-ups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = env.do(http.MethodGet, "/api/manual-tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCreateMemberEmitsMemberJoined(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateRule(context.Background(), testutil.NewRule("r1", models.TriggerMemberJoined)))

	rec := env.do(http.MethodPost, "/api/members", map[string]interface{}{
		"name":  "Ana Torres",
		"email": "ana@example.com",
		"phone": "+573001112233",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testutil.ChurchID, created.ChurchID)
	assert.True(t, created.IsActive)

	env.engine.Wait()
	require.Len(t, env.email.Sent(), 1)
	assert.Equal(t, "Hello Ana Torres", env.email.Sent()[0].Body)

	members, err := env.store.ListMembers(context.Background(), testutil.ChurchID, 10, 0)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, created.ID, members[0].ID)
}

func TestCreateMemberValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/members", map[string]interface{}{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name")
}

func TestGetMembersReturnsEmptyArray(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandleDonation(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateRule(context.Background(), testutil.NewRule("r1", models.TriggerDonationReceived)))

	rec := env.do(http.MethodPost, "/api/donations", map[string]interface{}{
		"donor_id": "m-9",
		"amount":   150.0,
		"fund":     "missions",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "donation_id")

	env.engine.Wait()
	assert.Len(t, env.email.Sent(), 1)

	rec = env.do(http.MethodPost, "/api/donations", map[string]interface{}{"donor_id": "m-9", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAttendance(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateRule(context.Background(), testutil.NewRule("r1", models.TriggerAttendanceRecorded)))

	rec := env.do(http.MethodPost, "/api/attendance", map[string]interface{}{
		"member_id": "m-1",
		"event_id":  "service-sunday",
		"present":   true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.engine.Wait()
	assert.Len(t, env.email.Sent(), 1)

	rec = env.do(http.MethodPost, "/api/attendance", map[string]interface{}{"event_id": "service-sunday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "member_id")
}

func TestHandleFormSubmission(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateRule(context.Background(), testutil.NewRule("r1", models.TriggerFormSubmitted)))

	rec := env.do(http.MethodPost, "/api/form-submissions", map[string]interface{}{
		"form_id": "volunteer-signup",
		"fields":  map[string]interface{}{"ministry": "worship"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.engine.Wait()
	assert.Len(t, env.email.Sent(), 1)

	rec = env.do(http.MethodPost, "/api/form-submissions", map[string]interface{}{"fields": map[string]interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "form_id")
}
