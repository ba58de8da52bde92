package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndValidateToken(t *testing.T) {
	a := New(testSecret, time.Hour)

	token, err := a.IssueToken("staff-1", "church-1", "PASTOR")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, "church-1", claims.ChurchID)
	assert.Equal(t, "PASTOR", claims.Role)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	a := New(testSecret, time.Hour)
	other := New("ffffffffffffffffffffffffffffffff", time.Hour)

	token, err := other.IssueToken("staff-1", "church-1", "PASTOR")
	require.NoError(t, err)

	_, err = a.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	a := New(testSecret, -time.Hour)

	token, err := a.IssueToken("staff-1", "church-1", "PASTOR")
	require.NoError(t, err)

	validator := New(testSecret, time.Hour)
	_, err = validator.ValidateToken(token)
	assert.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	a := New(testSecret, time.Hour)
	var gotUser, gotChurch, gotRole string
	handler := a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-ID")
		gotChurch = r.Header.Get("X-Church-ID")
		gotRole = r.Header.Get("X-Role")
		w.WriteHeader(http.StatusOK)
	}))

	// Missing header
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/rules", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Malformed header
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/rules", nil)
	req.Header.Set("Authorization", "Basic abc123")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token
	token, err := a.IssueToken("staff-9", "church-2", "ADMIN")
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/rules", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "staff-9", gotUser)
	assert.Equal(t, "church-2", gotChurch)
	assert.Equal(t, "ADMIN", gotRole)
}

func TestRequireRole(t *testing.T) {
	a := New(testSecret, time.Hour)
	handler := a.RequireRole("PASTOR", "ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/rules", nil)
	req.Header.Set("X-Role", "STAFF")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("X-Role", "ADMIN")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
