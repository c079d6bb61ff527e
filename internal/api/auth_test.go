package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueToken_ValidateRoundTrips(t *testing.T) {
	tok, err := IssueToken("secret", "user-1", time.Hour)
	require.NoError(t, err)

	claims, err := validateToken("secret", tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestValidateToken_WrongSecretRejected(t *testing.T) {
	tok, err := IssueToken("secret", "user-1", time.Hour)
	require.NoError(t, err)

	_, err = validateToken("other-secret", tok)
	assert.Error(t, err)
}

func TestValidateToken_ExpiredRejected(t *testing.T) {
	tok, err := IssueToken("secret", "user-1", -time.Hour)
	require.NoError(t, err)

	_, err = validateToken("secret", tok)
	assert.Error(t, err)
}

func TestAuthMiddleware_DisabledPassesThrough(t *testing.T) {
	s := newTestServer()
	s.enableAuth = false
	called := false
	h := s.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestAuthMiddleware_HealthAlwaysExempt(t *testing.T) {
	s := newTestServer()
	s.enableAuth = true
	s.jwtSecret = "secret"
	called := false
	h := s.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestAuthMiddleware_MissingHeaderRejected(t *testing.T) {
	s := newTestServer()
	s.enableAuth = true
	s.jwtSecret = "secret"
	h := s.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ValidTokenSetsSubjectHeader(t *testing.T) {
	s := newTestServer()
	s.enableAuth = true
	s.jwtSecret = "secret"

	var gotSubject string
	h := s.authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = r.Header.Get("X-Subject")
	}))

	tok, err := IssueToken("secret", "user-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "user-1", gotSubject)
}
