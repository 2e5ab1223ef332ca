package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphix-core/graphix-core/internal/investigate"
	"github.com/graphix-core/graphix-core/internal/store"
)

// newTestServer builds a Server with a nil store, valid only for the
// handlers exercised here (health and auth-rejection paths never touch
// the store).
func newTestServer() *Server {
	return NewServer(":0", nil, investigate.NewRoster(), nil)
}

func TestHandleHealthReportsRosterSize(t *testing.T) {
	roster := investigate.NewRoster()
	s := NewServer(":0", nil, roster, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","rosterSize":0}`, rec.Body.String())
}

func TestHandleHealthRejectsNonGet(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWithQueryRejectsNonGet(t *testing.T) {
	s := newTestServer()
	called := false
	handler := s.withQuery(func(r *http.Request) (any, error) {
		called = true
		return nil, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/deployments", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, called)
}

func TestWithAdminRejectsMissingAuthHeader(t *testing.T) {
	s := newTestServer()
	called := false
	handler := s.withAdmin(func(r *http.Request) (any, error) {
		called = true
		return nil, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/deleteNetwork", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestWithAdminRejectsNonPost(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/deleteNetwork", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	s.withAdmin(func(r *http.Request) (any, error) { return nil, nil })(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRespondMapsErrorsToStatusCodes(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.respond(rec, nil, fmt.Errorf("network mainnet: %w", store.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.respond(rec, nil, context.Canceled)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDecodeBodyHandlesEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/launchDivergenceInvestigation", nil)
	body, err := decodeBody[launchDivergenceInvestigationRequest](req)
	require.NoError(t, err)
	assert.Nil(t, body.Pois)
}
