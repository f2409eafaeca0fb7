package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvanengelen78/guardrail/internal/models"
)

func createSession(t *testing.T, ts *testServer, userID string) SessionResponse {
	t.Helper()
	var s SessionResponse
	body := CreateSessionRequest{UserID: userID, UserAgent: "ua", IPAddress: "10.0.0.1"}
	AssertJSONResponse(t, ts.do(t, http.MethodPost, "/v1/sessions", body), http.StatusCreated, &s)
	require.NotEmpty(t, s.ID)
	return s
}

func TestSessionHandler_CreateAndValidate(t *testing.T) {
	ts := newTestServer(t, nil)
	s := createSession(t, ts, "user-1")
	assert.Equal(t, "user-1", s.UserID)
	assert.True(t, s.IsActive)
	require.NotNil(t, s.ExpiresAt)

	var v ValidateSessionResponse
	AssertJSONResponse(t, ts.do(t, http.MethodPost, "/v1/sessions/validate",
		ValidateSessionRequest{SessionID: s.ID, UserAgent: "ua", IPAddress: "10.0.0.1"}), http.StatusOK, &v)
	assert.True(t, v.Valid)
	require.NotNil(t, v.Session)
	assert.Equal(t, s.ID, v.Session.ID)
}

func TestSessionHandler_CreateDefaultsToCaller(t *testing.T) {
	ts := newTestServer(t, nil)
	req := NewTestRequest(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{UserID: "user-1"})
	req.Header.Set("User-Agent", "caller-agent")
	req.RemoteAddr = "192.0.2.10:5555"

	w := newRecorder(ts, req)
	var s SessionResponse
	AssertJSONResponse(t, w, http.StatusCreated, &s)
	assert.Equal(t, "caller-agent", s.UserAgent)
	assert.Equal(t, "192.0.2.10", s.IPAddress)
}

func TestSessionHandler_CreateValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	AssertErrorResponse(t, ts.do(t, http.MethodPost, "/v1/sessions", CreateSessionRequest{}), http.StatusBadRequest, "bad_request")
	AssertErrorResponse(t, ts.do(t, http.MethodPost, "/v1/sessions",
		CreateSessionRequest{UserID: "u", IPAddress: "not-an-ip"}), http.StatusBadRequest, "bad_request")
}

func TestSessionHandler_ValidateUnknownSession(t *testing.T) {
	ts := newTestServer(t, nil)

	var v ValidateSessionResponse
	AssertJSONResponse(t, ts.do(t, http.MethodPost, "/v1/sessions/validate",
		ValidateSessionRequest{SessionID: "missing"}), http.StatusOK, &v)
	assert.False(t, v.Valid)
	assert.Equal(t, models.SessionReasonNotFound, v.Reason)
	assert.Nil(t, v.Session)
}

func TestSessionHandler_Invalidate(t *testing.T) {
	ts := newTestServer(t, nil)
	s := createSession(t, ts, "user-1")

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/v1/sessions/"+s.ID, nil).Code)
	AssertErrorResponse(t, ts.do(t, http.MethodDelete, "/v1/sessions/"+s.ID, nil), http.StatusNotFound, "not_found")
}

func TestSessionHandler_InvalidateAllForUser(t *testing.T) {
	ts := newTestServer(t, nil)
	createSession(t, ts, "user-1")
	createSession(t, ts, "user-1")

	var resp map[string]int
	AssertJSONResponse(t, ts.do(t, http.MethodDelete, "/v1/users/user-1/sessions", nil), http.StatusOK, &resp)
	assert.Equal(t, 2, resp["count"])

	AssertJSONResponse(t, ts.do(t, http.MethodDelete, "/v1/users/user-1/sessions", nil), http.StatusOK, &resp)
	assert.Equal(t, 0, resp["count"])
}

func TestSessionHandler_Rotate(t *testing.T) {
	ts := newTestServer(t, nil)
	s := createSession(t, ts, "user-1")

	var rotated SessionResponse
	AssertJSONResponse(t, ts.do(t, http.MethodPost, "/v1/sessions/"+s.ID+"/rotate", nil), http.StatusOK, &rotated)
	assert.NotEqual(t, s.ID, rotated.ID)
	assert.Equal(t, 1, rotated.RotationCount)

	AssertErrorResponse(t, ts.do(t, http.MethodPost, "/v1/sessions/"+s.ID+"/rotate", nil), http.StatusNotFound, "not_found")
}
