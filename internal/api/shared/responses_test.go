package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs routes the default logger into a buffer for the test
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestRespondWithJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		data         any
		expectedBody string
	}{
		{
			name:         "object",
			status:       http.StatusOK,
			data:         map[string]any{"task_id": "abc", "queued": 3},
			expectedBody: `{"task_id":"abc","queued":3}`,
		},
		{
			name:         "accepted",
			status:       http.StatusAccepted,
			data:         map[string]any{},
			expectedBody: `{}`,
		},
		{
			name:         "nil",
			status:       http.StatusOK,
			data:         nil,
			expectedBody: `null`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			w := httptest.NewRecorder()

			RespondWithJSON(w, req, tc.status, tc.data)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tc.expectedBody, w.Body.String())
		})
	}
}

func TestRespondWithError_IncludesTraceID(t *testing.T) {
	captureLogs(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/x", nil)
	req = req.WithContext(WithTraceID(req.Context(), "trace-1"))
	w := httptest.NewRecorder()

	RespondWithError(w, req, http.StatusNotFound, "Task not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Task not found", resp.Error)
	assert.Equal(t, "trace-1", resp.TraceID)
	assert.NotContains(t, w.Body.String(), "404", "code is not serialized")
}

func TestRespondWithErrorAndLog(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "server error", status: http.StatusInternalServerError, wantLevel: "ERROR"},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantLevel: "ERROR"},
		{name: "rate limited", status: http.StatusTooManyRequests, wantLevel: "WARN"},
		{name: "bad request", status: http.StatusBadRequest, wantLevel: "DEBUG"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs := captureLogs(t)
			secret := errors.New("gemini call failed with api_key=abcdef1234567890")

			req := httptest.NewRequest(http.MethodPost, "/api/meals/analyses", nil)
			req = req.WithContext(context.WithValue(req.Context(), TraceIDKey, "trace-2"))
			w := httptest.NewRecorder()

			RespondWithErrorAndLog(w, req, tc.status, "Something went wrong", secret)

			assert.Equal(t, tc.status, w.Code)
			assert.NotContains(t, w.Body.String(), "gemini call failed")

			var entry map[string]any
			line := strings.TrimSpace(logs.String())
			require.NoError(t, json.Unmarshal([]byte(line), &entry))
			assert.Equal(t, tc.wantLevel, entry["level"])
			assert.Equal(t, "trace-2", entry["trace_id"])
			assert.Contains(t, entry["error"], "[REDACTED_KEY]")
			assert.NotContains(t, entry["error"], "abcdef1234567890")
		})
	}
}
