package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutetimely/leavetime/internal/api/middleware"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())
	return entry
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(zerolog.New(&buf)))
	r.Get("/v1/trips/{tripId}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"trp_1"}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/trips/trp_1", http.NoBody)
	req.Header.Set("User-Agent", "LeaveTime-iOS/3.2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/trips/trp_1", entry["path"])
	assert.Equal(t, "/v1/trips/{tripId}", entry["route"])
	assert.Equal(t, float64(http.StatusOK), entry["status"], "implicit 200")
	assert.Equal(t, float64(len(`{"id":"trp_1"}`)), entry["bytes"])
	assert.Equal(t, "LeaveTime-iOS/3.2", entry["user_agent"])
	assert.Equal(t, w.Header().Get("X-Request-Id"), entry["request_id"])
	assert.Contains(t, entry, "duration")
	assert.NotContains(t, entry, "trace_id", "no span in context")
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  string
	}{
		{"success", "/v1/trips", http.StatusOK, "info"},
		{"accepted", "/v1/location", http.StatusAccepted, "info"},
		{"client error", "/v1/trips/trp_x", http.StatusNotFound, "warn"},
		{"server error", "/v1/trips/trp_1/refresh", http.StatusServiceUnavailable, "error"},
		{"health probe", "/health", http.StatusOK, "debug"},
		{"failing readiness", "/ready", http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			entry := decodeLogLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
			assert.Equal(t, "unmatched", entry["route"])
		})
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	setupTestTracer(t)
	var buf bytes.Buffer

	h := middleware.Tracing("leavetime-api")(middleware.Logger(zerolog.New(&buf))(okHandler()))
	req := httptest.NewRequest(http.MethodGet, "/v1/preferences", http.NoBody)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.NotEmpty(t, entry["span_id"])
	assert.NotEqual(t, "00f067aa0ba902b7", entry["span_id"], "logs the server span, not the caller's")
}
