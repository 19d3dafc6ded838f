package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthHandler_NoHealthFuncIsOK(t *testing.T) {
	recorder := httptest.NewRecorder()
	healthHandler(nil)(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	health := func(context.Context) map[string]bool {
		return map[string]bool{"sec": true, "docs": true}
	}
	recorder := httptest.NewRecorder()
	healthHandler(health)(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Equal(t, "ok", payload["status"])
}

func TestHealthHandler_DegradedWhenAnyUnhealthy(t *testing.T) {
	health := func(context.Context) map[string]bool {
		return map[string]bool{"sec": true, "docs": false}
	}
	recorder := httptest.NewRecorder()
	healthHandler(health)(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Equal(t, "degraded", payload["status"])
}
