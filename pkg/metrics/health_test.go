package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHealthAggregatesComponents(t *testing.T) {
	RegisterComponent("store", true, "")
	RegisterComponent("queue", true, "")
	RegisterComponent("reconciler", true, "")

	health := GetHealth()
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Components["store"])

	UpdateComponent("queue", false, "database unavailable")
	health = GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Contains(t, health.Components["queue"], "database unavailable")

	UpdateComponent("queue", true, "")
	assert.Equal(t, "healthy", GetHealth().Status)
}

func TestGetReadinessRequiresCriticalComponents(t *testing.T) {
	RegisterComponent("store", true, "")
	RegisterComponent("queue", true, "")
	RegisterComponent("reconciler", true, "")

	readiness := GetReadiness()
	assert.Equal(t, "ready", readiness.Status)

	UpdateComponent("reconciler", false, "not started")
	readiness = GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.Equal(t, "waiting for reconciler", readiness.Message)

	UpdateComponent("reconciler", true, "")
}

func TestHealthHandler(t *testing.T) {
	RegisterComponent("store", true, "")
	RegisterComponent("queue", true, "")
	RegisterComponent("reconciler", true, "")

	rec := httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestReadyHandlerNotReady(t *testing.T) {
	RegisterComponent("store", true, "")
	RegisterComponent("queue", true, "")
	UpdateComponent("reconciler", false, "starting")
	defer UpdateComponent("reconciler", true, "")

	rec := httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTimerObservesElapsed(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 10*time.Millisecond)
}
