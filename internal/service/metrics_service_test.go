package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	svc := NewMetricsService()
	svc.ObserveHTTPRequest(http.MethodGet, "/events", http.StatusOK, 20*time.Millisecond)
	svc.ObserveHTTPRequest(http.MethodPost, "/intents", http.StatusConflict, 40*time.Millisecond)
	svc.ObserveDBQuery("events.find", 5*time.Millisecond)
	svc.ObserveIntent("Register", "ok", time.Millisecond)
	svc.ObserveIntent("Register", "TARGET_FULL", time.Millisecond)
	svc.RecordSweepCompletion()

	snap := svc.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30.0, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(1), snap.DBQueryCount)
	assert.Equal(t, uint64(2), snap.IntentsTotal)
	assert.Equal(t, uint64(1), snap.IntentsRejected)
	assert.Greater(t, snap.Goroutines, 0)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	svc := NewMetricsService()
	svc.ObserveIntent("CreateEvent", "FORBIDDEN", time.Millisecond)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `gateway_intents_total{intent="CreateEvent",result="FORBIDDEN"} 1`))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var svc *MetricsService
	svc.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	svc.ObserveIntent("x", "ok", time.Millisecond)
	svc.RecordSweepCompletion()
	assert.Zero(t, svc.Snapshot().RequestsTotal)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
