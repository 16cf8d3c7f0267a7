package service

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sd-cohort-api/pkg/errors"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/enrollments", 200, 20*time.Millisecond)
	m.ObserveHTTPRequest("POST", "/api/v1/enrollments/:id/approve", 409, 40*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordAdmission(AdmissionEnrollment, nil)
	m.RecordAdmission(AdmissionEnrollment, appErrors.Clone(appErrors.ErrCapacity, "section full (40/40)"))
	m.RecordNotification(NoticeApproval, nil)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30, snap.AverageRequestDurationMs, 0.01)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(1), snap.Admitted)
	assert.Equal(t, uint64(1), snap.Refused)
	assert.Equal(t, uint64(1), snap.NotificationsSent)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `admission_decisions_total{kind="enrollment",outcome="capacity"} 1`)
	assert.Contains(t, string(body), `notifications_total{outcome="sent",template="approval"} 1`)
}

func TestAdmissionOutcome(t *testing.T) {
	assert.Equal(t, "conflict", admissionOutcome(appErrors.Clone(appErrors.ErrConflict, "x")))
	assert.Equal(t, "invalid_state", admissionOutcome(appErrors.ErrInvalidState))
	assert.Equal(t, "error", admissionOutcome(errors.New("boom")))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordAdmission(AdmissionBinding, nil)
	m.RecordNotification(NoticeRejection, errors.New("x"))
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
