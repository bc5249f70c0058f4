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

	"github.com/noah-isme/ops-audit-api/pkg/audittrail"
)

func TestMetricsServiceExposesAuditCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/audit/:entity/:entityId", http.StatusOK, 5*time.Millisecond)
	m.ObserveNormalized([]audittrail.Entry{
		{Payload: audittrail.Payload{Kind: audittrail.PayloadChangeList}},
		{Payload: audittrail.Payload{Kind: audittrail.PayloadAbsent}},
	}, time.Millisecond)
	m.ObserveDirectory(RefreshRebuilt, map[audittrail.Domain]int{audittrail.DomainUser: 3})
	m.ObserveJob(RefreshJobType, errors.New("boom"))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `audit_entries_normalized_total{kind="change_list"} 1`)
	assert.Contains(t, text, `audit_entries_normalized_total{kind="absent"} 1`)
	assert.Contains(t, text, `audit_directory_rebuilds_total{outcome="rebuilt"} 1`)
	assert.Contains(t, text, `audit_directory_entries{domain="user"} 3`)
	assert.Contains(t, text, `background_jobs_total{queue="reference-refresh",result="failure"} 1`)

	snapshot := m.Snapshot()
	assert.Equal(t, uint64(1), snapshot.RequestsTotal)
	assert.Equal(t, uint64(1), snapshot.DirectoryRebuilds)
	assert.Equal(t, map[string]uint64{"change_list": 1, "absent": 1}, snapshot.EntriesNormalized)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveDBQuery("q", time.Millisecond)
	m.ObserveNormalized(nil, 0)
	m.ObserveDirectory(RefreshFailed, nil)
	m.ObserveJob("q", nil)
	assert.Equal(t, 0, m.Snapshot().Goroutines)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
