package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ops-audit-api/internal/dto"
	"github.com/noah-isme/ops-audit-api/internal/middleware"
	"github.com/noah-isme/ops-audit-api/internal/models"
	"github.com/noah-isme/ops-audit-api/internal/service"
	"github.com/noah-isme/ops-audit-api/pkg/audittrail"
	appErrors "github.com/noah-isme/ops-audit-api/pkg/errors"
	"github.com/noah-isme/ops-audit-api/pkg/jobs"
)

type auditServiceMock struct {
	lastQuery  dto.AuditTrailQuery
	lastFormat dto.ExportFormat
	lastReq    dto.NormalizeRequest
	trail      *dto.AuditTrailResponse
	preview    *dto.NormalizeResponse
	file       *dto.ExportFile
	err        error
}

func (m *auditServiceMock) Trail(ctx context.Context, query dto.AuditTrailQuery) (*dto.AuditTrailResponse, error) {
	m.lastQuery = query
	return m.trail, m.err
}

func (m *auditServiceMock) Preview(ctx context.Context, req dto.NormalizeRequest) (*dto.NormalizeResponse, error) {
	m.lastReq = req
	return m.preview, m.err
}

func (m *auditServiceMock) Export(ctx context.Context, query dto.AuditTrailQuery, format dto.ExportFormat) (*dto.ExportFile, error) {
	m.lastQuery = query
	m.lastFormat = format
	return m.file, m.err
}

type summaryMock struct {
	summary dto.ReferenceSummary
}

func (m summaryMock) Summary() dto.ReferenceSummary { return m.summary }

type dispatcherMock struct {
	jobs []jobs.Job
	err  error
}

func (m *dispatcherMock) TryEnqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *dispatcherMock) Name() string { return "reference-refresh" }

func newAuditContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 7, Role: models.RoleAdmin})
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuditHandlerTrail(t *testing.T) {
	svc := &auditServiceMock{trail: &dto.AuditTrailResponse{
		Entity:   "Interview",
		EntityID: 12,
		Count:    1,
		Entries:  []audittrail.RenderedEntry{{ID: 1, Action: "UPDATE", Actor: "Ann"}},
	}}
	h := NewAuditHandler(svc, summaryMock{}, &dispatcherMock{})

	c, w := newAuditContext(http.MethodGet, "/audit/Interview/12?limit=20", nil)
	c.Params = gin.Params{{Key: "entity", Value: "Interview"}, {Key: "entityId", Value: "12"}}
	h.Trail(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.AuditTrailQuery{Entity: "Interview", EntityID: 12, Limit: 20}, svc.lastQuery)
	body := decodeEnvelope(t, w)
	assert.JSONEq(t, `{"count":1}`, string(body["meta"]))
}

func TestAuditHandlerTrailRejectsBadParams(t *testing.T) {
	h := NewAuditHandler(&auditServiceMock{}, summaryMock{}, &dispatcherMock{})

	c, w := newAuditContext(http.MethodGet, "/audit/Interview/abc", nil)
	c.Params = gin.Params{{Key: "entity", Value: "Interview"}, {Key: "entityId", Value: "abc"}}
	h.Trail(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newAuditContext(http.MethodGet, "/audit/Interview/3?limit=-1", nil)
	c.Params = gin.Params{{Key: "entity", Value: "Interview"}, {Key: "entityId", Value: "3"}}
	h.Trail(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditHandlerTrailPropagatesServiceError(t *testing.T) {
	svc := &auditServiceMock{err: appErrors.Clone(appErrors.ErrInternal, "failed to load audit trail")}
	h := NewAuditHandler(svc, summaryMock{}, &dispatcherMock{})

	c, w := newAuditContext(http.MethodGet, "/audit/Interview/3", nil)
	c.Params = gin.Params{{Key: "entity", Value: "Interview"}, {Key: "entityId", Value: "3"}}
	h.Trail(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuditHandlerExport(t *testing.T) {
	svc := &auditServiceMock{file: &dto.ExportFile{Name: "audit.pdf", ContentType: "application/pdf", Body: []byte("%PDF")}}
	h := NewAuditHandler(svc, summaryMock{}, &dispatcherMock{})

	c, w := newAuditContext(http.MethodGet, "/audit/Interview/3/export?format=pdf", nil)
	c.Params = gin.Params{{Key: "entity", Value: "Interview"}, {Key: "entityId", Value: "3"}}
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ExportPDF, svc.lastFormat)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="audit.pdf"`)
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestAuditHandlerExportDefaultsToCSV(t *testing.T) {
	svc := &auditServiceMock{file: &dto.ExportFile{Name: "audit.csv", ContentType: "text/csv; charset=utf-8", Body: []byte("a,b\n")}}
	h := NewAuditHandler(svc, summaryMock{}, &dispatcherMock{})

	c, w := newAuditContext(http.MethodGet, "/audit/Interview/3/export", nil)
	c.Params = gin.Params{{Key: "entity", Value: "Interview"}, {Key: "entityId", Value: "3"}}
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ExportCSV, svc.lastFormat)
}

func TestAuditHandlerNormalize(t *testing.T) {
	svc := &auditServiceMock{preview: &dto.NormalizeResponse{}}
	h := NewAuditHandler(svc, summaryMock{}, &dispatcherMock{})

	payload := []byte(`{"entries":[{"id":1,"entity":"Driver","entityId":3,"action":"UPDATE","changes":{"before":{"a":1},"after":{"a":2}}}]}`)
	c, w := newAuditContext(http.MethodPost, "/audit/normalize", payload)
	h.Normalize(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.lastReq.Entries, 1)
	assert.Equal(t, "Driver", svc.lastReq.Entries[0].Entity)
}

func TestAuditHandlerNormalizeRejectsMalformedBody(t *testing.T) {
	h := NewAuditHandler(&auditServiceMock{}, summaryMock{}, &dispatcherMock{})

	c, w := newAuditContext(http.MethodPost, "/audit/normalize", []byte(`{"entries":`))
	h.Normalize(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditHandlerReferences(t *testing.T) {
	summary := dto.ReferenceSummary{Sizes: map[audittrail.Domain]int{audittrail.DomainUser: 2}, Fingerprint: "abc"}
	h := NewAuditHandler(&auditServiceMock{}, summaryMock{summary: summary}, &dispatcherMock{})

	c, w := newAuditContext(http.MethodGet, "/audit/references", nil)
	h.References(c)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Contains(t, string(body["data"]), `"abc"`)
}

func TestAuditHandlerRefreshReferences(t *testing.T) {
	dispatcher := &dispatcherMock{}
	h := NewAuditHandler(&auditServiceMock{}, summaryMock{}, dispatcher)

	c, w := newAuditContext(http.MethodPost, "/audit/references/refresh?force=true", nil)
	h.RefreshReferences(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, dispatcher.jobs, 1)
	job := dispatcher.jobs[0]
	assert.Equal(t, service.RefreshJobType, job.Type)
	assert.Equal(t, service.RefreshRequest{Force: true, RequestedBy: 7}, job.Payload)

	var body struct {
		Data dto.RefreshAccepted `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, job.ID, body.Data.JobID)
	assert.Equal(t, "reference-refresh", body.Data.Queue)
}

func TestAuditHandlerRefreshReferencesRejectsBadForce(t *testing.T) {
	dispatcher := &dispatcherMock{}
	h := NewAuditHandler(&auditServiceMock{}, summaryMock{}, dispatcher)

	c, w := newAuditContext(http.MethodPost, "/audit/references/refresh?force=yes", nil)
	h.RefreshReferences(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, dispatcher.jobs)
}

func TestAuditHandlerRefreshReferencesQueueFull(t *testing.T) {
	h := NewAuditHandler(&auditServiceMock{}, summaryMock{}, &dispatcherMock{err: jobs.ErrQueueFull})

	c, w := newAuditContext(http.MethodPost, "/audit/references/refresh", nil)
	h.RefreshReferences(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	h = NewAuditHandler(&auditServiceMock{}, summaryMock{}, &dispatcherMock{err: errors.New("queue not running")})
	c, w = newAuditContext(http.MethodPost, "/audit/references/refresh", nil)
	h.RefreshReferences(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"database": func(ctx context.Context) error { return nil },
		"cache":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	c, w := newAuditContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	h = NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"database": func(ctx context.Context) error { return nil },
	})
	c, w = newAuditContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)
}
