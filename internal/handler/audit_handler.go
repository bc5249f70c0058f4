package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ops-audit-api/internal/dto"
	"github.com/noah-isme/ops-audit-api/internal/service"
	appErrors "github.com/noah-isme/ops-audit-api/pkg/errors"
	"github.com/noah-isme/ops-audit-api/pkg/jobs"
	"github.com/noah-isme/ops-audit-api/pkg/response"
)

type auditTrailService interface {
	Trail(ctx context.Context, query dto.AuditTrailQuery) (*dto.AuditTrailResponse, error)
	Preview(ctx context.Context, req dto.NormalizeRequest) (*dto.NormalizeResponse, error)
	Export(ctx context.Context, query dto.AuditTrailQuery, format dto.ExportFormat) (*dto.ExportFile, error)
}

type referenceSummarizer interface {
	Summary() dto.ReferenceSummary
}

type refreshDispatcher interface {
	TryEnqueue(job jobs.Job) error
	Name() string
}

// AuditHandler exposes the audit trail endpoints.
type AuditHandler struct {
	trails     auditTrailService
	references referenceSummarizer
	refresher  refreshDispatcher
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(trails auditTrailService, references referenceSummarizer, refresher refreshDispatcher) *AuditHandler {
	return &AuditHandler{trails: trails, references: references, refresher: refresher}
}

// Trail godoc
// @Summary Rendered audit trail of one entity
// @Tags Audit
// @Produce json
// @Param entity path string true "Entity type, e.g. Interview"
// @Param entityId path int true "Entity identifier"
// @Param limit query int false "Maximum number of entries"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audit/{entity}/{entityId} [get]
func (h *AuditHandler) Trail(c *gin.Context) {
	query, err := trailQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	trail, err := h.trails.Trail(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trail, map[string]interface{}{"count": trail.Count})
}

// Export godoc
// @Summary Download the audit trail of one entity
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param entity path string true "Entity type"
// @Param entityId path int true "Entity identifier"
// @Param format query string false "csv or pdf" default(csv)
// @Param limit query int false "Maximum number of entries"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /audit/{entity}/{entityId}/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	query, err := trailQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := dto.ExportFormat(strings.TrimSpace(c.DefaultQuery("format", string(dto.ExportCSV))))
	file, err := h.trails.Export(c.Request.Context(), query, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Name, file.ContentType, file.Body)
}

// Normalize godoc
// @Summary Normalize and render raw audit entries without storing them
// @Tags Audit
// @Accept json
// @Produce json
// @Param payload body dto.NormalizeRequest true "Raw entries"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audit/normalize [post]
func (h *AuditHandler) Normalize(c *gin.Context) {
	var req dto.NormalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid normalize payload"))
		return
	}
	result, err := h.trails.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// References godoc
// @Summary Reference directory status
// @Tags Audit
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /audit/references [get]
func (h *AuditHandler) References(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.references.Summary())
}

// RefreshReferences godoc
// @Summary Queue a reference directory refresh
// @Tags Audit
// @Produce json
// @Param force query bool false "Drop cached lists and republish"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /audit/references/refresh [post]
func (h *AuditHandler) RefreshReferences(c *gin.Context) {
	if h.refresher == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "reference refresh is not running"))
		return
	}
	force, err := strconv.ParseBool(strings.TrimSpace(c.DefaultQuery("force", "false")))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "force must be true or false"))
		return
	}
	job := service.NewRefreshJob(force)
	if claims := claimsFromContext(c); claims != nil {
		job.Payload = service.RefreshRequest{Force: force, RequestedBy: claims.UserID}
	}
	if err := h.refresher.TryEnqueue(job); err != nil {
		msg := "reference refresh could not be queued"
		if errors.Is(err, jobs.ErrQueueFull) {
			msg = "a reference refresh is already pending"
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, msg))
		return
	}
	response.Accepted(c, dto.RefreshAccepted{JobID: job.ID, Queue: h.refresher.Name()})
}

func trailQuery(c *gin.Context) (dto.AuditTrailQuery, error) {
	entityID, err := strconv.ParseInt(c.Param("entityId"), 10, 64)
	if err != nil || entityID <= 0 {
		return dto.AuditTrailQuery{}, appErrors.Clone(appErrors.ErrValidation, "entityId must be a positive integer")
	}
	query := dto.AuditTrailQuery{Entity: c.Param("entity"), EntityID: entityID}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return dto.AuditTrailQuery{}, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer")
		}
		query.Limit = limit
	}
	return query, nil
}
