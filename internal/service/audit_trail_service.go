package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ops-audit-api/internal/dto"
	"github.com/noah-isme/ops-audit-api/pkg/audittrail"
	appErrors "github.com/noah-isme/ops-audit-api/pkg/errors"
	"github.com/noah-isme/ops-audit-api/pkg/export"
)

type auditLogStore interface {
	FetchLogs(ctx context.Context, entity string, entityID int64, limit int) ([]audittrail.Entry, error)
}

type directorySource interface {
	Directory() *audittrail.Directory
	RefreshedAt() (time.Time, bool)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
	ContentType() string
	Extension() string
}

// AuditTrailConfig tunes trail fetching and rendering.
type AuditTrailConfig struct {
	DefaultLimit       int
	MaxLimit           int
	Workers            int
	PreviewMaxEntries  int
	ExportMaxEntries   int
	// ExtraIgnoredFields are skipped on top of the bookkeeping fields.
	ExtraIgnoredFields []string
	SystemActorLabel   string
}

// AuditTrailService turns stored audit rows into display-ready trails.
type AuditTrailService struct {
	logs      auditLogStore
	refs      directorySource
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AuditTrailConfig
	pipeline  *audittrail.Pipeline
	domains   audittrail.DomainMap
	labels    audittrail.FieldLabels
	exporters map[dto.ExportFormat]tableRenderer
	now       func() time.Time
}

// AuditTrailOption configures the service.
type AuditTrailOption func(*AuditTrailService)

// WithFieldLabels overlays labels on top of the defaults.
func WithFieldLabels(overlay audittrail.FieldLabels) AuditTrailOption {
	return func(s *AuditTrailService) {
		s.labels = s.labels.Merge(overlay)
	}
}

// WithDomainMap replaces the field → reference domain routing.
func WithDomainMap(domains audittrail.DomainMap) AuditTrailOption {
	return func(s *AuditTrailService) {
		if len(domains) > 0 {
			s.domains = domains
		}
	}
}

// WithExporter registers a renderer for an export format.
func WithExporter(format dto.ExportFormat, renderer tableRenderer) AuditTrailOption {
	return func(s *AuditTrailService) {
		s.exporters[format] = renderer
	}
}

// NewAuditTrailService constructs the service.
func NewAuditTrailService(logs auditLogStore, refs directorySource, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg AuditTrailConfig, opts ...AuditTrailOption) *AuditTrailService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 500
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = min(50, cfg.MaxLimit)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PreviewMaxEntries <= 0 {
		cfg.PreviewMaxEntries = 500
	}
	if cfg.ExportMaxEntries <= 0 {
		cfg.ExportMaxEntries = cfg.MaxLimit
	}

	s := &AuditTrailService{
		logs:      logs,
		refs:      refs,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		pipeline:  audittrail.NewPipeline(audittrail.NewDiffer(cfg.ExtraIgnoredFields...)),
		domains:   audittrail.DefaultDomainMap(),
		labels:    audittrail.DefaultFieldLabels(),
		exporters: map[dto.ExportFormat]tableRenderer{
			dto.ExportCSV: export.NewCSVExporter(),
			dto.ExportPDF: export.NewPDFExporter(),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trail fetches, normalizes and renders the trail of one entity.
func (s *AuditTrailService) Trail(ctx context.Context, query dto.AuditTrailQuery) (*dto.AuditTrailResponse, error) {
	query.Entity = strings.TrimSpace(query.Entity)
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid audit trail query")
	}

	rendered, err := s.trail(ctx, query, s.clampLimit(query.Limit))
	if err != nil {
		return nil, err
	}

	resp := &dto.AuditTrailResponse{
		Entity:   query.Entity,
		EntityID: query.EntityID,
		Count:    len(rendered),
		Entries:  rendered,
	}
	if at, ok := s.refs.RefreshedAt(); ok {
		resp.RefreshedAt = &at
	}
	return resp, nil
}

// Preview normalizes and renders caller-supplied entries without touching storage.
func (s *AuditTrailService) Preview(ctx context.Context, req dto.NormalizeRequest) (*dto.NormalizeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid normalize payload")
	}
	if len(req.Entries) > s.cfg.PreviewMaxEntries {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d entries can be normalized at once", s.cfg.PreviewMaxEntries))
	}

	normalized, rendered, err := s.normalize(ctx, req.Entries)
	if err != nil {
		return nil, err
	}
	for i := range normalized {
		if len(normalized[i].ChangeList) > 0 {
			normalized[i].ChangeList = audittrail.VisibleChanges(normalized[i].ChangeList)
		}
	}
	return &dto.NormalizeResponse{Entries: normalized, Rendered: rendered}, nil
}

// Export renders the trail of one entity into a downloadable document.
func (s *AuditTrailService) Export(ctx context.Context, query dto.AuditTrailQuery, format dto.ExportFormat) (*dto.ExportFile, error) {
	renderer, ok := s.exporters[dto.ExportFormat(strings.ToLower(string(format)))]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}
	query.Entity = strings.TrimSpace(query.Entity)
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid audit trail query")
	}

	limit := query.Limit
	if limit <= 0 || limit > s.cfg.ExportMaxEntries {
		limit = s.cfg.ExportMaxEntries
	}
	rendered, err := s.trail(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	body, err := renderer.Render(trailTable(query, rendered))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	name := fmt.Sprintf("audit-%s-%d-%s-%s.%s",
		strings.ToLower(query.Entity), query.EntityID,
		s.now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8], renderer.Extension())
	return &dto.ExportFile{Name: name, ContentType: renderer.ContentType(), Body: body}, nil
}

func (s *AuditTrailService) trail(ctx context.Context, query dto.AuditTrailQuery, limit int) ([]audittrail.RenderedEntry, error) {
	start := time.Now()
	entries, err := s.logs.FetchLogs(ctx, query.Entity, query.EntityID, limit)
	s.metrics.ObserveDBQuery("audit_logs_fetch", time.Since(start))
	if err != nil {
		s.logger.Error("failed to fetch audit logs",
			zap.String("entity", query.Entity),
			zap.Int64("entity_id", query.EntityID),
			zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}

	_, rendered, err := s.normalize(ctx, entries)
	return rendered, err
}

func (s *AuditTrailService) normalize(ctx context.Context, entries []audittrail.Entry) ([]audittrail.Entry, []audittrail.RenderedEntry, error) {
	start := time.Now()
	normalized, err := s.pipeline.NormalizeConcurrent(ctx, entries, s.cfg.Workers)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "normalization aborted")
	}

	// One directory snapshot per batch keeps labels consistent across entries.
	formatter := audittrail.NewFormatter(s.domains, s.refs.Directory())
	renderer := audittrail.NewRenderer(formatter, s.labels, s.cfg.SystemActorLabel)
	rendered := renderer.RenderAll(normalized)

	s.metrics.ObserveNormalized(normalized, time.Since(start))
	return normalized, rendered, nil
}

func (s *AuditTrailService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

// trailTable flattens a rendered trail to one row per field change. Entries
// without visible changes get a single row carrying their note.
func trailTable(query dto.AuditTrailQuery, entries []audittrail.RenderedEntry) export.Table {
	table := export.Table{
		Title:   fmt.Sprintf("Audit trail: %s #%d", query.Entity, query.EntityID),
		Headers: []string{"Time", "Action", "Actor", "Field", "Before", "After", "Note"},
	}
	for _, entry := range entries {
		when := entry.CreatedAt.UTC().Format(time.RFC3339)
		if len(entry.Changes) == 0 {
			table.AddRow(when, entry.Action, entry.Actor, "", "", "", entry.Note)
			continue
		}
		for _, change := range entry.Changes {
			table.AddRow(when, entry.Action, entry.Actor, change.Label, change.Before, change.After)
		}
	}
	return table
}
