package dto

import (
	"time"

	"github.com/noah-isme/ops-audit-api/pkg/audittrail"
)

// ExportFormat names a downloadable trail rendering.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// AuditTrailQuery selects the trail of one entity.
type AuditTrailQuery struct {
	Entity   string `json:"entity" validate:"required,max=64"`
	EntityID int64  `json:"entityId" validate:"required,gt=0"`
	Limit    int    `json:"limit" validate:"gte=0"`
}

// AuditTrailResponse is the rendered trail, newest entry first.
type AuditTrailResponse struct {
	Entity      string                     `json:"entity"`
	EntityID    int64                      `json:"entityId"`
	Count       int                        `json:"count"`
	Entries     []audittrail.RenderedEntry `json:"entries"`
	RefreshedAt *time.Time                 `json:"referencesRefreshedAt,omitempty"`
}

// NormalizeRequest carries raw entries for a dry-run normalization.
type NormalizeRequest struct {
	Entries []audittrail.Entry `json:"entries" validate:"required,min=1"`
}

// NormalizeResponse returns the normalized entries alongside their rendering.
type NormalizeResponse struct {
	Entries  []audittrail.Entry         `json:"entries"`
	Rendered []audittrail.RenderedEntry `json:"rendered"`
}

// ReferenceSummary describes the currently published reference directory.
type ReferenceSummary struct {
	Sizes       map[audittrail.Domain]int `json:"sizes"`
	Fingerprint string                    `json:"fingerprint,omitempty"`
	RefreshedAt *time.Time                `json:"refreshedAt,omitempty"`
	LastError   string                    `json:"lastError,omitempty"`
}

// RefreshAccepted acknowledges an enqueued reference refresh.
type RefreshAccepted struct {
	JobID string `json:"jobId"`
	Queue string `json:"queue"`
}

// ExportFile is a rendered trail ready for download.
type ExportFile struct {
	Name        string
	ContentType string
	Body        []byte
}
