package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/ops-audit-api/internal/models"
	"github.com/noah-isme/ops-audit-api/pkg/audittrail"
)

const (
	defaultTrailLimit = 50
	maxTrailLimit     = 1000
)

// AuditLogRepository reads audit trail rows for a single entity.
type AuditLogRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAuditLogRepository constructs the repository.
func NewAuditLogRepository(db *sqlx.DB, logger *zap.Logger) *AuditLogRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogRepository{db: db, logger: logger}
}

// FetchLogs returns the newest entries recorded for entity/entityID.
// The changes column is passed through untouched; parsing belongs to the pipeline.
func (r *AuditLogRepository) FetchLogs(ctx context.Context, entity string, entityID int64, limit int) ([]audittrail.Entry, error) {
	if limit <= 0 {
		limit = defaultTrailLimit
	}
	if limit > maxTrailLimit {
		limit = maxTrailLimit
	}

	const query = `SELECT al.id, al.entity, al.entity_id, al.action, al.actor_id, al.actor_name,
       u.full_name AS actor_full_name, al.changes::text AS changes, al.change_list::text AS change_list,
       al.created_at, al.updated_at
	FROM audit_logs al
	LEFT JOIN users u ON u.id = al.actor_id
	WHERE al.entity = $1 AND al.entity_id = $2
	ORDER BY al.created_at DESC, al.id DESC
	LIMIT $3`

	var records []models.AuditLogRecord
	if err := r.db.SelectContext(ctx, &records, query, strings.TrimSpace(entity), entityID, limit); err != nil {
		return nil, fmt.Errorf("fetch audit logs for %s/%d: %w", entity, entityID, err)
	}

	entries := make([]audittrail.Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, r.toEntry(record))
	}
	return entries, nil
}

func (r *AuditLogRepository) toEntry(record models.AuditLogRecord) audittrail.Entry {
	entry := audittrail.Entry{
		ID:        record.ID,
		Entity:    record.Entity,
		EntityID:  record.EntityID,
		Action:    record.Action,
		CreatedAt: record.CreatedAt,
	}
	if record.ActorID.Valid {
		actorID := record.ActorID.Int64
		entry.ActorID = &actorID
		if record.ActorFullName.Valid {
			entry.Actor = &audittrail.Actor{ID: actorID, FullName: record.ActorFullName.String}
		}
	}
	if record.ActorName.Valid {
		entry.ActorName = record.ActorName.String
	}
	if record.Changes.Valid {
		entry.Changes = record.Changes.String
	}
	if record.UpdatedAt.Valid {
		updated := record.UpdatedAt.Time
		entry.UpdatedAt = &updated
	}
	if record.ChangeList.Valid && strings.TrimSpace(record.ChangeList.String) != "" {
		var list []audittrail.Change
		if err := json.Unmarshal([]byte(record.ChangeList.String), &list); err != nil {
			r.logger.Warn("ignoring malformed change_list",
				zap.Int64("audit_log_id", record.ID),
				zap.Error(err))
		} else {
			entry.ChangeList = list
		}
	}
	return entry
}
