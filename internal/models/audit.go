package models

import (
	"database/sql"
	"time"
)

// AuditLogRecord is one row of audit_logs joined with the acting user.
type AuditLogRecord struct {
	ID            int64          `db:"id"`
	Entity        string         `db:"entity"`
	EntityID      int64          `db:"entity_id"`
	Action        string         `db:"action"`
	ActorID       sql.NullInt64  `db:"actor_id"`
	ActorName     sql.NullString `db:"actor_name"`
	ActorFullName sql.NullString `db:"actor_full_name"`
	Changes       sql.NullString `db:"changes"`
	ChangeList    sql.NullString `db:"change_list"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     sql.NullTime   `db:"updated_at"`
}

// ReferenceRow is a raw id/label row read from one of the reference tables.
type ReferenceRow struct {
	ID       sql.NullInt64  `db:"id"`
	Name     sql.NullString `db:"name"`
	FullName sql.NullString `db:"full_name"`
}
