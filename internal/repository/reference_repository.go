package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ops-audit-api/internal/models"
	"github.com/noah-isme/ops-audit-api/pkg/audittrail"
)

var referenceQueries = map[audittrail.Domain]string{
	audittrail.DomainUser:   `SELECT id, name, full_name FROM users ORDER BY id`,
	audittrail.DomainClient: `SELECT id, name, NULL::text AS full_name FROM clients ORDER BY id`,
	audittrail.DomainHub:    `SELECT id, name, NULL::text AS full_name FROM hubs ORDER BY id`,
	audittrail.DomainZone:   `SELECT id, name, NULL::text AS full_name FROM zones ORDER BY id`,
}

// ReferenceRepository loads the id/label lists used to resolve reference fields.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs the repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// List returns every row of the table backing domain.
func (r *ReferenceRepository) List(ctx context.Context, domain audittrail.Domain) ([]audittrail.ReferenceItem, error) {
	query, ok := referenceQueries[domain]
	if !ok {
		return nil, fmt.Errorf("list references: unknown domain %q", domain)
	}

	var rows []models.ReferenceRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list %s references: %w", domain, err)
	}

	items := make([]audittrail.ReferenceItem, 0, len(rows))
	for _, row := range rows {
		var item audittrail.ReferenceItem
		if row.ID.Valid {
			id := row.ID.Int64
			item.ID = &id
		}
		if row.Name.Valid {
			name := row.Name.String
			item.Name = &name
		}
		if row.FullName.Valid {
			fullName := row.FullName.String
			item.FullName = &fullName
		}
		items = append(items, item)
	}
	return items, nil
}
