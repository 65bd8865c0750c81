package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/store"
)

// AuditRepository appends to and reads the audit_log table. The table has no
// update or delete path; a trigger in the schema rejects both.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(q Querier) *AuditRepository {
	return &AuditRepository{q: q}
}

// Append inserts an audit record.
func (r *AuditRepository) Append(ctx context.Context, rec *domain.AuditRecord) error {
	query := `
		INSERT INTO audit_log (id, entity, entity_id, workspace_id, op, actor_id, before, after, changed_fields, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.q.ExecContext(ctx, query,
		rec.ID,
		rec.Entity,
		rec.EntityID,
		rec.WorkspaceID,
		rec.Op,
		rec.ActorID,
		nullJSON(rec.Before),
		nullJSON(rec.After),
		pq.Array(rec.ChangedFields),
		rec.At,
	)
	return translateError(err)
}

// List returns audit records matching filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter store.AuditFilter) ([]*domain.AuditRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.WorkspaceID != nil {
		args = append(args, *filter.WorkspaceID)
		where = append(where, fmt.Sprintf("workspace_id = $%d", len(args)))
	}
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		where = append(where, fmt.Sprintf("entity = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if !filter.Before.IsZero() {
		args = append(args, filter.Before)
		where = append(where, fmt.Sprintf("at < $%d", len(args)))
	}

	query := `
		SELECT id, entity, entity_id, workspace_id, op, actor_id, before, after, changed_fields, at
		FROM audit_log`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY at DESC, seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\n\t\tLIMIT $%d", len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var (
			rec           domain.AuditRecord
			before, after []byte
		)
		err := rows.Scan(
			&rec.ID,
			&rec.Entity,
			&rec.EntityID,
			&rec.WorkspaceID,
			&rec.Op,
			&rec.ActorID,
			&before,
			&after,
			pq.Array(&rec.ChangedFields),
			&rec.At,
		)
		if err != nil {
			return nil, err
		}
		rec.Before = before
		rec.After = after
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// nullJSON passes an empty image as SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
