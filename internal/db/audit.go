package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const auditLogColumns = `id, actor_id, actor_kind, action, target_kind, target_id,
	method, path, status, metadata, created_at`

func scanAuditLog(row scanner) (AuditLog, error) {
	var a AuditLog
	err := row.Scan(&a.ID, &a.ActorID, &a.ActorKind, &a.Action, &a.TargetKind, &a.TargetID,
		&a.Method, &a.Path, &a.Status, &a.Metadata, &a.CreatedAt)
	return a, err
}

// InsertAuditLogParams records one administrative action.
type InsertAuditLogParams struct {
	ActorID    pgtype.Text
	ActorKind  string
	Action     string
	TargetKind pgtype.Text
	TargetID   pgtype.Text
	Method     string
	Path       string
	Status     int32
	Metadata   []byte
}

// InsertAuditLog appends one audit row.
func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (AuditLog, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO audit_logs (actor_id, actor_kind, action, target_kind, target_id, method, path, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+auditLogColumns,
		arg.ActorID, arg.ActorKind, arg.Action, arg.TargetKind, arg.TargetID,
		arg.Method, arg.Path, arg.Status, arg.Metadata,
	)
	return scanAuditLog(row)
}

// ListAuditLogsParams pages through the audit trail, newest first.
type ListAuditLogsParams struct {
	Limit  int32
	Offset int32
}

// ListAuditLogs returns audit rows, newest first.
func (q *Queries) ListAuditLogs(ctx context.Context, arg ListAuditLogsParams) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+auditLogColumns+` FROM audit_logs
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// CountAuditLogs returns the number of audit rows.
func (q *Queries) CountAuditLogs(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM audit_logs`).Scan(&count)
	return count, err
}
