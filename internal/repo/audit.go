package repo

import (
	"context"

	"parkpass/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepo struct{ db *pgxpool.Pool }

func NewAuditRepo(db *pgxpool.Pool) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Append(ctx context.Context, entry models.AuditLog) error {
	_, err := r.db.Exec(ctx, `
		insert into audit_logs (ticket_id, action, actor, ts, device_info, meta)
		values ($1,$2,$3,$4,$5,$6)
	`, entry.TicketId, entry.Action, entry.Actor, entry.Timestamp, entry.DeviceInfo, entry.Meta)
	return err
}

func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		select id, ticket_id, action, actor, ts, device_info, meta
		from audit_logs order by ts desc limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.Id, &e.TicketId, &e.Action, &e.Actor, &e.Timestamp, &e.DeviceInfo, &e.Meta); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *AuditRepo) ListByTicket(ctx context.Context, ticketId string) ([]models.AuditLog, error) {
	rows, err := r.db.Query(ctx, `
		select id, ticket_id, action, actor, ts, device_info, meta
		from audit_logs where ticket_id=$1 order by ts asc
	`, ticketId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.Id, &e.TicketId, &e.Action, &e.Actor, &e.Timestamp, &e.DeviceInfo, &e.Meta); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
