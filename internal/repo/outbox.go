package repo

import (
	"context"

	"parkpass/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxRepo struct{ db *pgxpool.Pool }

func NewOutboxRepo(db *pgxpool.Pool) *OutboxRepo { return &OutboxRepo{db: db} }

const eventCols = `id, ticket_id, event_type, ts, device_id, staff_id, synced, data`

// insertEvent appends an outbox row inside the caller's transaction so the
// event commits atomically with the ticket mutation it records.
func insertEvent(ctx context.Context, tx pgx.Tx, ev models.SyncEvent) (int64, error) {
	row := tx.QueryRow(ctx, `
		insert into sync_events (ticket_id, event_type, ts, device_id, staff_id, synced, data)
		values ($1,$2,$3,$4,$5,$6,$7)
		returning id
	`, ev.TicketId, ev.Type, ev.Timestamp, ev.DeviceId, ev.StaffId, ev.Synced, ev.Data)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func scanEvent(row pgx.Row) (*models.SyncEvent, error) {
	var ev models.SyncEvent
	if err := row.Scan(&ev.Id, &ev.TicketId, &ev.Type, &ev.Timestamp, &ev.DeviceId, &ev.StaffId, &ev.Synced, &ev.Data); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *OutboxRepo) ListPending(ctx context.Context) ([]models.SyncEvent, error) {
	rows, err := r.db.Query(ctx, `select `+eventCols+` from sync_events where synced=false`)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// MarkSynced flips the rows to synced. Marking an already-synced id again is
// a no-op, not an error.
func (r *OutboxRepo) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `update sync_events set synced=true where id = any($1) and synced=false`, ids)
	return err
}

func (r *OutboxRepo) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `select count(*) from sync_events where synced=false`).Scan(&n)
	return n, err
}

func (r *OutboxRepo) ListByTicket(ctx context.Context, ticketId string) ([]models.SyncEvent, error) {
	rows, err := r.db.Query(ctx, `select `+eventCols+` from sync_events where ticket_id=$1 order by ts asc`, ticketId)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]models.SyncEvent, error) {
	defer rows.Close()

	var out []models.SyncEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}
