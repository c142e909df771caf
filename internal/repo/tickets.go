package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parkpass/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TicketsRepo struct{ db *pgxpool.Pool }

func NewTicketsRepo(db *pgxpool.Pool) *TicketsRepo { return &TicketsRepo{db: db} }

const ticketCols = `ticket_id, vehicle_no, phone, entry_time, exit_time, created_by_device, created_by_staff, status, signature, pay_method, pay_amount, pay_txn_id, synced_at, coalesce(notes,'')`

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	var t models.Ticket
	var txnId *string
	if err := row.Scan(&t.TicketId, &t.VehicleNo, &t.Phone, &t.EntryTime, &t.ExitTime, &t.CreatedByDevice, &t.CreatedByStaffId, &t.Status, &t.Signature, &t.Payment.Method, &t.Payment.Amount, &txnId, &t.SyncedAt, &t.Notes); err != nil {
		return nil, err
	}
	if txnId != nil {
		t.Payment.TxnId = *txnId
	}
	return &t, nil
}

func insertTicket(ctx context.Context, tx pgx.Tx, t models.Ticket) error {
	var txnId *string
	if t.Payment.TxnId != "" {
		txnId = &t.Payment.TxnId
	}
	_, err := tx.Exec(ctx, `
		insert into tickets (ticket_id, vehicle_no, phone, entry_time, exit_time, created_by_device, created_by_staff, status, signature, pay_method, pay_amount, pay_txn_id, synced_at, notes)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,nullif($14,''))
	`, t.TicketId, t.VehicleNo, t.Phone, t.EntryTime, t.ExitTime, t.CreatedByDevice, t.CreatedByStaffId, t.Status, t.Signature, t.Payment.Method, t.Payment.Amount, txnId, t.SyncedAt, t.Notes)
	return err
}

// CreateWithEvent persists the ticket and its create outbox event in one
// transaction: both rows commit or neither does.
func (r *TicketsRepo) CreateWithEvent(ctx context.Context, t models.Ticket, ev models.SyncEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertTicket(ctx, tx, t); err != nil {
		return err
	}
	if _, err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ExitWithEvent stamps the exit transition and appends the exit outbox event
// atomically.
func (r *TicketsRepo) ExitWithEvent(ctx context.Context, ticketId string, exitTime time.Time, ev models.SyncEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		update tickets set exit_time=$2, status=$3 where ticket_id=$1
	`, ticketId, exitTime, models.StatusExited)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if _, err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// OverrideWithEvent applies an administrative correction: terminal status,
// optional exit stamp, appended note line, plus a manualOverride outbox event.
func (r *TicketsRepo) OverrideWithEvent(ctx context.Context, ticketId string, status models.TicketStatus, exitTime *time.Time, noteLine string, ev models.SyncEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		update tickets set
		  status=$2,
		  exit_time=coalesce($3, exit_time),
		  notes=concat(coalesce(notes,''), $4::text)
		where ticket_id=$1
	`, ticketId, status, exitTime, noteLine)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if _, err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *TicketsRepo) Get(ctx context.Context, ticketId string) (*models.Ticket, error) {
	row := r.db.QueryRow(ctx, `select `+ticketCols+` from tickets where ticket_id=$1`, ticketId)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// MarkSynced promotes a pending ticket after its create event is acknowledged.
func (r *TicketsRepo) MarkSynced(ctx context.Context, ticketId string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		update tickets set status=$2, synced_at=$3 where ticket_id=$1
	`, ticketId, models.StatusSynced, at)
	return err
}

// ApplyServerState overwrites the local row with the authoritative server
// fields during conflict resolution. Status is forced to synced.
func (r *TicketsRepo) ApplyServerState(ctx context.Context, server models.Ticket) error {
	var txnId *string
	if server.Payment.TxnId != "" {
		txnId = &server.Payment.TxnId
	}
	_, err := r.db.Exec(ctx, `
		update tickets set
		  vehicle_no=$2, phone=$3, entry_time=$4, exit_time=$5,
		  status=$6, pay_method=$7, pay_amount=$8, pay_txn_id=$9,
		  synced_at=$10, notes=nullif($11,'')
		where ticket_id=$1
	`, server.TicketId, server.VehicleNo, server.Phone, server.EntryTime, server.ExitTime,
		models.StatusSynced, server.Payment.Method, server.Payment.Amount, txnId,
		time.Now().UTC(), server.Notes)
	return err
}

// ListActive returns currently parked vehicles: status pending or synced and
// no exit time.
func (r *TicketsRepo) ListActive(ctx context.Context) ([]models.Ticket, error) {
	rows, err := r.db.Query(ctx, `
		select `+ticketCols+` from tickets
		where status = any($1) and exit_time is null
		order by entry_time desc
	`, []string{string(models.StatusPending), string(models.StatusSynced)})
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func (r *TicketsRepo) Search(ctx context.Context, query string) ([]models.Ticket, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		select `+ticketCols+` from tickets
		where vehicle_no like $1 or ticket_id like $1 or phone like $2
		order by entry_time desc
		limit 100
	`, q+"%", strings.TrimSpace(query)+"%")
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func (r *TicketsRepo) ListByRange(ctx context.Context, from, to time.Time) ([]models.Ticket, error) {
	rows, err := r.db.Query(ctx, `
		select `+ticketCols+` from tickets
		where entry_time >= $1 and entry_time <= $2
		order by entry_time asc
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

type TicketFilter struct {
	Status models.TicketStatus
	Query  string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// Query is the filtered read used by listings and the CSV export.
func (r *TicketsRepo) Query(ctx context.Context, f TicketFilter) ([]models.Ticket, error) {
	where := []string{"true"}
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.Status != "" {
		where = append(where, "status="+arg(string(f.Status)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg(strings.ToUpper(q) + "%")
		where = append(where, "(vehicle_no like "+p+" or ticket_id like "+p+")")
	}
	if f.From != nil {
		where = append(where, "entry_time >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "entry_time <= "+arg(*f.To))
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	rows, err := r.db.Query(ctx, `
		select `+ticketCols+` from tickets
		where `+strings.Join(where, " and ")+`
		order by entry_time desc
		limit `+arg(limit), args...)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func collectTickets(rows pgx.Rows) ([]models.Ticket, error) {
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
