package services

import (
	"context"
	"time"

	"parkpass/internal/models"
)

// Store interfaces owned by the services; the pgx repos satisfy them in
// production and the tests supply in-memory fakes.

type TicketStore interface {
	CreateWithEvent(ctx context.Context, t models.Ticket, ev models.SyncEvent) error
	ExitWithEvent(ctx context.Context, ticketId string, exitTime time.Time, ev models.SyncEvent) error
	OverrideWithEvent(ctx context.Context, ticketId string, status models.TicketStatus, exitTime *time.Time, noteLine string, ev models.SyncEvent) error
	Get(ctx context.Context, ticketId string) (*models.Ticket, error)
	MarkSynced(ctx context.Context, ticketId string, at time.Time) error
	ApplyServerState(ctx context.Context, server models.Ticket) error
	ListActive(ctx context.Context) ([]models.Ticket, error)
	Search(ctx context.Context, query string) ([]models.Ticket, error)
	ListByRange(ctx context.Context, from, to time.Time) ([]models.Ticket, error)
}

type OutboxStore interface {
	ListPending(ctx context.Context) ([]models.SyncEvent, error)
	MarkSynced(ctx context.Context, ids []int64) error
	CountPending(ctx context.Context) (int, error)
}

type DeviceStore interface {
	Get(ctx context.Context) (*models.DeviceConfig, error)
	UpdateLastSync(ctx context.Context, deviceId string, at time.Time) error
}

type AuditStore interface {
	Append(ctx context.Context, entry models.AuditLog) error
}

// Connectivity is the external online/offline signal.
type Connectivity interface {
	Online() bool
}
