package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"parkpass/internal/models"
)

// AuditWriter appends audit entries best-effort: a failed append never rolls
// back or aborts the primary mutation it accompanies. Failures are logged
// and surfaced on a monitored channel instead of being swallowed.
type AuditWriter struct {
	store AuditStore
	errs  chan error
}

func NewAuditWriter(store AuditStore) *AuditWriter {
	return &AuditWriter{store: store, errs: make(chan error, 16)}
}

func (w *AuditWriter) Append(ctx context.Context, entry models.AuditLog) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := w.store.Append(ctx, entry); err != nil {
		log.Printf("audit: append %s/%s failed: %v", entry.TicketId, entry.Action, err)
		select {
		case w.errs <- err:
		default:
		}
	}
}

// Errors exposes audit append failures for monitoring.
func (w *AuditWriter) Errors() <-chan error { return w.errs }

func auditEntry(ticketId, action, actor string, deviceInfo, meta any) models.AuditLog {
	di, _ := json.Marshal(deviceInfo)
	m, _ := json.Marshal(meta)
	return models.AuditLog{
		TicketId:   ticketId,
		Action:     action,
		Actor:      actor,
		Timestamp:  time.Now().UTC(),
		DeviceInfo: di,
		Meta:       m,
	}
}
