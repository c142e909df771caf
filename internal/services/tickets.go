package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"parkpass/internal/models"
	"parkpass/internal/security"
)

// TicketService drives the ticket lifecycle state machine:
// pending -> synced -> exited on the normal path, pending|synced -> cancelled
// by administrative override. Exited and cancelled are terminal.
type TicketService struct {
	Tickets       TicketStore
	Devices       DeviceStore
	Audit         *AuditWriter
	Net           Connectivity
	ValidityHours int
}

func NewTicketService(tickets TicketStore, devices DeviceStore, audit *AuditWriter, net Connectivity, validityHours int) *TicketService {
	return &TicketService{Tickets: tickets, Devices: devices, Audit: audit, Net: net, ValidityHours: validityHours}
}

type CreateTicketRequest struct {
	VehicleNo string         `json:"vehicleNo"`
	Phone     string         `json:"phone"`
	Payment   models.Payment `json:"payment"`
	Notes     string         `json:"notes,omitempty"`
}

type CreateTicketResult struct {
	Ticket models.Ticket `json:"ticket"`
	Code   string        `json:"code"`
}

// Create issues a new ticket. The ticket row and its create outbox event are
// written atomically; the audit entry is best-effort on top.
func (s *TicketService) Create(ctx context.Context, session *models.Session, req CreateTicketRequest) (*CreateTicketResult, error) {
	dev, err := s.requireDevice(ctx, session)
	if err != nil {
		return nil, err
	}

	vehicleNo := strings.ToUpper(strings.TrimSpace(req.VehicleNo))
	phone := strings.TrimSpace(req.Phone)
	if vehicleNo == "" {
		return nil, &ValidationError{Field: "vehicleNo", Reason: "required"}
	}
	if phone == "" {
		return nil, &ValidationError{Field: "phone", Reason: "required"}
	}
	switch req.Payment.Method {
	case models.PaymentCash:
	case models.PaymentUPI:
		if strings.TrimSpace(req.Payment.TxnId) == "" {
			return nil, &ValidationError{Field: "payment.txnId", Reason: "required for upi payments"}
		}
	default:
		return nil, &ValidationError{Field: "payment.method", Reason: "must be cash or upi"}
	}

	online := s.Net.Online()
	now := time.Now().UTC()

	ticketId := security.GenerateTicketId()
	payload := security.NewTicketPayload(ticketId, vehicleNo, dev.DeviceId, dev.Key, s.ValidityHours)

	ticket := models.Ticket{
		TicketId:         ticketId,
		VehicleNo:        vehicleNo,
		Phone:            phone,
		EntryTime:        now,
		CreatedByDevice:  dev.DeviceId,
		CreatedByStaffId: session.StaffId,
		Status:           models.StatusPending,
		Signature:        payload.Sig,
		Payment:          req.Payment,
		Notes:            req.Notes,
	}
	if online {
		ticket.Status = models.StatusSynced
		ticket.SyncedAt = &now
	}

	// The outbox row always starts unacknowledged; the next sync cycle pushes
	// it even when the ticket itself was optimistically marked synced.
	data, _ := json.Marshal(ticket)
	ev := models.SyncEvent{
		TicketId:  ticketId,
		Type:      models.EventCreate,
		Timestamp: now,
		DeviceId:  dev.DeviceId,
		StaffId:   session.StaffId,
		Data:      data,
	}

	if err := s.Tickets.CreateWithEvent(ctx, ticket, ev); err != nil {
		return nil, fmt.Errorf("persist ticket: %w", err)
	}

	s.Audit.Append(ctx, auditEntry(ticketId, "create", session.StaffId,
		map[string]any{"deviceId": dev.DeviceId, "deviceName": dev.Name},
		map[string]any{"vehicleNo": vehicleNo, "payment": req.Payment},
	))

	return &CreateTicketResult{Ticket: ticket, Code: security.EncodePayload(payload)}, nil
}

type ValidationReason string

const (
	ReasonInvalidFormat    ValidationReason = "invalid_format"
	ReasonInvalidSignature ValidationReason = "invalid_signature"
	ReasonExpired          ValidationReason = "expired"
	ReasonNotFound         ValidationReason = "not_found"
	ReasonAlreadyUsed      ValidationReason = "already_used"
	ReasonCancelled        ValidationReason = "cancelled"
)

type ValidationResult struct {
	Valid   bool                     `json:"valid"`
	Reason  ValidationReason         `json:"reason,omitempty"`
	Message string                   `json:"message,omitempty"`
	Ticket  *models.Ticket           `json:"ticket,omitempty"`
	Payload *security.TicketPayload  `json:"payload,omitempty"`
}

func invalid(reason ValidationReason, message string, ticket *models.Ticket) ValidationResult {
	return ValidationResult{Reason: reason, Message: message, Ticket: ticket}
}

// Validate checks a scanned or typed ticket code. Check order is cheapest
// first: format, signature, expiry, then the single storage lookup. Invalid
// tickets are results, not errors; only infrastructure failures return an
// error.
func (s *TicketService) Validate(ctx context.Context, code string) (ValidationResult, error) {
	payload, err := security.DecodePayload(code)
	if err != nil {
		return invalid(ReasonInvalidFormat, "Invalid ticket code format", nil), nil
	}

	dev, err := s.Devices.Get(ctx)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load device config: %w", err)
	}
	if dev == nil {
		return ValidationResult{}, ErrDeviceNotConfigured
	}

	if !security.VerifySignature(payload, dev.Key) {
		return invalid(ReasonInvalidSignature, "Invalid ticket signature", nil), nil
	}
	if security.Expired(payload, time.Now().UTC()) {
		return invalid(ReasonExpired, "Ticket expired", nil), nil
	}

	ticket, err := s.Tickets.Get(ctx, payload.TicketId)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("lookup ticket: %w", err)
	}
	if ticket == nil {
		return invalid(ReasonNotFound, "Ticket not found", nil), nil
	}
	switch ticket.Status {
	case models.StatusExited:
		return invalid(ReasonAlreadyUsed, "Ticket already used", ticket), nil
	case models.StatusCancelled:
		return invalid(ReasonCancelled, "Ticket cancelled", ticket), nil
	}

	return ValidationResult{Valid: true, Ticket: ticket, Payload: &payload}, nil
}

// ProcessExit stamps the exit transition and enqueues the exit outbox event
// atomically. Terminal tickets are rejected without any mutation.
func (s *TicketService) ProcessExit(ctx context.Context, session *models.Session, ticketId string) (*models.Ticket, error) {
	dev, err := s.requireDevice(ctx, session)
	if err != nil {
		return nil, err
	}

	ticket, err := s.Tickets.Get(ctx, ticketId)
	if err != nil {
		return nil, fmt.Errorf("lookup ticket: %w", err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}
	if ticket.Status == models.StatusExited {
		return nil, ErrAlreadyExited
	}
	if ticket.Status == models.StatusCancelled {
		return nil, ErrTicketCancelled
	}

	now := time.Now().UTC()
	data, _ := json.Marshal(map[string]any{
		"exitTime":    now.Format(time.RFC3339),
		"processedBy": session.StaffId,
	})
	ev := models.SyncEvent{
		TicketId:  ticketId,
		Type:      models.EventExit,
		Timestamp: now,
		DeviceId:  dev.DeviceId,
		StaffId:   session.StaffId,
		Data:      data,
	}

	if err := s.Tickets.ExitWithEvent(ctx, ticketId, now, ev); err != nil {
		return nil, fmt.Errorf("persist exit: %w", err)
	}

	s.Audit.Append(ctx, auditEntry(ticketId, "exit", session.StaffId,
		map[string]any{"deviceId": dev.DeviceId, "deviceName": dev.Name},
		map[string]any{"vehicleNo": ticket.VehicleNo, "duration": ParkingDuration(ticket.EntryTime, &now)},
	))

	return s.Tickets.Get(ctx, ticketId)
}

type OverrideAction string

const (
	OverrideCancel    OverrideAction = "cancel"
	OverrideForceExit OverrideAction = "force_exit"
)

// Override is the administrative correction path. It bypasses the normal
// transition guards, records the human-supplied reason in the ticket notes
// and the audit log, and enqueues a manualOverride outbox event so the
// remote authority sees the correction too.
func (s *TicketService) Override(ctx context.Context, session *models.Session, ticketId string, action OverrideAction, reason string) (*models.Ticket, error) {
	dev, err := s.requireDevice(ctx, session)
	if err != nil {
		return nil, err
	}
	if session.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Reason: "required"}
	}

	ticket, err := s.Tickets.Get(ctx, ticketId)
	if err != nil {
		return nil, fmt.Errorf("lookup ticket: %w", err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}

	now := time.Now().UTC()
	var status models.TicketStatus
	var exitTime *time.Time
	var noteLine string
	switch action {
	case OverrideCancel:
		status = models.StatusCancelled
		noteLine = "\nCANCELLED: " + reason
	case OverrideForceExit:
		status = models.StatusExited
		exitTime = &now
		noteLine = "\nFORCE EXIT: " + reason
	default:
		return nil, &ValidationError{Field: "action", Reason: "must be cancel or force_exit"}
	}

	data, _ := json.Marshal(map[string]any{
		"action":         action,
		"reason":         reason,
		"originalStatus": ticket.Status,
	})
	ev := models.SyncEvent{
		TicketId:  ticketId,
		Type:      models.EventManualOverride,
		Timestamp: now,
		DeviceId:  dev.DeviceId,
		StaffId:   session.StaffId,
		Data:      data,
	}

	if err := s.Tickets.OverrideWithEvent(ctx, ticketId, status, exitTime, noteLine, ev); err != nil {
		return nil, fmt.Errorf("persist override: %w", err)
	}

	s.Audit.Append(ctx, auditEntry(ticketId, "manual_"+string(action), session.StaffId,
		map[string]any{"deviceId": dev.DeviceId, "deviceName": dev.Name},
		map[string]any{"reason": reason, "originalStatus": ticket.Status},
	))

	return s.Tickets.Get(ctx, ticketId)
}

func (s *TicketService) ActiveTickets(ctx context.Context) ([]models.Ticket, error) {
	return s.Tickets.ListActive(ctx)
}

func (s *TicketService) TicketByID(ctx context.Context, ticketId string) (*models.Ticket, error) {
	return s.Tickets.Get(ctx, ticketId)
}

func (s *TicketService) SearchTickets(ctx context.Context, query string) ([]models.Ticket, error) {
	return s.Tickets.Search(ctx, query)
}

func (s *TicketService) requireDevice(ctx context.Context, session *models.Session) (*models.DeviceConfig, error) {
	if session == nil {
		return nil, ErrAuthRequired
	}
	dev, err := s.Devices.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device config: %w", err)
	}
	if dev == nil {
		return nil, ErrAuthRequired
	}
	return dev, nil
}

// ParkingDuration renders the stay length as "3h 25m" or "45m". A nil exit
// means the vehicle is still parked and the duration runs to now.
func ParkingDuration(entry time.Time, exit *time.Time) string {
	end := time.Now()
	if exit != nil {
		end = *exit
	}
	d := end.Sub(entry)
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
