package models

import (
	"encoding/json"
	"time"
)

type TicketStatus string

const (
	StatusPending   TicketStatus = "pending"
	StatusSynced    TicketStatus = "synced"
	StatusExited    TicketStatus = "exited"
	StatusCancelled TicketStatus = "cancelled"
)

// Terminal reports whether no further entry/exit transition is permitted.
func (s TicketStatus) Terminal() bool {
	return s == StatusExited || s == StatusCancelled
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentUPI  PaymentMethod = "upi"
)

type Payment struct {
	Method PaymentMethod `json:"method"`
	Amount float64       `json:"amount"`
	TxnId  string        `json:"txnId,omitempty"`
}

type Ticket struct {
	TicketId         string       `json:"ticketId"`
	VehicleNo        string       `json:"vehicleNo"`
	Phone            string       `json:"phone"`
	EntryTime        time.Time    `json:"entryTime"`
	ExitTime         *time.Time   `json:"exitTime,omitempty"`
	CreatedByDevice  string       `json:"createdByDevice"`
	CreatedByStaffId string       `json:"createdByStaffId"`
	Status           TicketStatus `json:"status"`
	Signature        string       `json:"signature"`
	Payment          Payment      `json:"payment"`
	SyncedAt         *time.Time   `json:"syncedAt,omitempty"`
	Notes            string       `json:"notes,omitempty"`
}

type EventType string

const (
	EventCreate         EventType = "create"
	EventExit           EventType = "exit"
	EventSync           EventType = "sync"
	EventManualOverride EventType = "manualOverride"
)

// SyncEvent is an outbox row: a durable intent to propagate a local mutation
// to the remote authority. Rows are never deleted, only flipped to synced.
type SyncEvent struct {
	Id        int64           `json:"id"`
	TicketId  string          `json:"ticketId"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	DeviceId  string          `json:"deviceId"`
	StaffId   string          `json:"staffId"`
	Synced    bool            `json:"synced"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type DeviceRole string

const (
	RoleEntry DeviceRole = "entry"
	RoleExit  DeviceRole = "exit"
	RoleAdmin DeviceRole = "admin"
)

// DeviceConfig is the identity of this terminal. Exactly one row exists per
// running instance. Key is the hex-encoded 32-byte secret used both to sign
// tickets this device issues and to verify tickets presented to it.
type DeviceConfig struct {
	DeviceId string     `json:"deviceId"`
	Name     string     `json:"name"`
	Role     DeviceRole `json:"role"`
	Key      string     `json:"-"`
	LastSync *time.Time `json:"lastSync,omitempty"`
	IsOnline bool       `json:"isOnline"`
}

// SystemTicketId marks audit entries that concern the device rather than a ticket.
const SystemTicketId = "SYSTEM"

type AuditLog struct {
	Id         int64           `json:"id"`
	TicketId   string          `json:"ticketId"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor"`
	Timestamp  time.Time       `json:"timestamp"`
	DeviceInfo json.RawMessage `json:"deviceInfo,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}

type Staff struct {
	StaffId   string     `json:"staffId"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Role      DeviceRole `json:"role"`
	PinHash   string     `json:"-"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Session is the authenticated operator context required by state-changing
// ticket operations. The auth layer derives it from a bearer token.
type Session struct {
	StaffId   string     `json:"staffId"`
	StaffName string     `json:"staffName"`
	Role      DeviceRole `json:"role"`
	DeviceId  string     `json:"deviceId"`
	ExpiresAt time.Time  `json:"expiresAt"`
}
