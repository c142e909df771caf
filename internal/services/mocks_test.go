package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"parkpass/internal/models"
)

// fakeStore is an in-memory stand-in for the pgx repos. It implements
// TicketStore, OutboxStore, DeviceStore and AuditStore over one mutex, the
// way the real store is one database.
type fakeStore struct {
	mu      sync.Mutex
	tickets map[string]models.Ticket
	events  []models.SyncEvent
	nextId  int64
	device  *models.DeviceConfig
	audits  []models.AuditLog

	failWrites error
}

func newFakeStore(device *models.DeviceConfig) *fakeStore {
	return &fakeStore{tickets: make(map[string]models.Ticket), device: device}
}

func (f *fakeStore) CreateWithEvent(ctx context.Context, t models.Ticket, ev models.SyncEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	f.tickets[t.TicketId] = t
	f.appendEventLocked(ev)
	return nil
}

func (f *fakeStore) ExitWithEvent(ctx context.Context, ticketId string, exitTime time.Time, ev models.SyncEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	t, ok := f.tickets[ticketId]
	if !ok {
		return errors.New("no rows")
	}
	t.ExitTime = &exitTime
	t.Status = models.StatusExited
	f.tickets[ticketId] = t
	f.appendEventLocked(ev)
	return nil
}

func (f *fakeStore) OverrideWithEvent(ctx context.Context, ticketId string, status models.TicketStatus, exitTime *time.Time, noteLine string, ev models.SyncEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	t, ok := f.tickets[ticketId]
	if !ok {
		return errors.New("no rows")
	}
	t.Status = status
	if exitTime != nil {
		t.ExitTime = exitTime
	}
	t.Notes += noteLine
	f.tickets[ticketId] = t
	f.appendEventLocked(ev)
	return nil
}

func (f *fakeStore) appendEventLocked(ev models.SyncEvent) {
	f.nextId++
	ev.Id = f.nextId
	f.events = append(f.events, ev)
}

func (f *fakeStore) Get(ctx context.Context, ticketId string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketId]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) MarkSynced(ctx context.Context, ticketId string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketId]
	if !ok {
		return nil
	}
	t.Status = models.StatusSynced
	t.SyncedAt = &at
	f.tickets[ticketId] = t
	return nil
}

func (f *fakeStore) ApplyServerState(ctx context.Context, server models.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[server.TicketId]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	t.VehicleNo = server.VehicleNo
	t.Phone = server.Phone
	t.EntryTime = server.EntryTime
	t.ExitTime = server.ExitTime
	t.Status = models.StatusSynced
	t.Payment = server.Payment
	t.Notes = server.Notes
	t.SyncedAt = &now
	f.tickets[server.TicketId] = t
	return nil
}

func (f *fakeStore) ListActive(ctx context.Context) ([]models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Ticket
	for _, t := range f.tickets {
		if (t.Status == models.StatusPending || t.Status == models.StatusSynced) && t.ExitTime == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) Search(ctx context.Context, query string) ([]models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToUpper(query)
	var out []models.Ticket
	for _, t := range f.tickets {
		if strings.HasPrefix(t.VehicleNo, q) || strings.HasPrefix(t.TicketId, q) || strings.HasPrefix(t.Phone, query) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByRange(ctx context.Context, from, to time.Time) ([]models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Ticket
	for _, t := range f.tickets {
		if !t.EntryTime.Before(from) && !t.EntryTime.After(to) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

func (f *fakeStore) ListPending(ctx context.Context) ([]models.SyncEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SyncEvent
	for _, ev := range f.events {
		if !ev.Synced {
			out = append(out, ev)
		}
	}
	return out, nil
}

// markSyncedEvents mirrors the SQL "where id = any($1) and synced=false":
// already-synced ids are a no-op.
func (f *fakeStore) markSyncedEvents(ids []int64) {
	for _, id := range ids {
		for i := range f.events {
			if f.events[i].Id == id && !f.events[i].Synced {
				f.events[i].Synced = true
			}
		}
	}
}

func (f *fakeStore) CountPending(ctx context.Context) (int, error) {
	pending, _ := f.ListPending(ctx)
	return len(pending), nil
}

func (f *fakeStore) UpdateLastSync(ctx context.Context, deviceId string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.device != nil && f.device.DeviceId == deviceId {
		f.device.LastSync = &at
	}
	return nil
}

func (f *fakeStore) GetDevice(ctx context.Context) (*models.DeviceConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.device == nil {
		return nil, nil
	}
	d := *f.device
	return &d, nil
}

func (f *fakeStore) Append(ctx context.Context, entry models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, entry)
	return nil
}

func (f *fakeStore) auditActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.audits {
		out = append(out, a.Action)
	}
	return out
}

func (f *fakeStore) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeStore) eventAt(i int) models.SyncEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[i]
}

// deviceStore adapts fakeStore's single device row to the DeviceStore
// interface (Get has a different receiver-level name to avoid clashing with
// the ticket Get).
type deviceStore struct{ *fakeStore }

func (d deviceStore) Get(ctx context.Context) (*models.DeviceConfig, error) {
	return d.GetDevice(ctx)
}

// outboxStore adapts fakeStore to OutboxStore.
type outboxStore struct{ *fakeStore }

func (o outboxStore) MarkSynced(ctx context.Context, ids []int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.markSyncedEvents(ids)
	return nil
}

type stubNet struct{ online bool }

func (n *stubNet) Online() bool { return n.online }

// fakeExchange scripts remote responses and records every push.
type fakeExchange struct {
	mu      sync.Mutex
	calls   []models.SyncEvent
	respond func(eventType models.EventType, ev models.SyncEvent) (ExchangeResult, error)

	entered chan struct{}
	release chan struct{}
}

func (f *fakeExchange) Push(ctx context.Context, eventType models.EventType, ev models.SyncEvent, dev models.DeviceConfig) (ExchangeResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.calls = append(f.calls, ev)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(eventType, ev)
	}
	return ExchangeResult{Outcome: OutcomeAcked}, nil
}

func (f *fakeExchange) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExchange) callTypes() []models.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EventType
	for _, ev := range f.calls {
		out = append(out, ev.Type)
	}
	return out
}

func testDevice() *models.DeviceConfig {
	return &models.DeviceConfig{
		DeviceId: "device-test-1",
		Name:     "Main Gate",
		Role:     models.RoleEntry,
		Key:      "4a7d1ed414474e4033ac29ccb8653d9b4a7d1ed414474e4033ac29ccb8653d9b",
	}
}

func testSession(role models.DeviceRole) *models.Session {
	return &models.Session{
		StaffId:   "staff001",
		StaffName: "John Entry",
		Role:      role,
		DeviceId:  "device-test-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

type testEnv struct {
	store *fakeStore
	net   *stubNet
	svc   *TicketService
}

func newTestEnv(online bool) *testEnv {
	store := newFakeStore(testDevice())
	net := &stubNet{online: online}
	audit := NewAuditWriter(store)
	svc := NewTicketService(store, deviceStore{store}, audit, net, 24)
	return &testEnv{store: store, net: net, svc: svc}
}

func newTestEngine(store *fakeStore, net *stubNet, remote Exchange) *SyncEngine {
	e := NewSyncEngine(store, outboxStore{store}, deviceStore{store}, NewAuditWriter(store), remote, net)
	e.Timeout = time.Second
	return e
}
