package services

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"parkpass/internal/models"
)

type ExchangeOutcome int

const (
	OutcomeAcked ExchangeOutcome = iota
	OutcomeConflict
	OutcomeRejected
)

type ExchangeResult struct {
	Outcome ExchangeOutcome
	Server  *models.Ticket
}

// Exchange is the remote reconciliation endpoint. It must accept idempotent
// replay: an event acknowledged twice is not double-applied server side.
type Exchange interface {
	Push(ctx context.Context, eventType models.EventType, ev models.SyncEvent, dev models.DeviceConfig) (ExchangeResult, error)
}

type SyncStatus struct {
	IsOnline      bool       `json:"isOnline"`
	LastSync      *time.Time `json:"lastSync,omitempty"`
	PendingEvents int        `json:"pendingEvents"`
	InProgress    bool       `json:"inProgress"`
	LastError     string     `json:"lastError,omitempty"`
}

type SyncResult struct {
	Success      bool   `json:"success"`
	SyncedEvents int    `json:"syncedEvents"`
	FailedEvents int    `json:"failedEvents"`
	Conflicts    int    `json:"conflicts"`
	Err          string `json:"error,omitempty"`
}

const defaultMaxRetries = 3

// SyncEngine drains the outbox against the remote exchange. At most one
// cycle runs at a time; the in-progress gate is a compare-and-set, so a
// concurrent trigger gets an immediate "already in progress" result instead
// of queuing.
type SyncEngine struct {
	Tickets TicketStore
	Outbox  OutboxStore
	Devices DeviceStore
	Audit   *AuditWriter
	Remote  Exchange
	Net     Connectivity

	Interval   time.Duration
	Timeout    time.Duration
	MaxRetries int

	inProgress atomic.Bool

	mu      sync.Mutex
	retries map[string]int
	lastErr string
	subs    map[int]func(SyncStatus)
	nextSub int
}

func NewSyncEngine(tickets TicketStore, outbox OutboxStore, devices DeviceStore, audit *AuditWriter, remote Exchange, net Connectivity) *SyncEngine {
	return &SyncEngine{
		Tickets:    tickets,
		Outbox:     outbox,
		Devices:    devices,
		Audit:      audit,
		Remote:     remote,
		Net:        net,
		Interval:   5 * time.Minute,
		Timeout:    10 * time.Second,
		MaxRetries: defaultMaxRetries,
		retries:    make(map[string]int),
		subs:       make(map[int]func(SyncStatus)),
	}
}

// Subscribe registers a status observer and returns its unsubscribe handle.
// Observers are notified at the end of every cycle, successful or not.
func (e *SyncEngine) Subscribe(fn func(SyncStatus)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Sync runs one reconciliation cycle: fetch pending outbox events, push them
// by type (creates, then exits, then overrides), resolve conflicts
// server-wins, and stamp the device lastSync.
func (e *SyncEngine) Sync(ctx context.Context) SyncResult {
	if !e.inProgress.CompareAndSwap(false, true) {
		return SyncResult{Err: ErrSyncInProgress.Error()}
	}

	var res SyncResult
	defer func() {
		e.inProgress.Store(false)
		e.notify(ctx)
	}()
	e.setLastError("")

	dev, err := e.Devices.Get(ctx)
	if err != nil {
		res.Err = err.Error()
		e.setLastError(res.Err)
		return res
	}
	if dev == nil {
		res.Err = ErrDeviceNotConfigured.Error()
		e.setLastError(res.Err)
		return res
	}

	pending, err := e.Outbox.ListPending(ctx)
	if err != nil {
		res.Err = err.Error()
		e.setLastError(res.Err)
		return res
	}

	// The store gives no ordering guarantee; sort by event timestamp so
	// replay is deterministic.
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})

	for _, typ := range []models.EventType{models.EventCreate, models.EventExit, models.EventManualOverride} {
		for _, ev := range pending {
			if ev.Type != typ {
				continue
			}
			e.pushOne(ctx, dev, ev, &res)
		}
	}

	if err := e.Devices.UpdateLastSync(ctx, dev.DeviceId, time.Now().UTC()); err != nil {
		log.Printf("sync: update lastSync failed: %v", err)
	}

	res.Success = res.FailedEvents == 0
	return res
}

func (e *SyncEngine) pushOne(ctx context.Context, dev *models.DeviceConfig, ev models.SyncEvent, res *SyncResult) {
	// Events past the retry bound are parked until ClearErrors.
	if e.retryCount(ev.TicketId) >= e.maxRetries() {
		return
	}

	pctx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	r, err := e.Remote.Push(pctx, ev.Type, ev, *dev)
	if err != nil {
		log.Printf("sync: push %s event for %s failed: %v", ev.Type, ev.TicketId, err)
		e.recordRejection(ev, res)
		return
	}

	switch r.Outcome {
	case OutcomeAcked:
		if err := e.Outbox.MarkSynced(ctx, []int64{ev.Id}); err != nil {
			log.Printf("sync: mark event %d synced failed: %v", ev.Id, err)
			e.recordRejection(ev, res)
			return
		}
		if ev.Type == models.EventCreate {
			if err := e.Tickets.MarkSynced(ctx, ev.TicketId, time.Now().UTC()); err != nil {
				log.Printf("sync: promote ticket %s failed: %v", ev.TicketId, err)
			}
		}
		e.clearRetries(ev.TicketId)
		res.SyncedEvents++

	case OutcomeConflict:
		e.resolveConflict(ctx, ev, r.Server)
		res.Conflicts++

	case OutcomeRejected:
		e.recordRejection(ev, res)
	}
}

// resolveConflict applies the server-wins policy: the authoritative record
// overwrites the local ticket, the outbox event is marked synced (conflicts
// are terminal, never retried) and both snapshots land in the audit trail.
func (e *SyncEngine) resolveConflict(ctx context.Context, ev models.SyncEvent, server *models.Ticket) {
	local, err := e.Tickets.Get(ctx, ev.TicketId)
	if err != nil {
		log.Printf("sync: conflict lookup for %s failed: %v", ev.TicketId, err)
	}

	if server != nil {
		if err := e.Tickets.ApplyServerState(ctx, *server); err != nil {
			log.Printf("sync: apply server state for %s failed: %v", ev.TicketId, err)
			return
		}
	}
	if err := e.Outbox.MarkSynced(ctx, []int64{ev.Id}); err != nil {
		log.Printf("sync: mark conflicted event %d synced failed: %v", ev.Id, err)
	}
	e.clearRetries(ev.TicketId)

	meta, _ := json.Marshal(map[string]any{
		"localVersion":  local,
		"serverVersion": server,
	})
	e.Audit.Append(ctx, models.AuditLog{
		TicketId:  ev.TicketId,
		Action:    "conflict_resolved",
		Actor:     "system",
		Timestamp: time.Now().UTC(),
		Meta:      meta,
	})
}

func (e *SyncEngine) recordRejection(ev models.SyncEvent, res *SyncResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retries[ev.TicketId]++
	if e.retries[ev.TicketId] >= e.maxRetries() {
		res.FailedEvents++
		e.lastErr = "event for ticket " + ev.TicketId + " exceeded retry limit"
	}
}

// Status is the observer-facing snapshot of the engine.
func (e *SyncEngine) Status(ctx context.Context) SyncStatus {
	st := SyncStatus{
		IsOnline:   e.Net.Online(),
		InProgress: e.inProgress.Load(),
		LastError:  e.lastError(),
	}
	if n, err := e.Outbox.CountPending(ctx); err == nil {
		st.PendingEvents = n
	}
	if dev, err := e.Devices.Get(ctx); err == nil && dev != nil {
		st.LastSync = dev.LastSync
	}
	return st
}

// ForceSync is the manual trigger. Unlike the background cycle it fails fast
// when the device is offline instead of attempting and failing later.
func (e *SyncEngine) ForceSync(ctx context.Context) (SyncResult, error) {
	if !e.Net.Online() {
		return SyncResult{Err: ErrOffline.Error()}, ErrOffline
	}
	return e.Sync(ctx), nil
}

// ClearErrors resets the retry counters so events that exhausted the retry
// bound become eligible again, and clears the standing error.
func (e *SyncEngine) ClearErrors() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retries = make(map[string]int)
	e.lastErr = ""
}

// Run is the background scheduler: an immediate cycle when online, then one
// per interval while online. Cycle failures are recorded and the scheduler
// keeps going. Pair with a Connectivity change hook for the offline->online
// immediate trigger.
func (e *SyncEngine) Run(ctx context.Context) {
	if e.Net.Online() {
		e.logCycle(e.Sync(ctx))
	}

	interval := e.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.Net.Online() && !e.inProgress.Load() {
				e.logCycle(e.Sync(ctx))
			}
		}
	}
}

func (e *SyncEngine) logCycle(res SyncResult) {
	if res.Err != "" {
		log.Printf("sync: cycle failed: %s", res.Err)
		return
	}
	log.Printf("sync: cycle done synced=%d failed=%d conflicts=%d", res.SyncedEvents, res.FailedEvents, res.Conflicts)
}

func (e *SyncEngine) notify(ctx context.Context) {
	status := e.Status(ctx)
	e.mu.Lock()
	fns := make([]func(SyncStatus), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(status)
	}
}

func (e *SyncEngine) maxRetries() int {
	if e.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return e.MaxRetries
}

func (e *SyncEngine) retryCount(ticketId string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retries[ticketId]
}

func (e *SyncEngine) clearRetries(ticketId string) {
	e.mu.Lock()
	delete(e.retries, ticketId)
	e.mu.Unlock()
}

func (e *SyncEngine) setLastError(msg string) {
	e.mu.Lock()
	e.lastErr = msg
	e.mu.Unlock()
}

func (e *SyncEngine) lastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}
