package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"parkpass/internal/auth"
	"parkpass/internal/models"
	"parkpass/internal/security"
	"parkpass/internal/services"

	"github.com/go-chi/chi/v5"
)

func (s *Server) GetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.Devices.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if dev == nil {
		writeError(w, services.ErrDeviceNotConfigured)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// RotateDeviceKey replaces the signing secret. Tickets signed with the old
// key stop verifying, which is the point of rotating after a suspected leak.
func (s *Server) RotateDeviceKey(w http.ResponseWriter, r *http.Request) {
	dev, err := s.Devices.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if dev == nil {
		writeError(w, services.ErrDeviceNotConfigured)
		return
	}

	newKey := security.GenerateDeviceKey()
	if err := s.Devices.RotateKey(r.Context(), dev.DeviceId, newKey); err != nil {
		writeError(w, err)
		return
	}

	session := auth.SessionFrom(r.Context())
	meta, _ := json.Marshal(map[string]string{"deviceId": dev.DeviceId})
	s.Auditor.Append(r.Context(), models.AuditLog{
		TicketId:  models.SystemTicketId,
		Action:    "key_rotated",
		Actor:     session.StaffId,
		Timestamp: time.Now().UTC(),
		Meta:      meta,
	})

	writeJSON(w, http.StatusOK, map[string]string{"deviceId": dev.DeviceId, "key": newKey})
}

func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Reports.Dashboard(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) Revenue(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from, err := timeParam(r, "from", now.AddDate(0, -1, 0))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad from"})
		return
	}
	to, err := timeParam(r, "to", now)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad to"})
		return
	}
	rev, err := s.Reports.Revenue(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad limit"})
			return
		}
		limit = n
	}
	logs, err := s.Audit.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// TicketEvents exposes a ticket's outbox rows so an admin can see exactly
// what has and has not reached the remote authority.
func (s *Server) TicketEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.Outbox.ListByTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []models.SyncEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) AuditByTicket(w http.ResponseWriter, r *http.Request) {
	logs, err := s.Audit.ListByTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
