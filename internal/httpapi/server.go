package httpapi

import (
	"net/http"

	"parkpass/internal/auth"
	"parkpass/internal/config"
	"parkpass/internal/models"
	"parkpass/internal/repo"
	"parkpass/internal/services"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	Cfg     config.Config
	Tickets *services.TicketService
	Sync    *services.SyncEngine
	Reports *services.ReportService
	Auditor *services.AuditWriter
	Store   *repo.TicketsRepo
	Outbox  *repo.OutboxRepo
	Staff   *repo.StaffRepo
	Devices *repo.DevicesRepo
	Audit   *repo.AuditRepo
}

func NewServer(cfg config.Config, tickets *services.TicketService, sync *services.SyncEngine, reports *services.ReportService, auditor *services.AuditWriter, store *repo.TicketsRepo, outbox *repo.OutboxRepo, staff *repo.StaffRepo, devices *repo.DevicesRepo, audit *repo.AuditRepo) *Server {
	return &Server{Cfg: cfg, Tickets: tickets, Sync: sync, Reports: reports, Auditor: auditor, Store: store, Outbox: outbox, Staff: staff, Devices: devices, Audit: audit}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Public routes: the validate path works without a session so an exit
	// terminal can scan tickets before the operator logs in.
	r.Post("/v1/auth/login", s.Login)
	r.Post("/v1/tickets/validate", s.ValidateTicket)
	r.Get("/v1/tickets/active", s.ListActive)
	r.Get("/v1/tickets/export.csv", s.ExportCSV)
	r.Get("/v1/tickets", s.QueryTickets)
	r.Get("/v1/tickets/{ticketId}", s.GetTicket)
	r.Get("/v1/sync/status", s.SyncStatus)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.Cfg.JWTSecret))
		r.Post("/v1/tickets", s.CreateTicket)
		r.Post("/v1/tickets/{ticketId}/exit", s.ExitTicket)
		r.Post("/v1/sync/force", s.ForceSync)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Post("/v1/tickets/{ticketId}/override", s.OverrideTicket)
			r.Post("/v1/sync/errors/clear", s.ClearSyncErrors)
			r.Get("/v1/device", s.GetDevice)
			r.Post("/v1/device/rotate-key", s.RotateDeviceKey)
			r.Get("/v1/reports/dashboard", s.Dashboard)
			r.Get("/v1/reports/revenue", s.Revenue)
			r.Get("/v1/tickets/{ticketId}/events", s.TicketEvents)
			r.Get("/v1/audit", s.ListAudit)
			r.Get("/v1/audit/{ticketId}", s.AuditByTicket)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
