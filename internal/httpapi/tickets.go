package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"parkpass/internal/auth"
	"parkpass/internal/models"
	"parkpass/internal/repo"
	"parkpass/internal/services"

	"github.com/go-chi/chi/v5"
)

func (s *Server) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req services.CreateTicketRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	res, err := s.Tickets.Create(r.Context(), auth.SessionFrom(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type validateReq struct {
	Code string `json:"code"`
}

func (s *Server) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var req validateReq
	if err := decodeBody(r, &req); err != nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code required"})
		return
	}
	res, err := s.Tickets.Validate(r.Context(), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) ExitTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.Tickets.ProcessExit(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "ticketId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type overrideReq struct {
	Action services.OverrideAction `json:"action"`
	Reason string                  `json:"reason"`
}

func (s *Server) OverrideTicket(w http.ResponseWriter, r *http.Request) {
	var req overrideReq
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	ticket, err := s.Tickets.Override(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "ticketId"), req.Action, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) ListActive(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.Tickets.ActiveTickets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.Tickets.TicketByID(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ticket == nil {
		writeError(w, services.ErrTicketNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) QueryTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Bare query with no filters is the operator typeahead; it takes the
	// prefix-search path.
	if q.Get("query") != "" && q.Get("status") == "" && q.Get("from") == "" && q.Get("to") == "" && q.Get("limit") == "" {
		tickets, err := s.Tickets.SearchTickets(r.Context(), q.Get("query"))
		if err != nil {
			writeError(w, err)
			return
		}
		if tickets == nil {
			tickets = []models.Ticket{}
		}
		writeJSON(w, http.StatusOK, tickets)
		return
	}

	f := repo.TicketFilter{
		Status: models.TicketStatus(q.Get("status")),
		Query:  q.Get("query"),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad from"})
			return
		}
		f.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad to"})
			return
		}
		f.To = &t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad limit"})
			return
		}
		f.Limit = n
	}

	tickets, err := s.Store.Query(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) ExportCSV(w http.ResponseWriter, r *http.Request) {
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

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="tickets.csv"`)
	if err := s.Reports.ExportCSV(r.Context(), w, from, to); err != nil {
		// Headers are gone at this point; the truncated body signals failure.
		return
	}
}
