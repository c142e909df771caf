package services

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"parkpass/internal/models"
)

// ReportService is the read-only consumer of the ticket store behind the
// dashboard and the CSV export. It never mutates state.
type ReportService struct {
	Tickets TicketStore
}

func NewReportService(tickets TicketStore) *ReportService {
	return &ReportService{Tickets: tickets}
}

type PeriodStats struct {
	Entries int     `json:"entries"`
	Exits   int     `json:"exits"`
	Active  int     `json:"active"`
	Revenue float64 `json:"revenue"`
}

type DashboardStats struct {
	Today     PeriodStats `json:"today"`
	ThisWeek  PeriodStats `json:"thisWeek"`
	ThisMonth PeriodStats `json:"thisMonth"`
}

type RevenueByMethod struct {
	Cash float64 `json:"cash"`
	UPI  float64 `json:"upi"`
}

func (s *ReportService) Dashboard(ctx context.Context, now time.Time) (*DashboardStats, error) {
	now = now.UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := todayStart.AddDate(0, 0, -7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	earliest := monthStart
	if weekStart.Before(earliest) {
		earliest = weekStart
	}
	tickets, err := s.Tickets.ListByRange(ctx, earliest, now)
	if err != nil {
		return nil, err
	}

	var out DashboardStats
	for _, t := range tickets {
		if !t.EntryTime.Before(todayStart) {
			tally(&out.Today, t)
		}
		if !t.EntryTime.Before(weekStart) {
			tally(&out.ThisWeek, t)
		}
		if !t.EntryTime.Before(monthStart) {
			tally(&out.ThisMonth, t)
		}
	}
	return &out, nil
}

func tally(p *PeriodStats, t models.Ticket) {
	p.Entries++
	if t.ExitTime != nil {
		p.Exits++
	} else if t.Status != models.StatusCancelled {
		p.Active++
	}
	p.Revenue += t.Payment.Amount
}

func (s *ReportService) Revenue(ctx context.Context, from, to time.Time) (RevenueByMethod, error) {
	tickets, err := s.Tickets.ListByRange(ctx, from, to)
	if err != nil {
		return RevenueByMethod{}, err
	}

	var rev RevenueByMethod
	for _, t := range tickets {
		switch t.Payment.Method {
		case models.PaymentCash:
			rev.Cash += t.Payment.Amount
		case models.PaymentUPI:
			rev.UPI += t.Payment.Amount
		}
	}
	return rev, nil
}

var csvHeader = []string{
	"Ticket ID", "Vehicle Number", "Phone", "Entry Time", "Exit Time",
	"Duration", "Status", "Payment Method", "Amount", "Transaction ID",
	"Created By Device", "Notes",
}

// ExportCSV streams the tickets in the range as CSV rows.
func (s *ReportService) ExportCSV(ctx context.Context, w io.Writer, from, to time.Time) error {
	tickets, err := s.Tickets.ListByRange(ctx, from, to)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range tickets {
		exit, duration := "", ""
		if t.ExitTime != nil {
			exit = t.ExitTime.Format(time.RFC3339)
			duration = ParkingDuration(t.EntryTime, t.ExitTime)
		}
		row := []string{
			t.TicketId,
			t.VehicleNo,
			t.Phone,
			t.EntryTime.Format(time.RFC3339),
			exit,
			duration,
			string(t.Status),
			string(t.Payment.Method),
			strconv.FormatFloat(t.Payment.Amount, 'f', 2, 64),
			t.Payment.TxnId,
			t.CreatedByDevice,
			t.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
