package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"parkpass/internal/config"
	"parkpass/internal/db"
	"parkpass/internal/httpapi"
	"parkpass/internal/repo"
	"parkpass/internal/services"
	"parkpass/internal/syncclient"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()
	if err := d.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	tickets := repo.NewTicketsRepo(d.Pool)
	outbox := repo.NewOutboxRepo(d.Pool)
	devices := repo.NewDevicesRepo(d.Pool)
	auditLogs := repo.NewAuditRepo(d.Pool)
	staff := repo.NewStaffRepo(d.Pool)

	auditor := services.NewAuditWriter(auditLogs)
	go func() {
		for err := range auditor.Errors() {
			log.Printf("audit write failed: %v", err)
		}
	}()

	remote := syncclient.New(cfg.SyncBaseURL, cfg.SyncAPIKey)
	watcher := services.NewNetWatcher(remote, cfg.ProbeInterval, 5*time.Second)

	ticketSvc := services.NewTicketService(tickets, devices, auditor, watcher, cfg.TicketValidityHours)
	reportSvc := services.NewReportService(tickets)

	engine := services.NewSyncEngine(tickets, outbox, devices, auditor, remote, watcher)
	engine.Interval = cfg.SyncInterval
	engine.Timeout = cfg.ExchangeTimeout

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher.OnChange(func(online bool) {
		if dev, err := devices.Get(runCtx); err == nil && dev != nil {
			_ = devices.SetOnline(runCtx, dev.DeviceId, online)
		}
		if online {
			go engine.Sync(runCtx)
		}
	})

	go watcher.Run(runCtx)
	go engine.Run(runCtx)

	srv := httpapi.NewServer(cfg, ticketSvc, engine, reportSvc, auditor, tickets, outbox, staff, devices, auditLogs)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Println("parkpass terminal listening on", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-runCtx.Done()
	stop()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = httpServer.Shutdown(ctx2)
	log.Println("parkpass terminal shutdown complete")
}
