package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/app"
	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/config"
	"github.com/loramulaku/LABcourse-sub002/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("sweeper starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Bool("sweep_unpaid_bookings", cfg.SweepUnpaidBookings),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Connect(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer infra.Close()

	svc := app.NewServices(infra.Deps(), app.Options{
		RequirePaymentForConfirm: cfg.RequirePaymentForConfirm,
		AllowPastBookings:        cfg.AllowPastBookings,
	})

	// Every transition the sweeper makes is recorded as the system actor.
	ctx := audit.WithActor(rootCtx, cfg.SystemActorID)

	runOnce(ctx, cfg, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			runOnce(ctx, cfg, svc, log)
		}
	}
}

func runOnce(ctx context.Context, cfg config.Config, svc *app.Services, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	report, err := svc.Sweep(runCtx, start.UTC(), app.SweepOptions{
		SweepUnpaid:    cfg.SweepUnpaidBookings,
		UnpaidTTL:      cfg.UnpaidBookingTTL,
		ReconcileAfter: cfg.ReconcileAfter,
	}, log)
	if err != nil {
		log.Warn("sweep finished with errors", zap.Error(err))
	}

	if report.Reconciled > 0 {
		log.Info("payment sessions reconciled", zap.Int("count", report.Reconciled))
	}
	if report.Cancelled > 0 {
		log.Info("unpaid bookings cancelled", zap.Int("count", report.Cancelled))
	}
	if report.Overdue > 0 {
		log.Info("therapy plans marked overdue", zap.Int("count", report.Overdue))
	}

	log.Debug("sweep complete", zap.Duration("duration", time.Since(start)))
}
