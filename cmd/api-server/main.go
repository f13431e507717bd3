package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/api"
	"github.com/loramulaku/LABcourse-sub002/internal/app"
	"github.com/loramulaku/LABcourse-sub002/internal/config"
	"github.com/loramulaku/LABcourse-sub002/internal/logger"
)

var version = "dev"

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

	log.Info("api-server starting up", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort), zap.String("version", version))

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

	router := api.NewRouter(api.RouterConfig{
		Allocator:         svc.Allocator,
		Machine:           svc.Machine,
		Reconciler:        svc.Reconciler,
		Care:              svc.Care,
		Reviewer:          svc.Reviewer,
		Ledger:            svc.Ledger,
		Logger:            log.Named("http"),
		SystemActorID:     cfg.SystemActorID,
		MidtransServerKey: cfg.MidtransServerKey,
		Store:             infra.Store,
		Redis:             api.PingFunc(func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() }),
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:      cfg.RateLimitRPS,
		Env:               cfg.Env,
		Version:           version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	log.Info("api-server stopped")
}
