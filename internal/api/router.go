package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/review"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

type RouterConfig struct {
	Allocator  *booking.Allocator
	Machine    *workflow.Machine
	Reconciler *payment.Reconciler
	Care       *care.Service
	Reviewer   *review.Reviewer
	Ledger     *audit.Ledger
	Logger     *zap.Logger

	// SystemActorID is recorded on history written by gateway callbacks.
	SystemActorID uuid.UUID

	// MidtransServerKey enables the Midtrans notification endpoint when set.
	MidtransServerKey string

	Store Pinger
	Redis Pinger

	AllowedOrigins []string
	RateLimitRPS   int
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	health := NewHealthHandler(cfg.Store, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
		}

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", createBookingHandler(cfg.Allocator, log))
			r.Get("/{id}", getBookingHandler(cfg.Allocator, log))
			r.Post("/{id}/transition", transitionHandler(cfg.Machine, audit.KindBooking, loadBooking(cfg.Allocator), log))
		})
		r.Get("/doctors/{id}/bookings", listDoctorBookingsHandler(cfg.Allocator, log))

		r.Post("/payments/intents", createIntentHandler(cfg.Reconciler, log))
	})

	// Gateway deliveries are not rate limited; a throttled callback is a lost one.
	r.Post("/payments/callback", callbackHandler(cfg.Reconciler, cfg.SystemActorID, log))
	if cfg.MidtransServerKey != "" {
		r.Post("/payments/midtrans/notification", midtransNotificationHandler(cfg.Reconciler, cfg.MidtransServerKey, cfg.SystemActorID, log))
	}

	r.Get("/entities/{kind}/{id}/history", historyHandler(cfg.Ledger, log))

	r.Route("/analysis-orders", func(r chi.Router) {
		r.Post("/", createAnalysisOrderHandler(cfg.Care, log))
		r.Get("/{id}", getAnalysisOrderHandler(cfg.Care, log))
		r.Post("/{id}/transition", transitionHandler(cfg.Machine, audit.KindAnalysisOrder, loadAnalysisOrder(cfg.Care), log))
		r.Post("/{id}/result", uploadResultHandler(cfg.Care, log))
	})

	r.Route("/therapy-plans", func(r chi.Router) {
		r.Post("/", createTherapyPlanHandler(cfg.Care, log))
		r.Get("/{id}", getTherapyPlanHandler(cfg.Care, log))
		r.Post("/{id}/transition", transitionHandler(cfg.Machine, audit.KindTherapyPlan, loadTherapyPlan(cfg.Care), log))
	})

	r.Route("/doctor-applications", func(r chi.Router) {
		r.Post("/", submitApplicationHandler(cfg.Care, log))
		r.Get("/{id}", getApplicationHandler(cfg.Care, log))
		r.Post("/{id}/approve", approveApplicationHandler(cfg.Reviewer, log))
		r.Post("/{id}/reject", rejectApplicationHandler(cfg.Reviewer, log))
	})

	return r
}

func loadBooking(alloc *booking.Allocator) entityLoader {
	return func(ctx context.Context, id uuid.UUID) (any, error) {
		b, err := alloc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return bookingResponse(b), nil
	}
}

func loadAnalysisOrder(svc *care.Service) entityLoader {
	return func(ctx context.Context, id uuid.UUID) (any, error) {
		o, err := svc.GetAnalysisOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		return analysisOrderResponse(o), nil
	}
}

func loadTherapyPlan(svc *care.Service) entityLoader {
	return func(ctx context.Context, id uuid.UUID) (any, error) {
		p, err := svc.GetTherapyPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		return therapyPlanResponse(p), nil
	}
}
