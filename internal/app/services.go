// Package app wires the domain services shared by the binaries.
package app

import (
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/events"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	redisclient "github.com/loramulaku/LABcourse-sub002/internal/redis"
	"github.com/loramulaku/LABcourse-sub002/internal/review"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

// Store is everything the services persist through. Both pgstore.Store and
// memstore.Store satisfy it.
type Store interface {
	workflow.Store
	booking.Store
	payment.Store
	care.Store
	audit.Reader
}

type Deps struct {
	Store     Store
	Locker    redisclient.Locker
	Publisher events.Publisher
	Gateway   payment.Gateway
	Log       *zap.Logger
}

type Options struct {
	RequirePaymentForConfirm bool
	AllowPastBookings        bool
}

type Services struct {
	Ledger        *audit.Ledger
	Machine       *workflow.Machine
	Allocator     *booking.Allocator
	UnpaidSweeper *booking.UnpaidSweeper
	Reconciler    *payment.Reconciler
	Care          *care.Service
	Reviewer      *review.Reviewer
}

func NewServices(d Deps, opts Options) *Services {
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Gateway == nil {
		d.Gateway = payment.DisabledGateway{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	ledger := audit.NewLedger(d.Store, d.Log.Named("audit"))
	machine := workflow.NewMachine(d.Store, ledger, d.Publisher, d.Log.Named("workflow"),
		workflow.Definitions(workflow.Options{RequirePaymentForConfirm: opts.RequirePaymentForConfirm})...)

	return &Services{
		Ledger:  ledger,
		Machine: machine,
		Allocator: booking.NewAllocator(d.Store, ledger, d.Locker, d.Publisher, d.Log.Named("booking"),
			booking.Options{AllowPastBookings: opts.AllowPastBookings}),
		UnpaidSweeper: booking.NewUnpaidSweeper(d.Store, machine, d.Log.Named("booking")),
		Reconciler:    payment.NewReconciler(d.Store, d.Gateway, machine, ledger, d.Locker, d.Publisher, d.Log.Named("payment")),
		Care:          care.NewService(d.Store, machine, ledger, d.Publisher, d.Log.Named("care")),
		Reviewer:      review.NewReviewer(machine),
	}
}
