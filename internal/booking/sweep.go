package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

// UnpaidSweeper cancels PENDING bookings that stayed unpaid for too long. Whether it
// runs at all is a deployment policy (SWEEP_UNPAID_BOOKINGS).
type UnpaidSweeper struct {
	store   Store
	machine *workflow.Machine
	log     *zap.Logger
}

func NewUnpaidSweeper(store Store, machine *workflow.Machine, log *zap.Logger) *UnpaidSweeper {
	return &UnpaidSweeper{store: store, machine: machine, log: log}
}

// Run cancels stale bookings created before cutoff, acting as the actor in ctx.
func (s *UnpaidSweeper) Run(ctx context.Context, cutoff time.Time) (int, error) {
	actor, err := audit.ActorFrom(ctx)
	if err != nil {
		return 0, err
	}

	ids, err := s.store.StaleUnpaidBookings(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale unpaid bookings: %w", err)
	}

	cancelled := 0
	for _, id := range ids {
		_, err := s.machine.Execute(ctx, workflow.Request{
			Kind:    audit.KindBooking,
			ID:      id,
			Target:  workflow.BookingCancelled,
			Actor:   actor,
			Note:    "unpaid since " + cutoff.Format(time.RFC3339),
			Require: stillUnpaid,
		})
		if err != nil {
			if errors.Is(err, workflow.ErrInvalidTransition) || errors.Is(err, workflow.ErrNotFound) {
				continue
			}
			s.log.Error("failed to cancel unpaid booking", zap.String("booking_id", id.String()), zap.Error(err))
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// stillUnpaid re-checks under the row lock, since a payment may have settled after
// the candidate list was read.
func stillUnpaid(ctx context.Context, tx workflow.Tx, c workflow.Change) error {
	paid, err := tx.BookingPaymentStatus(ctx, c.ID)
	if err != nil {
		return err
	}
	if paid != workflow.PaymentUnpaid {
		return fmt.Errorf("%w: booking is %s", workflow.ErrInvalidTransition, paid)
	}
	return nil
}
