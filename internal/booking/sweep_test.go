package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

// fixedCandidates reports a stale list regardless of current state, standing in for
// a payment that settles between the listing and the cancellation.
type fixedCandidates struct {
	booking.Store
	ids []uuid.UUID
}

func (f fixedCandidates) StaleUnpaidBookings(context.Context, time.Time) ([]uuid.UUID, error) {
	return f.ids, nil
}

func (e *env) reserve(t *testing.T) *booking.Booking {
	t.Helper()
	b, err := e.allocator.Reserve(context.Background(), booking.ReserveRequest{
		DoctorID:    uuid.New(),
		RequesterID: uuid.New(),
		ScheduledAt: slot(),
	})
	require.NoError(t, err)
	return b
}

func (e *env) markPaid(t *testing.T, id uuid.UUID) {
	t.Helper()
	err := e.store.InPaymentTx(context.Background(), func(ctx context.Context, tx payment.Tx) error {
		return tx.SetPaymentStatus(ctx, id, workflow.PaymentPaid, time.Now().UTC())
	})
	require.NoError(t, err)
}

func TestUnpaidSweeper(t *testing.T) {
	e := newEnv(booking.Options{})
	system := uuid.New()
	ctx := audit.WithActor(context.Background(), system)

	stale := e.reserve(t)
	paid := e.reserve(t)
	e.markPaid(t, paid.ID)

	sweeper := booking.NewUnpaidSweeper(e.store, e.machine, zap.NewNop())

	n, err := sweeper.Run(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.store.GetBooking(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.BookingCancelled, got.Status)

	records, err := e.ledger.ListFor(ctx, audit.KindBooking, stale.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, system, records[1].PerformedBy)

	got, err = e.store.GetBooking(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.BookingPending, got.Status)
}

func TestUnpaidSweeperSkipsBookingsPaidMeanwhile(t *testing.T) {
	e := newEnv(booking.Options{})
	ctx := audit.WithActor(context.Background(), uuid.New())

	b := e.reserve(t)
	e.markPaid(t, b.ID)

	sweeper := booking.NewUnpaidSweeper(fixedCandidates{Store: e.store, ids: []uuid.UUID{b.ID}}, e.machine, zap.NewNop())

	n, err := sweeper.Run(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := e.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.BookingPending, got.Status)
}

func TestUnpaidSweeperNeedsActor(t *testing.T) {
	e := newEnv(booking.Options{})
	sweeper := booking.NewUnpaidSweeper(e.store, e.machine, zap.NewNop())

	_, err := sweeper.Run(context.Background(), time.Now())
	assert.ErrorIs(t, err, audit.ErrMissingActor)
}
