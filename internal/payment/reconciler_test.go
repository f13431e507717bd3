package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/events"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	redisclient "github.com/loramulaku/LABcourse-sub002/internal/redis"
	"github.com/loramulaku/LABcourse-sub002/internal/store/memstore"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

type fakeGateway struct {
	mu       sync.Mutex
	created  []payment.SessionRequest
	statuses map[string]payment.Outcome
	fail     error

	// dropResponse accepts the session but loses the reply.
	dropResponse bool
}

func (g *fakeGateway) CreateSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return payment.Session{}, g.fail
	}
	for _, c := range g.created {
		if c.IdempotencyKey == req.IdempotencyKey {
			return payment.Session{}, payment.ErrSessionExists
		}
	}
	g.created = append(g.created, req)
	if g.dropResponse {
		return payment.Session{}, errors.New("read: connection reset by peer")
	}
	return payment.Session{Reference: req.IdempotencyKey, RedirectURL: "https://pay.test/" + req.IdempotencyKey}, nil
}

func (g *fakeGateway) Status(_ context.Context, ref string) (payment.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.statuses[ref]; ok {
		return o, nil
	}
	return payment.OutcomePending, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

type env struct {
	store      *memstore.Store
	ledger     *audit.Ledger
	machine    *workflow.Machine
	allocator  *booking.Allocator
	gateway    *fakeGateway
	reconciler *payment.Reconciler
	system     uuid.UUID
}

func newEnv() *env {
	store := memstore.New()
	log := zap.NewNop()
	ledger := audit.NewLedger(store, log)
	machine := workflow.NewMachine(store, ledger, events.Nop{}, log, workflow.Definitions(workflow.Options{RequirePaymentForConfirm: true})...)
	gw := &fakeGateway{statuses: map[string]payment.Outcome{}}
	return &env{
		store:      store,
		ledger:     ledger,
		machine:    machine,
		allocator:  booking.NewAllocator(store, ledger, redisclient.NopLocker{}, events.Nop{}, log, booking.Options{}),
		gateway:    gw,
		reconciler: payment.NewReconciler(store, gw, machine, ledger, redisclient.NopLocker{}, events.Nop{}, log),
		system:     uuid.New(),
	}
}

func (e *env) systemCtx() context.Context {
	return audit.WithActor(context.Background(), e.system)
}

func (e *env) reserve(t *testing.T) *booking.Booking {
	t.Helper()
	b, err := e.allocator.Reserve(context.Background(), booking.ReserveRequest{
		DoctorID:    uuid.New(),
		RequesterID: uuid.New(),
		ScheduledAt: time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute),
	})
	require.NoError(t, err)
	return b
}

func (e *env) intent(t *testing.T, b *booking.Booking) payment.Intent {
	t.Helper()
	in, err := e.reconciler.CreateIntent(context.Background(), b.ID, 150000, "IDR")
	require.NoError(t, err)
	return in
}

func (e *env) booking(t *testing.T, id uuid.UUID) *booking.Booking {
	t.Helper()
	b, err := e.store.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (e *env) history(t *testing.T, id uuid.UUID) []audit.Record {
	t.Helper()
	records, err := e.ledger.ListFor(context.Background(), audit.KindBooking, id)
	require.NoError(t, err)
	return records
}

func TestCreateIntent(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	b := e.reserve(t)

	in, err := e.reconciler.CreateIntent(ctx, b.ID, 150000, " idr ")
	require.NoError(t, err)
	assert.Equal(t, payment.IdempotencyKey(b.ID), in.SessionReference)
	assert.Equal(t, "IDR", in.Currency)
	assert.False(t, in.Reused)

	stored := e.booking(t, b.ID)
	assert.Equal(t, in.SessionReference, stored.PaymentSessionRef)
	assert.Equal(t, int64(150000), stored.Amount)
	assert.Equal(t, workflow.PaymentUnpaid, stored.PaymentStatus)

	records := e.history(t, b.ID)
	require.Len(t, records, 2)
	assert.Equal(t, audit.ActionIntentCreated, records[1].Action)
	assert.Equal(t, b.RequesterID, records[1].PerformedBy)

	t.Run("repeat returns the same session", func(t *testing.T) {
		again, err := e.reconciler.CreateIntent(ctx, b.ID, 150000, "IDR")
		require.NoError(t, err)
		assert.True(t, again.Reused)
		assert.Equal(t, in.SessionReference, again.SessionReference)
		assert.Equal(t, in.RedirectURL, again.RedirectURL)
		assert.Equal(t, 1, e.gateway.calls())
		assert.Len(t, e.history(t, b.ID), 2)
	})

	t.Run("different amount is a mismatch", func(t *testing.T) {
		_, err := e.reconciler.CreateIntent(ctx, b.ID, 99, "IDR")
		assert.ErrorIs(t, err, payment.ErrPaymentMismatch)
	})
}

func TestCreateIntentValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	b := e.reserve(t)

	_, err := e.reconciler.CreateIntent(ctx, uuid.Nil, 100, "IDR")
	assert.ErrorIs(t, err, workflow.ErrValidation)
	_, err = e.reconciler.CreateIntent(ctx, b.ID, 0, "IDR")
	assert.ErrorIs(t, err, workflow.ErrValidation)
	_, err = e.reconciler.CreateIntent(ctx, b.ID, 100, "RUPIAH")
	assert.ErrorIs(t, err, workflow.ErrValidation)
	_, err = e.reconciler.CreateIntent(ctx, uuid.New(), 100, "IDR")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestCreateIntentRefusals(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	t.Run("cancelled booking", func(t *testing.T) {
		b := e.reserve(t)
		_, err := e.machine.Transition(ctx, audit.KindBooking, b.ID, workflow.BookingCancelled, b.RequesterID, "")
		require.NoError(t, err)

		_, err = e.reconciler.CreateIntent(ctx, b.ID, 100, "IDR")
		assert.ErrorIs(t, err, payment.ErrBookingClosed)
	})

	t.Run("gateway failure leaves booking untouched", func(t *testing.T) {
		b := e.reserve(t)
		e.gateway.fail = errors.New("connection reset")
		defer func() { e.gateway.fail = nil }()

		_, err := e.reconciler.CreateIntent(ctx, b.ID, 100, "IDR")
		assert.ErrorIs(t, err, payment.ErrGateway)
		assert.Empty(t, e.booking(t, b.ID).PaymentSessionRef)
		assert.Len(t, e.history(t, b.ID), 1)
	})
}

func TestCreateIntentAfterLostGatewayReply(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	b := e.reserve(t)

	e.gateway.dropResponse = true
	_, err := e.reconciler.CreateIntent(ctx, b.ID, 90000, "IDR")
	require.ErrorIs(t, err, payment.ErrGateway)
	assert.Empty(t, e.booking(t, b.ID).PaymentSessionRef)

	e.gateway.dropResponse = false
	in, err := e.reconciler.CreateIntent(ctx, b.ID, 90000, "IDR")
	require.NoError(t, err)
	assert.True(t, in.Reused)
	assert.Equal(t, payment.IdempotencyKey(b.ID), in.SessionReference)
	assert.Equal(t, 1, e.gateway.calls())
	assert.Equal(t, in.SessionReference, e.booking(t, b.ID).PaymentSessionRef)

	again, err := e.reconciler.CreateIntent(ctx, b.ID, 90000, "IDR")
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, 1, e.gateway.calls())

	res, err := e.reconciler.ApplyCallback(e.systemCtx(), in.SessionReference, payment.OutcomePaid)
	require.NoError(t, err)
	assert.Equal(t, payment.ResultApplied, res)
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestCreateIntentLockBusy(t *testing.T) {
	e := newEnv()
	b := e.reserve(t)
	rec := payment.NewReconciler(e.store, e.gateway, e.machine, e.ledger, busyLocker{}, events.Nop{}, zap.NewNop())

	_, err := rec.CreateIntent(context.Background(), b.ID, 100, "IDR")
	assert.ErrorIs(t, err, payment.ErrIntentInProgress)
	assert.NotErrorIs(t, err, payment.ErrPaymentMismatch)
	assert.Zero(t, e.gateway.calls())
}

func TestPaidCallbackForCancelledBookingIsLogged(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	core, logs := observer.New(zapcore.WarnLevel)
	rec := payment.NewReconciler(e.store, e.gateway, e.machine, e.ledger, redisclient.NopLocker{}, events.Nop{}, zap.New(core))

	b := e.reserve(t)
	in, err := rec.CreateIntent(ctx, b.ID, 100, "IDR")
	require.NoError(t, err)
	_, err = e.machine.Transition(ctx, audit.KindBooking, b.ID, workflow.BookingCancelled, b.RequesterID, "")
	require.NoError(t, err)

	res, err := rec.ApplyCallback(e.systemCtx(), in.SessionReference, payment.OutcomePaid)
	require.NoError(t, err)
	assert.Equal(t, payment.ResultApplied, res)
	assert.Equal(t, workflow.PaymentPaid, e.booking(t, b.ID).PaymentStatus)

	warned := logs.FilterMessage("payment received for inactive booking").All()
	require.Len(t, warned, 1)
	assert.Equal(t, b.ID.String(), warned[0].ContextMap()["booking_id"])
}

func TestApplyCallbackPaidThenRefunded(t *testing.T) {
	e := newEnv()
	ctx := e.systemCtx()
	b := e.reserve(t)
	in := e.intent(t, b)

	res, err := e.reconciler.ApplyCallback(ctx, in.SessionReference, payment.OutcomePaid)
	require.NoError(t, err)
	assert.Equal(t, payment.ResultApplied, res)
	assert.Equal(t, workflow.PaymentPaid, e.booking(t, b.ID).PaymentStatus)

	res, err = e.reconciler.ApplyCallback(ctx, in.SessionReference, payment.OutcomePaid)
	require.NoError(t, err)
	assert.Equal(t, payment.ResultAlreadyApplied, res)

	res, err = e.reconciler.ApplyCallback(ctx, in.SessionReference, payment.OutcomeRefunded)
	require.NoError(t, err)
	assert.Equal(t, payment.ResultApplied, res)
	assert.Equal(t, workflow.PaymentRefunded, e.booking(t, b.ID).PaymentStatus)

	var settlements []audit.Record
	for _, r := range e.history(t, b.ID) {
		if r.Action == audit.ActionPaymentPaid || r.Action == audit.ActionPaymentRefunded {
			settlements = append(settlements, r)
		}
	}
	require.Len(t, settlements, 2)
	assert.Equal(t, "unpaid", settlements[0].OldStatus)
	assert.Equal(t, "paid", settlements[0].NewStatus)
	assert.Equal(t, "refunded", settlements[1].NewStatus)
	assert.Equal(t, e.system, settlements[1].PerformedBy)
}

func TestPaidBookingCanBeConfirmed(t *testing.T) {
	e := newEnv()
	b := e.reserve(t)
	in := e.intent(t, b)

	_, err := e.machine.Transition(context.Background(), audit.KindBooking, b.ID, workflow.BookingConfirmed, uuid.New(), "")
	require.ErrorIs(t, err, workflow.ErrPaymentRequired)

	_, err = e.reconciler.ApplyCallback(e.systemCtx(), in.SessionReference, payment.OutcomePaid)
	require.NoError(t, err)

	_, err = e.machine.Transition(context.Background(), audit.KindBooking, b.ID, workflow.BookingConfirmed, uuid.New(), "")
	require.NoError(t, err)
}

func TestApplyCallbackRefundBeforePaymentRollsBack(t *testing.T) {
	e := newEnv()
	ctx := e.systemCtx()
	b := e.reserve(t)
	in := e.intent(t, b)
	before := len(e.history(t, b.ID))

	_, err := e.reconciler.ApplyCallback(ctx, in.SessionReference, payment.OutcomeRefunded)
	require.ErrorIs(t, err, payment.ErrPaymentMismatch)
	assert.Equal(t, workflow.PaymentUnpaid, e.booking(t, b.ID).PaymentStatus)
	assert.Len(t, e.history(t, b.ID), before)

	// the rolled back attempt left no settlement marker behind
	_, err = e.reconciler.ApplyCallback(ctx, in.SessionReference, payment.OutcomePaid)
	require.NoError(t, err)
	res, err := e.reconciler.ApplyCallback(ctx, in.SessionReference, payment.OutcomeRefunded)
	require.NoError(t, err)
	assert.Equal(t, payment.ResultApplied, res)
}

func TestApplyCallbackFailedCancelsPendingBooking(t *testing.T) {
	e := newEnv()
	ctx := e.systemCtx()
	b := e.reserve(t)
	in := e.intent(t, b)

	res, err := e.reconciler.ApplyCallback(ctx, in.SessionReference, payment.OutcomeFailed)
	require.NoError(t, err)
	assert.Equal(t, payment.ResultApplied, res)

	got := e.booking(t, b.ID)
	assert.Equal(t, workflow.BookingCancelled, got.Status)
	assert.Equal(t, workflow.PaymentUnpaid, got.PaymentStatus)

	records := e.history(t, b.ID)
	last := records[len(records)-1]
	assert.Equal(t, audit.ActionPaymentFailed, last.Action)
	assert.Equal(t, "PENDING", last.OldStatus)
	assert.Equal(t, "CANCELLED", last.NewStatus)
}

func TestApplyCallbackUnknownSessionAndBadInput(t *testing.T) {
	e := newEnv()

	res, err := e.reconciler.ApplyCallback(e.systemCtx(), "BKG-nope", payment.OutcomePaid)
	require.NoError(t, err)
	assert.Equal(t, payment.ResultUnknown, res)

	_, err = e.reconciler.ApplyCallback(e.systemCtx(), "BKG-nope", payment.Outcome("chargeback"))
	assert.ErrorIs(t, err, payment.ErrUnknownOutcome)

	_, err = e.reconciler.ApplyCallback(context.Background(), "BKG-nope", payment.OutcomePaid)
	assert.ErrorIs(t, err, audit.ErrMissingActor)
}

func TestApplyCallbackConcurrentReplays(t *testing.T) {
	e := newEnv()
	ctx := e.systemCtx()
	b := e.reserve(t)
	in := e.intent(t, b)

	const n = 20
	results := make(chan payment.ApplyResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.reconciler.ApplyCallback(ctx, in.SessionReference, payment.OutcomePaid)
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for res := range results {
		if res == payment.ResultApplied {
			applied++
		} else {
			assert.Equal(t, payment.ResultAlreadyApplied, res)
		}
	}
	assert.Equal(t, 1, applied)
}

func TestReconcile(t *testing.T) {
	e := newEnv()
	ctx := e.systemCtx()

	settled := e.reserve(t)
	waiting := e.reserve(t)
	settledIntent := e.intent(t, settled)
	e.intent(t, waiting)

	e.gateway.statuses[settledIntent.SessionReference] = payment.OutcomePaid

	n, err := e.reconciler.Reconcile(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, workflow.PaymentPaid, e.booking(t, settled.ID).PaymentStatus)
	assert.Equal(t, workflow.PaymentUnpaid, e.booking(t, waiting.ID).PaymentStatus)

	n, err = e.reconciler.Reconcile(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}
