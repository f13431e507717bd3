package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

func testBooking(doctor uuid.UUID, at time.Time) *booking.Booking {
	return &booking.Booking{
		ID:            uuid.New(),
		RequesterID:   uuid.New(),
		DoctorID:      doctor,
		ScheduledAt:   at,
		Status:        workflow.BookingPending,
		PaymentStatus: workflow.PaymentUnpaid,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestFailedTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := testBooking(uuid.New(), time.Now().Add(time.Hour))
	boom := errors.New("boom")

	err := s.InBookingTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		require.NoError(t, tx.InsertBooking(ctx, b))
		_, err := tx.AppendHistory(ctx, audit.Record{Kind: audit.KindBooking, EntityID: b.ID, Action: audit.ActionCreated})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	records, err := s.ListHistory(ctx, audit.KindBooking, b.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	rec, err := s.AppendHistory(ctx, audit.Record{Kind: audit.KindBooking, EntityID: b.ID, Action: audit.ActionCreated})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID, "ids are not consumed by rolled back transactions")
}

func TestInsertBookingSlotUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	doctor := uuid.New()
	at := time.Now().UTC().Add(time.Hour).Truncate(time.Second)

	first := testBooking(doctor, at)
	require.NoError(t, s.InBookingTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		return tx.InsertBooking(ctx, first)
	}))

	err := s.InBookingTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		return tx.InsertBooking(ctx, testBooking(doctor, at))
	})
	assert.ErrorIs(t, err, booking.ErrSlotConflict)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
		return tx.UpdateStatus(ctx, audit.KindBooking, first.ID, workflow.BookingDeclined, time.Now())
	}))

	err = s.InBookingTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		return tx.InsertBooking(ctx, testBooking(doctor, at))
	})
	assert.NoError(t, err)
}

func TestAttachSession(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := testBooking(uuid.New(), time.Now().Add(time.Hour))
	require.NoError(t, s.InBookingTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		return tx.InsertBooking(ctx, b)
	}))

	attach := func(ref string) (bool, error) {
		var ok bool
		err := s.InPaymentTx(ctx, func(ctx context.Context, tx payment.Tx) error {
			var err error
			ok, err = tx.AttachSession(ctx, payment.SessionRecord{Reference: ref, BookingID: b.ID, Amount: 10, Currency: "IDR"})
			return err
		})
		return ok, err
	}

	ok, err := attach("ref-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = attach("ref-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = attach("ref-2")
	assert.ErrorIs(t, err, payment.ErrPaymentMismatch)

	_, err = s.GetSession(ctx, "ref-2")
	assert.ErrorIs(t, err, payment.ErrUnknownSession)
}

func TestMarkSettledOncePerOutcome(t *testing.T) {
	ctx := context.Background()
	s := New()

	mark := func(o payment.Outcome) bool {
		var fresh bool
		require.NoError(t, s.InPaymentTx(ctx, func(ctx context.Context, tx payment.Tx) error {
			var err error
			fresh, err = tx.MarkSettled(ctx, "ref", o, time.Now())
			return err
		}))
		return fresh
	}

	assert.True(t, mark(payment.OutcomePaid))
	assert.False(t, mark(payment.OutcomePaid))
	assert.True(t, mark(payment.OutcomeRefunded))
}

func TestRejectedApplicationNeedsStoredReason(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := &care.DoctorApplication{
		ID:            uuid.New(),
		ApplicantID:   uuid.New(),
		LicenseNumber: "L-7",
		Field:         "oncology",
		Status:        workflow.ApplicationPending,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.InCareTx(ctx, func(ctx context.Context, tx care.Tx) error {
		return tx.InsertApplication(ctx, a)
	}))

	reject := func(ctx context.Context, tx workflow.Tx) error {
		return tx.UpdateStatus(ctx, audit.KindDoctorApplication, a.ID, workflow.ApplicationRejected, time.Now())
	}
	assert.ErrorIs(t, s.InTx(ctx, reject), ErrCheckViolation)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx workflow.Tx) error {
		if err := tx.RecordReview(ctx, a.ID, uuid.New(), "expired license", time.Now()); err != nil {
			return err
		}
		return reject(ctx, tx)
	}))

	stored, err := s.GetApplication(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.ApplicationRejected, stored.Status)
	assert.Equal(t, "expired license", stored.RejectionReason)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().InTx(ctx, func(context.Context, workflow.Tx) error {
		t.Fatal("transaction body ran on a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
