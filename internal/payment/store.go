package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

type Tx interface {
	workflow.Tx

	// AttachSession stores the reference on an unpaid booking. It reports false when
	// the same reference was already attached, and ErrPaymentMismatch when the booking
	// is paid or holds a different reference.
	AttachSession(ctx context.Context, s SessionRecord) (bool, error)

	// LockBookingBySession locks the booking owning ref, or returns ErrUnknownSession.
	LockBookingBySession(ctx context.Context, ref string) (*booking.Booking, error)

	// MarkSettled records that outcome was applied for ref. It reports false when the
	// marker already existed.
	MarkSettled(ctx context.Context, ref string, outcome Outcome, at time.Time) (bool, error)

	SetPaymentStatus(ctx context.Context, bookingID uuid.UUID, to workflow.PaymentStatus, at time.Time) error
}

type Store interface {
	InPaymentTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	GetSession(ctx context.Context, ref string) (*SessionRecord, error)

	// UnsettledSessions lists sessions created before cutoff whose booking is still unpaid.
	UnsettledSessions(ctx context.Context, cutoff time.Time) ([]SessionRecord, error)
}
