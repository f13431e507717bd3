package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
)

var (
	ErrSlotConflict = errors.New("slot already booked")
)

// Tx is the transactional view used while reserving a slot.
type Tx interface {
	audit.Appender

	// InsertBooking must return ErrSlotConflict when another active booking holds
	// the same (doctor, time) pair. The check is the storage uniqueness constraint.
	InsertBooking(ctx context.Context, b *Booking) error
}

type Store interface {
	InBookingTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListDoctorBookings(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Booking, error)

	// StaleUnpaidBookings lists PENDING unpaid bookings created before cutoff.
	StaleUnpaidBookings(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}
