package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
)

// Tx is the transactional view the machine mutates. Implementations must lock the
// entity row in LockStatus so concurrent transitions on one entity serialize.
type Tx interface {
	audit.Appender

	LockStatus(ctx context.Context, kind audit.Kind, id uuid.UUID) (Status, error)
	UpdateStatus(ctx context.Context, kind audit.Kind, id uuid.UUID, to Status, at time.Time) error

	// Booking confirmation guard
	BookingPaymentStatus(ctx context.Context, bookingID uuid.UUID) (PaymentStatus, error)

	// Doctor application effects
	RecordReview(ctx context.Context, applicationID, reviewerID uuid.UUID, reason string, at time.Time) error
	PromoteApplicant(ctx context.Context, applicationID uuid.UUID) (uuid.UUID, error)
}

type Store interface {
	// InTx runs fn in one database transaction, committing only if fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// OverdueTherapyPlans lists non-terminal plans whose follow-up date is before now
	// and that were not already marked overdue for that date.
	OverdueTherapyPlans(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}
