package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

// Booking is a doctor appointment. It is never deleted; cancellation is a status.
type Booking struct {
	ID                uuid.UUID
	RequesterID       uuid.UUID
	DoctorID          uuid.UUID
	ScheduledAt       time.Time
	Reason            string
	Status            workflow.Status
	PaymentStatus     workflow.PaymentStatus
	Amount            int64 // minor units
	Currency          string
	PaymentSessionRef string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Active reports whether the booking still occupies its slot.
func (b *Booking) Active() bool {
	return b.Status != workflow.BookingCancelled && b.Status != workflow.BookingDeclined
}

// NormalizeSlotTime maps a requested time onto the slot key: UTC, whole seconds.
func NormalizeSlotTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
