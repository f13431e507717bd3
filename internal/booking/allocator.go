package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/events"
	redisclient "github.com/loramulaku/LABcourse-sub002/internal/redis"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

const maxReasonLength = 2000

type ReserveRequest struct {
	DoctorID    uuid.UUID
	RequesterID uuid.UUID
	ScheduledAt time.Time
	Reason      string
}

type Options struct {
	AllowPastBookings bool
}

// Allocator reserves (doctor, time) slots.
type Allocator struct {
	store     Store
	ledger    *audit.Ledger
	locker    redisclient.Locker
	publisher events.Publisher
	log       *zap.Logger
	opts      Options
	now       func() time.Time
}

func NewAllocator(store Store, ledger *audit.Ledger, locker redisclient.Locker, publisher events.Publisher, log *zap.Logger, opts Options) *Allocator {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	return &Allocator{
		store:     store,
		ledger:    ledger,
		locker:    locker,
		publisher: publisher,
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

// Reserve creates a PENDING, unpaid booking for the slot together with its
// "created" history record. Concurrent callers for one slot get exactly one
// success; the rest get ErrSlotConflict and leave nothing behind.
func (a *Allocator) Reserve(ctx context.Context, req ReserveRequest) (*Booking, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	at := NormalizeSlotTime(req.ScheduledAt)
	var created *Booking

	err := a.locker.WithLock(ctx, redisclient.SlotKey(req.DoctorID, at), func(lockCtx context.Context) error {
		return a.store.InBookingTx(lockCtx, func(ctx context.Context, tx Tx) error {
			now := a.now().UTC()
			b := &Booking{
				ID:            uuid.New(),
				RequesterID:   req.RequesterID,
				DoctorID:      req.DoctorID,
				ScheduledAt:   at,
				Reason:        strings.TrimSpace(req.Reason),
				Status:        workflow.BookingPending,
				PaymentStatus: workflow.PaymentUnpaid,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.InsertBooking(ctx, b); err != nil {
				if errors.Is(err, ErrSlotConflict) {
					return err
				}
				return fmt.Errorf("insert booking: %w", err)
			}

			if _, err := a.ledger.Append(ctx, tx, audit.Record{
				Kind:        audit.KindBooking,
				EntityID:    b.ID,
				Action:      audit.ActionCreated,
				NewStatus:   string(b.Status),
				PerformedBy: req.RequesterID,
				Note:        b.Reason,
				CreatedAt:   now,
			}); err != nil {
				return err
			}

			created = b
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: slot is being booked", ErrSlotConflict)
		}
		if errors.Is(err, ErrSlotConflict) {
			a.log.Info("slot conflict",
				zap.String("doctor_id", req.DoctorID.String()),
				zap.Time("scheduled_at", at),
			)
			return nil, err
		}
		return nil, err
	}

	a.log.Info("booking reserved",
		zap.String("booking_id", created.ID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.Time("scheduled_at", created.ScheduledAt),
	)
	events.Emit(ctx, a.publisher, a.log, events.Event{
		Type:       events.TypeBookingCreated,
		Kind:       string(audit.KindBooking),
		EntityID:   created.ID,
		To:         string(created.Status),
		ActorID:    created.RequesterID,
		OccurredAt: created.CreatedAt,
	})

	return created, nil
}

func (a *Allocator) validate(req ReserveRequest) error {
	if req.DoctorID == uuid.Nil {
		return workflow.NewValidationError("resource_id", "is required")
	}
	if req.RequesterID == uuid.Nil {
		return workflow.NewValidationError("requester_id", "is required")
	}
	if req.ScheduledAt.IsZero() {
		return workflow.NewValidationError("time", "is required")
	}
	if !a.opts.AllowPastBookings && !req.ScheduledAt.After(a.now()) {
		return workflow.NewValidationError("time", "must be in the future")
	}
	if len(req.Reason) > maxReasonLength {
		return workflow.NewValidationError("reason", fmt.Sprintf("must be at most %d characters", maxReasonLength))
	}
	return nil
}

func (a *Allocator) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := a.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// ListForDoctor returns the doctor's bookings scheduled in [from, to).
func (a *Allocator) ListForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Booking, error) {
	if !to.After(from) {
		return nil, workflow.NewValidationError("to", "must be after from")
	}
	bookings, err := a.store.ListDoctorBookings(ctx, doctorID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list doctor bookings: %w", err)
	}
	return bookings, nil
}
