package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind names the aggregate a history record belongs to.
type Kind string

const (
	KindBooking           Kind = "booking"
	KindAnalysisOrder     Kind = "analysis_order"
	KindTherapyPlan       Kind = "therapy_plan"
	KindDoctorApplication Kind = "doctor_application"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBooking, KindAnalysisOrder, KindTherapyPlan, KindDoctorApplication:
		return true
	}
	return false
}

type Action string

const (
	ActionCreated         Action = "created"
	ActionStatusChanged   Action = "status_changed"
	ActionConfirmed       Action = "confirmed"
	ActionDeclined        Action = "declined"
	ActionCancelled       Action = "cancelled"
	ActionResultUploaded  Action = "result_uploaded"
	ActionApproved        Action = "approved"
	ActionRejected        Action = "rejected"
	ActionMarkedOverdue   Action = "marked_overdue"
	ActionIntentCreated   Action = "payment_intent_created"
	ActionPaymentPaid     Action = "payment_paid"
	ActionPaymentRefunded Action = "payment_refunded"
	ActionPaymentFailed   Action = "payment_failed"
)

// Record is one immutable history entry. OldStatus is empty for creations.
type Record struct {
	ID          int64
	Kind        Kind
	EntityID    uuid.UUID
	Action      Action
	OldStatus   string
	NewStatus   string
	PerformedBy uuid.UUID
	Note        string
	CreatedAt   time.Time
}

var (
	ErrInvalidRecord = errors.New("invalid history record")
	ErrMissingActor  = errors.New("no actor in context")
)

// Appender is satisfied by an open transaction as well as by the store itself.
type Appender interface {
	AppendHistory(ctx context.Context, rec Record) (Record, error)
}

type Reader interface {
	ListHistory(ctx context.Context, kind Kind, entityID uuid.UUID) ([]Record, error)
}

type actorKey struct{}

// WithActor attaches the acting user to ctx. Background jobs and gateway callbacks
// attach the configured system actor here instead of using a literal id.
func WithActor(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorFrom(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(actorKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrMissingActor
	}
	return id, nil
}
