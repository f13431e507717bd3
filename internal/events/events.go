package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TypeBookingCreated    = "booking.created"
	TypeStatusChanged     = "status_changed"
	TypeIntentCreated     = "payment.intent_created"
	TypePaymentSettled    = "payment.settled"
	TypeEntityCreated     = "entity.created"
	TypeApplicantPromoted = "doctor_application.applicant_promoted"
)

// Event is what the notification collaborator consumes after a commit.
type Event struct {
	Type       string    `json:"type"`
	Kind       string    `json:"kind"`
	EntityID   uuid.UUID `json:"entity_id"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	ActorID    uuid.UUID `json:"actor_id"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event. Used when RABBITMQ_URL is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Emit publishes ev after the owning transaction committed. The state change already
// happened, so a publish failure is logged and not returned.
func Emit(ctx context.Context, p Publisher, log *zap.Logger, ev Event) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn("event publish failed",
			zap.String("type", ev.Type),
			zap.String("kind", ev.Kind),
			zap.String("entity_id", ev.EntityID.String()),
			zap.Error(err),
		)
	}
}
