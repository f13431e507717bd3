package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type SessionRequest struct {
	IdempotencyKey string
	BookingID      uuid.UUID
	Amount         int64
	Currency       string
	Description    string
}

type Session struct {
	Reference   string
	RedirectURL string
	Token       string
}

// Gateway is the external payment provider.
type Gateway interface {
	// CreateSession returns ErrSessionExists when the provider already accepted a
	// session for req.IdempotencyKey.
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)

	// Status asks the provider for the current outcome of a session. Sessions the
	// provider has not settled report OutcomePending.
	Status(ctx context.Context, reference string) (Outcome, error)
}

// DisabledGateway is used when no provider is configured. Intents fail and status
// checks report every session as pending.
type DisabledGateway struct{}

func (DisabledGateway) CreateSession(context.Context, SessionRequest) (Session, error) {
	return Session{}, errors.New("no payment provider configured")
}

func (DisabledGateway) Status(context.Context, string) (Outcome, error) {
	return OutcomePending, nil
}
