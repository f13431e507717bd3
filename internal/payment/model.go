package payment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is what the gateway reports for a session.
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeRefunded Outcome = "refunded"
	OutcomeFailed   Outcome = "failed"

	// OutcomePending is only returned by status checks; callbacks never carry it.
	OutcomePending Outcome = "pending"
)

func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomePaid, OutcomeRefunded, OutcomeFailed:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
}

// ApplyResult is the acknowledgement of a gateway callback.
type ApplyResult string

const (
	ResultApplied        ApplyResult = "ok"
	ResultUnknown        ApplyResult = "unknown"
	ResultAlreadyApplied ApplyResult = "already_applied"
)

var (
	ErrPaymentMismatch = errors.New("payment state mismatch")
	ErrUnknownSession  = errors.New("unknown payment session")
	ErrUnknownOutcome  = errors.New("unknown payment outcome")
	ErrBookingClosed   = errors.New("booking is no longer open for payment")
	ErrGateway         = errors.New("payment gateway error")

	// ErrSessionExists is returned by a Gateway when it already holds a session for
	// the idempotency key.
	ErrSessionExists = errors.New("payment session already exists at the gateway")

	// ErrIntentInProgress means another request is creating the booking's intent.
	ErrIntentInProgress = errors.New("payment intent creation in progress")
)

// SessionRecord is the local copy of a gateway session attached to a booking.
type SessionRecord struct {
	Reference   string
	BookingID   uuid.UUID
	Amount      int64
	Currency    string
	RedirectURL string
	CreatedAt   time.Time
}

type Intent struct {
	BookingID        uuid.UUID
	SessionReference string
	RedirectURL      string
	Amount           int64
	Currency         string

	// Reused is set when the booking already had a session.
	Reused bool
}

// IdempotencyKey is the gateway order id for a booking. It is derived from the
// booking id so a retried CreateIntent can never open a second session.
func IdempotencyKey(bookingID uuid.UUID) string {
	return "BKG-" + bookingID.String()
}
