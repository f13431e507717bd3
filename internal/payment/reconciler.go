package payment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/events"
	redisclient "github.com/loramulaku/LABcourse-sub002/internal/redis"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Reconciler keeps booking payment state in line with the gateway.
type Reconciler struct {
	store     Store
	gateway   Gateway
	machine   *workflow.Machine
	ledger    *audit.Ledger
	locker    redisclient.Locker
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewReconciler(store Store, gateway Gateway, machine *workflow.Machine, ledger *audit.Ledger, locker redisclient.Locker, publisher events.Publisher, log *zap.Logger) *Reconciler {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	return &Reconciler{
		store:     store,
		gateway:   gateway,
		machine:   machine,
		ledger:    ledger,
		locker:    locker,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// CreateIntent opens a gateway session for an unpaid booking and stores its
// reference. The gateway call happens before any transaction is opened; a repeated
// call returns the session already attached to the booking. A session the gateway
// accepted but that was never attached is attached on the next call.
func (r *Reconciler) CreateIntent(ctx context.Context, bookingID uuid.UUID, amount int64, currency string) (Intent, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if bookingID == uuid.Nil {
		return Intent{}, workflow.NewValidationError("booking_id", "is required")
	}
	if amount <= 0 {
		return Intent{}, workflow.NewValidationError("amount", "must be positive")
	}
	if !currencyPattern.MatchString(currency) {
		return Intent{}, workflow.NewValidationError("currency", "must be a three letter ISO 4217 code")
	}

	var intent Intent
	err := r.locker.WithLock(ctx, redisclient.IntentKey(bookingID), func(ctx context.Context) error {
		var err error
		intent, err = r.createIntent(ctx, bookingID, amount, currency)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return Intent{}, ErrIntentInProgress
	}
	return intent, err
}

func (r *Reconciler) createIntent(ctx context.Context, bookingID uuid.UUID, amount int64, currency string) (Intent, error) {
	b, err := r.store.GetBooking(ctx, bookingID)
	if err != nil {
		return Intent{}, err
	}

	if b.PaymentSessionRef != "" {
		if b.Amount != amount || b.Currency != currency {
			return Intent{}, fmt.Errorf("%w: booking already has a session for %d %s", ErrPaymentMismatch, b.Amount, b.Currency)
		}
		sess, err := r.store.GetSession(ctx, b.PaymentSessionRef)
		if err != nil {
			return Intent{}, fmt.Errorf("load session: %w", err)
		}
		return Intent{
			BookingID:        b.ID,
			SessionReference: sess.Reference,
			RedirectURL:      sess.RedirectURL,
			Amount:           sess.Amount,
			Currency:         sess.Currency,
			Reused:           true,
		}, nil
	}
	if b.PaymentStatus != workflow.PaymentUnpaid {
		return Intent{}, fmt.Errorf("%w: booking is %s", ErrPaymentMismatch, b.PaymentStatus)
	}
	if !b.Active() {
		return Intent{}, ErrBookingClosed
	}

	sess, err := r.gateway.CreateSession(ctx, SessionRequest{
		IdempotencyKey: IdempotencyKey(b.ID),
		BookingID:      b.ID,
		Amount:         amount,
		Currency:       currency,
		Description:    "Appointment " + b.ScheduledAt.Format(time.RFC3339),
	})
	recovered := false
	switch {
	case errors.Is(err, ErrSessionExists):
		// An earlier attempt reached the gateway but was never attached here.
		r.log.Warn("gateway already holds a session for booking, attaching it",
			zap.String("booking_id", b.ID.String()),
			zap.String("session_reference", IdempotencyKey(b.ID)),
		)
		sess, recovered = Session{Reference: IdempotencyKey(b.ID)}, true
	case err != nil:
		r.log.Error("gateway session creation failed", zap.String("booking_id", b.ID.String()), zap.Error(err))
		return Intent{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	now := r.now().UTC()
	record := SessionRecord{
		Reference:   sess.Reference,
		BookingID:   b.ID,
		Amount:      amount,
		Currency:    currency,
		RedirectURL: sess.RedirectURL,
		CreatedAt:   now,
	}

	attached := false
	err = r.store.InPaymentTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		attached, err = tx.AttachSession(ctx, record)
		if err != nil || !attached {
			return err
		}
		_, err = r.ledger.Append(ctx, tx, audit.Record{
			Kind:        audit.KindBooking,
			EntityID:    b.ID,
			Action:      audit.ActionIntentCreated,
			PerformedBy: b.RequesterID,
			Note:        fmt.Sprintf("%s %d %s", sess.Reference, amount, currency),
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		return Intent{}, fmt.Errorf("attach session: %w", err)
	}

	if attached {
		r.log.Info("payment intent created",
			zap.String("booking_id", b.ID.String()),
			zap.String("session_reference", sess.Reference),
		)
		events.Emit(ctx, r.publisher, r.log, events.Event{
			Type:       events.TypeIntentCreated,
			Kind:       string(audit.KindBooking),
			EntityID:   b.ID,
			ActorID:    b.RequesterID,
			Note:       sess.Reference,
			OccurredAt: now,
		})
	}

	return Intent{
		BookingID:        b.ID,
		SessionReference: sess.Reference,
		RedirectURL:      sess.RedirectURL,
		Amount:           amount,
		Currency:         currency,
		Reused:           recovered || !attached,
	}, nil
}

// ApplyCallback applies one gateway notification. Replays of an outcome already
// applied for the session return ResultAlreadyApplied; unknown sessions return
// ResultUnknown without an error. The acting identity is taken from ctx.
func (r *Reconciler) ApplyCallback(ctx context.Context, ref string, outcome Outcome) (ApplyResult, error) {
	actor, err := audit.ActorFrom(ctx)
	if err != nil {
		return "", err
	}
	if _, err := ParseOutcome(string(outcome)); err != nil {
		return "", err
	}
	ref = strings.TrimSpace(ref)

	var (
		result    ApplyResult
		bookingID uuid.UUID
		post      []workflow.Result
	)
	err = r.store.InPaymentTx(ctx, func(ctx context.Context, tx Tx) error {
		post = nil

		b, err := tx.LockBookingBySession(ctx, ref)
		if err != nil {
			if errors.Is(err, ErrUnknownSession) {
				result = ResultUnknown
				return nil
			}
			return fmt.Errorf("lock booking for session: %w", err)
		}
		bookingID = b.ID

		now := r.now().UTC()
		fresh, err := tx.MarkSettled(ctx, ref, outcome, now)
		if err != nil {
			return fmt.Errorf("mark session settled: %w", err)
		}
		if !fresh {
			result = ResultAlreadyApplied
			return nil
		}

		switch outcome {
		case OutcomePaid:
			err = r.settle(ctx, tx, b.ID, b.PaymentStatus, workflow.PaymentUnpaid, workflow.PaymentPaid, audit.ActionPaymentPaid, actor, ref, now)
			if err == nil && !b.Active() {
				r.log.Warn("payment received for inactive booking",
					zap.String("booking_id", b.ID.String()),
					zap.String("status", string(b.Status)),
					zap.String("session_reference", ref),
				)
			}
		case OutcomeRefunded:
			err = r.settle(ctx, tx, b.ID, b.PaymentStatus, workflow.PaymentPaid, workflow.PaymentRefunded, audit.ActionPaymentRefunded, actor, ref, now)
		case OutcomeFailed:
			if b.PaymentStatus != workflow.PaymentUnpaid {
				return fmt.Errorf("%w: failure reported for %s booking", ErrPaymentMismatch, b.PaymentStatus)
			}
			if b.Status == workflow.BookingPending {
				res, err := r.machine.Apply(ctx, tx, workflow.Request{
					Kind:   audit.KindBooking,
					ID:     b.ID,
					Target: workflow.BookingCancelled,
					Actor:  actor,
					Note:   "payment failed: " + ref,
					Action: audit.ActionPaymentFailed,
				})
				if err != nil {
					return err
				}
				post = append(post, res)
			} else {
				_, err = r.ledger.Append(ctx, tx, audit.Record{
					Kind:        audit.KindBooking,
					EntityID:    b.ID,
					Action:      audit.ActionPaymentFailed,
					OldStatus:   string(workflow.PaymentUnpaid),
					NewStatus:   string(workflow.PaymentUnpaid),
					PerformedBy: actor,
					Note:        ref,
					CreatedAt:   now,
				})
			}
		}
		if err != nil {
			return err
		}

		result = ResultApplied
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentMismatch) {
			r.log.Error("payment callback inconsistent with booking state",
				zap.String("session_reference", ref),
				zap.String("outcome", string(outcome)),
				zap.Error(err),
			)
		}
		return "", err
	}

	switch result {
	case ResultUnknown:
		r.log.Warn("payment callback for unknown session", zap.String("session_reference", ref), zap.String("outcome", string(outcome)))
	case ResultAlreadyApplied:
		r.log.Info("payment callback replayed", zap.String("session_reference", ref), zap.String("outcome", string(outcome)))
	case ResultApplied:
		r.log.Info("payment callback applied", zap.String("session_reference", ref), zap.String("outcome", string(outcome)))
		events.Emit(ctx, r.publisher, r.log, events.Event{
			Type:     events.TypePaymentSettled,
			Kind:     string(audit.KindBooking),
			EntityID: bookingID,
			To:       string(outcome),
			ActorID:  actor,
			Note:     ref,
		})
		for _, res := range post {
			r.machine.Publish(ctx, res)
		}
	}

	return result, nil
}

func (r *Reconciler) settle(ctx context.Context, tx Tx, bookingID uuid.UUID, current, from, to workflow.PaymentStatus, action audit.Action, actor uuid.UUID, ref string, at time.Time) error {
	if current != from {
		return fmt.Errorf("%w: cannot move payment from %s to %s", ErrPaymentMismatch, current, to)
	}
	if err := tx.SetPaymentStatus(ctx, bookingID, to, at); err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	_, err := r.ledger.Append(ctx, tx, audit.Record{
		Kind:        audit.KindBooking,
		EntityID:    bookingID,
		Action:      action,
		OldStatus:   string(from),
		NewStatus:   string(to),
		PerformedBy: actor,
		Note:        ref,
		CreatedAt:   at,
	})
	return err
}

// Reconcile asks the gateway about unpaid sessions older than cutoff and applies
// whatever it reports. It recovers callbacks the gateway never delivered.
func (r *Reconciler) Reconcile(ctx context.Context, cutoff time.Time) (int, error) {
	sessions, err := r.store.UnsettledSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list unsettled sessions: %w", err)
	}

	applied := 0
	for _, s := range sessions {
		outcome, err := r.gateway.Status(ctx, s.Reference)
		if err != nil {
			r.log.Warn("gateway status check failed", zap.String("session_reference", s.Reference), zap.Error(err))
			continue
		}
		if outcome == OutcomePending {
			continue
		}

		res, err := r.ApplyCallback(ctx, s.Reference, outcome)
		if err != nil {
			if errors.Is(err, audit.ErrMissingActor) {
				return applied, err
			}
			continue
		}
		if res == ResultApplied {
			applied++
		}
	}
	return applied, nil
}
