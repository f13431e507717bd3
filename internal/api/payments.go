package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/payment/midtrans"
)

func createIntentHandler(rec *payment.Reconciler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateIntentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		intent, err := rec.CreateIntent(r.Context(), mustUUID(req.BookingID), req.Amount, req.Currency)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		status := http.StatusCreated
		if intent.Reused {
			status = http.StatusOK
		}
		writeJSON(w, status, IntentResponse{
			BookingID:        intent.BookingID,
			SessionReference: intent.SessionReference,
			RedirectURL:      intent.RedirectURL,
			Amount:           intent.Amount,
			Currency:         intent.Currency,
			Reused:           intent.Reused,
		})
	}
}

// callbackHandler acknowledges every delivery with 200 so the gateway stops
// retrying; the body says what happened.
func callbackHandler(rec *payment.Reconciler, systemActor uuid.UUID, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CallbackRequest
		if err := decodeGatewayBody(r, &req); err != nil {
			log.Warn("payment callback with unreadable body", zap.Error(err))
			writeJSON(w, http.StatusOK, CallbackResponse{Result: "rejected", Error: err.Error()})
			return
		}

		outcome, err := payment.ParseOutcome(req.Outcome)
		if err != nil {
			log.Warn("payment callback with unknown outcome", zap.String("session_reference", req.SessionReference), zap.String("outcome", req.Outcome))
			writeJSON(w, http.StatusOK, CallbackResponse{Result: "rejected", Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, applyCallback(r, rec, systemActor, req.SessionReference, outcome))
	}
}

func midtransNotificationHandler(rec *payment.Reconciler, serverKey string, systemActor uuid.UUID, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var n midtrans.Notification
		if err := decodeGatewayBody(r, &n); err != nil {
			log.Warn("midtrans notification with unreadable body", zap.String("order_id", n.OrderID), zap.Error(err))
			writeJSON(w, http.StatusOK, CallbackResponse{Result: "rejected", Error: err.Error()})
			return
		}

		if !n.VerifySignature(serverKey) {
			log.Warn("midtrans notification with bad signature", zap.String("order_id", n.OrderID))
			writeError(w, http.StatusForbidden, "invalid_signature", "signature_key does not match")
			return
		}

		outcome, ok := n.Outcome()
		if !ok {
			log.Info("midtrans notification ignored",
				zap.String("order_id", n.OrderID),
				zap.String("transaction_status", n.TransactionStatus),
				zap.String("fraud_status", n.FraudStatus),
			)
			writeJSON(w, http.StatusOK, CallbackResponse{Result: "ignored"})
			return
		}

		writeJSON(w, http.StatusOK, applyCallback(r, rec, systemActor, n.OrderID, outcome))
	}
}

func applyCallback(r *http.Request, rec *payment.Reconciler, systemActor uuid.UUID, ref string, outcome payment.Outcome) CallbackResponse {
	ctx := audit.WithActor(r.Context(), systemActor)
	res, err := rec.ApplyCallback(ctx, ref, outcome)
	if err != nil {
		return CallbackResponse{Result: "rejected", Error: err.Error()}
	}
	return CallbackResponse{Result: string(res)}
}

// decodeGatewayBody reads a notification body, accepting fields it does not know.
func decodeGatewayBody(r *http.Request, dst any) error {
	if err := jsonDecoder(r).Decode(dst); err != nil {
		return errors.New("could not parse JSON")
	}
	if err := validate.Struct(dst); err != nil {
		return errors.New(formatFirstValidationError(err))
	}
	return nil
}
