package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

// writeServiceError maps domain errors onto HTTP responses. Unexpected errors are
// logged and reported without their message.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, workflow.ErrUnknownKind),
		errors.Is(err, audit.ErrInvalidRecord),
		errors.Is(err, payment.ErrUnknownOutcome):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, workflow.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, payment.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "unknown_session", err.Error())
	case errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, workflow.ErrPaymentRequired):
		writeError(w, http.StatusConflict, "payment_required", err.Error())
	case errors.Is(err, payment.ErrPaymentMismatch):
		writeError(w, http.StatusConflict, "payment_mismatch", err.Error())
	case errors.Is(err, payment.ErrIntentInProgress):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "intent_in_progress", err.Error())
	case errors.Is(err, payment.ErrBookingClosed):
		writeError(w, http.StatusConflict, "booking_closed", err.Error())
	case errors.Is(err, care.ErrApplicationExists):
		writeError(w, http.StatusConflict, "application_exists", err.Error())
	case errors.Is(err, payment.ErrGateway):
		writeError(w, http.StatusBadGateway, "gateway_error", "payment provider is unavailable")
	default:
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
