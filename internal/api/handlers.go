package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

func createBookingHandler(alloc *booking.Allocator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		b, err := alloc.Reserve(r.Context(), booking.ReserveRequest{
			DoctorID:    mustUUID(req.DoctorID),
			RequesterID: mustUUID(req.RequesterID),
			ScheduledAt: req.ScheduledAt,
			Reason:      req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, bookingResponse(b))
	}
}

func getBookingHandler(alloc *booking.Allocator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		b, err := alloc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, bookingResponse(b))
	}
}

// listDoctorBookingsHandler serves ?from=&to= (RFC3339); the window defaults to the
// next seven days.
func listDoctorBookingsHandler(alloc *booking.Allocator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		from := time.Now().UTC()
		to := from.Add(7 * 24 * time.Hour)
		var err error
		if v := r.URL.Query().Get("from"); v != "" {
			if from, err = time.Parse(time.RFC3339, v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC3339 timestamp")
				return
			}
		}
		if v := r.URL.Query().Get("to"); v != "" {
			if to, err = time.Parse(time.RFC3339, v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC3339 timestamp")
				return
			}
		}

		bookings, err := alloc.ListForDoctor(r.Context(), doctorID, from, to)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := make([]BookingResponse, 0, len(bookings))
		for i := range bookings {
			resp = append(resp, bookingResponse(&bookings[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// entityLoader reads an entity back after a transition so the response carries its
// current state.
type entityLoader func(ctx context.Context, id uuid.UUID) (any, error)

// transitionHandler drives any entity kind through the workflow machine.
func transitionHandler(machine *workflow.Machine, kind audit.Kind, load entityLoader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req TransitionRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		res, err := machine.Transition(r.Context(), kind, id, workflow.Status(strings.TrimSpace(req.TargetStatus)), mustUUID(req.ActorID), req.Note)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := transitionResponse(res)
		if load != nil {
			entity, err := load(r.Context(), id)
			if err != nil {
				log.Warn("reload after transition failed", zap.String("kind", string(kind)), zap.String("entity_id", id.String()), zap.Error(err))
			} else {
				resp.Entity = entity
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func historyHandler(ledger *audit.Ledger, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := audit.Kind(chi.URLParam(r, "kind"))
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_kind", "kind must be one of booking, analysis_order, therapy_plan, doctor_application")
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		records, err := ledger.ListFor(r.Context(), kind, id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, historyResponse(records))
	}
}
