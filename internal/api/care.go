package api

import (
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/review"
)

func createAnalysisOrderHandler(svc *care.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAnalysisOrderRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		o, err := svc.CreateAnalysisOrder(r.Context(), care.NewAnalysisOrder{
			RequesterID:    mustUUID(req.RequesterID),
			AnalysisTypeID: mustUUID(req.AnalysisTypeID),
			LaboratoryID:   mustUUID(req.LaboratoryID),
			AppointmentAt:  req.AppointmentAt,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, analysisOrderResponse(o))
	}
}

func getAnalysisOrderHandler(svc *care.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		o, err := svc.GetAnalysisOrder(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, analysisOrderResponse(o))
	}
}

func uploadResultHandler(svc *care.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req UploadResultRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		var payload []byte
		if req.Result != nil {
			var err error
			if payload, err = json.Marshal(req.Result); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_result", "result must be a JSON object")
				return
			}
		}

		res, err := svc.UploadAnalysisResult(r.Context(), id, mustUUID(req.ActorID), payload, req.DocumentRef)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, transitionResponse(res))
	}
}

func createTherapyPlanHandler(svc *care.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTherapyPlanRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		p, err := svc.CreateTherapyPlan(r.Context(), care.NewTherapyPlan{
			PatientID:    mustUUID(req.PatientID),
			DoctorID:     mustUUID(req.DoctorID),
			Priority:     care.Priority(req.Priority),
			StartDate:    req.StartDate,
			EndDate:      req.EndDate,
			FollowUpDate: req.FollowUpDate,
			Diagnosis:    req.Diagnosis,
			Notes:        req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, therapyPlanResponse(p))
	}
}

func getTherapyPlanHandler(svc *care.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		p, err := svc.GetTherapyPlan(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, therapyPlanResponse(p))
	}
}

func submitApplicationHandler(svc *care.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitApplicationRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		a, err := svc.SubmitApplication(r.Context(), care.NewApplication{
			ApplicantID:     mustUUID(req.ApplicantID),
			LicenseNumber:   req.LicenseNumber,
			Field:           req.Field,
			ExperienceYears: req.ExperienceYears,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, applicationResponse(a))
	}
}

func getApplicationHandler(svc *care.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		a, err := svc.GetApplication(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, applicationResponse(a))
	}
}

func approveApplicationHandler(rev *review.Reviewer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req ReviewRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		res, err := rev.Approve(r.Context(), id, mustUUID(req.ReviewerID))
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, transitionResponse(res))
	}
}

func rejectApplicationHandler(rev *review.Reviewer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req ReviewRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		res, err := rev.Reject(r.Context(), id, mustUUID(req.ReviewerID), req.Reason)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, transitionResponse(res))
	}
}
