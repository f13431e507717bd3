package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

type CreateBookingRequest struct {
	DoctorID    string    `json:"doctor_id" validate:"required,uuid"`
	RequesterID string    `json:"requester_id" validate:"required,uuid"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Reason      string    `json:"reason" validate:"max=2000"`
}

type TransitionRequest struct {
	TargetStatus string `json:"target_status" validate:"required"`
	ActorID      string `json:"actor_id" validate:"required,uuid"`
	Note         string `json:"note" validate:"max=2000"`
}

type CreateIntentRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid"`
	Amount    int64  `json:"amount" validate:"gt=0"`
	Currency  string `json:"currency" validate:"required,len=3"`
}

type CallbackRequest struct {
	SessionReference string `json:"session_reference" validate:"required"`
	Outcome          string `json:"outcome" validate:"required"`
}

type CreateAnalysisOrderRequest struct {
	RequesterID    string     `json:"requester_id" validate:"required,uuid"`
	AnalysisTypeID string     `json:"analysis_type_id" validate:"required,uuid"`
	LaboratoryID   string     `json:"laboratory_id" validate:"required,uuid"`
	AppointmentAt  *time.Time `json:"appointment_at"`
}

type UploadResultRequest struct {
	ActorID     string         `json:"actor_id" validate:"required,uuid"`
	Result      map[string]any `json:"result"`
	DocumentRef string         `json:"document_ref" validate:"max=500"`
}

type CreateTherapyPlanRequest struct {
	PatientID    string     `json:"patient_id" validate:"required,uuid"`
	DoctorID     string     `json:"doctor_id" validate:"required,uuid"`
	Priority     string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	FollowUpDate *time.Time `json:"follow_up_date"`
	Diagnosis    string     `json:"diagnosis" validate:"max=4000"`
	Notes        string     `json:"notes" validate:"max=4000"`
}

type SubmitApplicationRequest struct {
	ApplicantID     string `json:"applicant_id" validate:"required,uuid"`
	LicenseNumber   string `json:"license_number" validate:"required,max=100"`
	Field           string `json:"field" validate:"required,max=200"`
	ExperienceYears int    `json:"experience_years" validate:"min=0,max=80"`
}

type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required,uuid"`
	Reason     string `json:"reason" validate:"max=2000"`
}

type BookingResponse struct {
	ID                uuid.UUID `json:"id"`
	RequesterID       uuid.UUID `json:"requester_id"`
	DoctorID          uuid.UUID `json:"doctor_id"`
	ScheduledAt       time.Time `json:"scheduled_at"`
	Reason            string    `json:"reason,omitempty"`
	Status            string    `json:"status"`
	PaymentStatus     string    `json:"payment_status"`
	Amount            int64     `json:"amount,omitempty"`
	Currency          string    `json:"currency,omitempty"`
	PaymentSessionRef string    `json:"payment_session_ref,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func bookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:                b.ID,
		RequesterID:       b.RequesterID,
		DoctorID:          b.DoctorID,
		ScheduledAt:       b.ScheduledAt,
		Reason:            b.Reason,
		Status:            string(b.Status),
		PaymentStatus:     string(b.PaymentStatus),
		Amount:            b.Amount,
		Currency:          b.Currency,
		PaymentSessionRef: b.PaymentSessionRef,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

type TransitionResponse struct {
	Kind      string    `json:"kind"`
	ID        uuid.UUID `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	HistoryID int64     `json:"history_id"`
	At        time.Time `json:"at"`
	Entity    any       `json:"entity,omitempty"`
}

func transitionResponse(res workflow.Result) TransitionResponse {
	return TransitionResponse{
		Kind:      string(res.Kind),
		ID:        res.ID,
		From:      string(res.From),
		To:        string(res.To),
		HistoryID: res.Record.ID,
		At:        res.Record.CreatedAt,
	}
}

type IntentResponse struct {
	BookingID        uuid.UUID `json:"booking_id"`
	SessionReference string    `json:"session_reference"`
	RedirectURL      string    `json:"redirect_url"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Reused           bool      `json:"reused"`
}

type CallbackResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

type HistoryRecordResponse struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"entity_kind"`
	EntityID    uuid.UUID `json:"entity_id"`
	Action      string    `json:"action_type"`
	OldStatus   string    `json:"old_status,omitempty"`
	NewStatus   string    `json:"new_status,omitempty"`
	PerformedBy uuid.UUID `json:"performed_by"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func historyResponse(records []audit.Record) []HistoryRecordResponse {
	out := make([]HistoryRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, HistoryRecordResponse{
			ID:          r.ID,
			Kind:        string(r.Kind),
			EntityID:    r.EntityID,
			Action:      string(r.Action),
			OldStatus:   r.OldStatus,
			NewStatus:   r.NewStatus,
			PerformedBy: r.PerformedBy,
			Note:        r.Note,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out
}

type AnalysisOrderResponse struct {
	ID                uuid.UUID  `json:"id"`
	RequesterID       uuid.UUID  `json:"requester_id"`
	AnalysisTypeID    uuid.UUID  `json:"analysis_type_id"`
	LaboratoryID      uuid.UUID  `json:"laboratory_id"`
	Status            string     `json:"status"`
	Result            rawJSON    `json:"result,omitempty"`
	ResultDocumentRef string     `json:"result_document_ref,omitempty"`
	AppointmentAt     *time.Time `json:"appointment_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func analysisOrderResponse(o *care.AnalysisOrder) AnalysisOrderResponse {
	return AnalysisOrderResponse{
		ID:                o.ID,
		RequesterID:       o.RequesterID,
		AnalysisTypeID:    o.AnalysisTypeID,
		LaboratoryID:      o.LaboratoryID,
		Status:            string(o.Status),
		Result:            rawJSON(o.Result),
		ResultDocumentRef: o.ResultDocumentRef,
		AppointmentAt:     o.AppointmentAt,
		CompletedAt:       o.CompletedAt,
		CreatedAt:         o.CreatedAt,
	}
}

// rawJSON embeds stored JSON as-is.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

type TherapyPlanResponse struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	DoctorID     uuid.UUID  `json:"doctor_id"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	FollowUpDate *time.Time `json:"follow_up_date,omitempty"`
	Diagnosis    string     `json:"diagnosis,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func therapyPlanResponse(p *care.TherapyPlan) TherapyPlanResponse {
	return TherapyPlanResponse{
		ID:           p.ID,
		PatientID:    p.PatientID,
		DoctorID:     p.DoctorID,
		Status:       string(p.Status),
		Priority:     string(p.Priority),
		StartDate:    p.StartDate,
		EndDate:      p.EndDate,
		FollowUpDate: p.FollowUpDate,
		Diagnosis:    p.Diagnosis,
		Notes:        p.Notes,
		CreatedAt:    p.CreatedAt,
	}
}

type ApplicationResponse struct {
	ID              uuid.UUID  `json:"id"`
	ApplicantID     uuid.UUID  `json:"applicant_id"`
	LicenseNumber   string     `json:"license_number"`
	Field           string     `json:"field"`
	ExperienceYears int        `json:"experience_years"`
	Status          string     `json:"status"`
	ReviewerID      *uuid.UUID `json:"reviewer_id,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func applicationResponse(a *care.DoctorApplication) ApplicationResponse {
	return ApplicationResponse{
		ID:              a.ID,
		ApplicantID:     a.ApplicantID,
		LicenseNumber:   a.LicenseNumber,
		Field:           a.Field,
		ExperienceYears: a.ExperienceYears,
		Status:          string(a.Status),
		ReviewerID:      a.ReviewerID,
		DecidedAt:       a.DecidedAt,
		RejectionReason: a.RejectionReason,
		CreatedAt:       a.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
