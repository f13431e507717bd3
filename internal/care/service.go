package care

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/events"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

type NewAnalysisOrder struct {
	RequesterID    uuid.UUID
	AnalysisTypeID uuid.UUID
	LaboratoryID   uuid.UUID
	AppointmentAt  *time.Time
}

type NewTherapyPlan struct {
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	Priority     Priority
	StartDate    *time.Time
	EndDate      *time.Time
	FollowUpDate *time.Time
	Diagnosis    string
	Notes        string
}

type NewApplication struct {
	ApplicantID     uuid.UUID
	LicenseNumber   string
	Field           string
	ExperienceYears int
}

type Service struct {
	store     Store
	machine   *workflow.Machine
	ledger    *audit.Ledger
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewService(store Store, machine *workflow.Machine, ledger *audit.Ledger, publisher events.Publisher, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		machine:   machine,
		ledger:    ledger,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) CreateAnalysisOrder(ctx context.Context, in NewAnalysisOrder) (*AnalysisOrder, error) {
	switch {
	case in.RequesterID == uuid.Nil:
		return nil, workflow.NewValidationError("requester_id", "is required")
	case in.AnalysisTypeID == uuid.Nil:
		return nil, workflow.NewValidationError("analysis_type_id", "is required")
	case in.LaboratoryID == uuid.Nil:
		return nil, workflow.NewValidationError("laboratory_id", "is required")
	}

	now := s.now().UTC()
	o := &AnalysisOrder{
		ID:             uuid.New(),
		RequesterID:    in.RequesterID,
		AnalysisTypeID: in.AnalysisTypeID,
		LaboratoryID:   in.LaboratoryID,
		Status:         workflow.AnalysisUnconfirmed,
		AppointmentAt:  utc(in.AppointmentAt),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.create(ctx, audit.KindAnalysisOrder, o.ID, o.Status, in.RequesterID, now, func(ctx context.Context, tx Tx) error {
		return tx.InsertAnalysisOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UploadAnalysisResult stores the result of an order awaiting it and completes the
// order in the same transaction.
func (s *Service) UploadAnalysisResult(ctx context.Context, orderID, actor uuid.UUID, result []byte, documentRef string) (workflow.Result, error) {
	documentRef = strings.TrimSpace(documentRef)
	if len(result) == 0 && documentRef == "" {
		return workflow.Result{}, workflow.NewValidationError("result", "a result payload or document reference is required")
	}
	if len(result) > 0 && !json.Valid(result) {
		return workflow.Result{}, workflow.NewValidationError("result", "must be valid JSON")
	}

	var res workflow.Result
	err := s.store.InCareTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		res, err = s.machine.Apply(ctx, tx, workflow.Request{
			Kind:   audit.KindAnalysisOrder,
			ID:     orderID,
			Target: workflow.AnalysisCompleted,
			Actor:  actor,
			Note:   documentRef,
			Action: audit.ActionResultUploaded,
		})
		if err != nil {
			return err
		}
		return tx.SaveAnalysisResult(ctx, orderID, result, documentRef, res.Record.CreatedAt)
	})
	if err != nil {
		return workflow.Result{}, err
	}

	s.log.Info("analysis result uploaded", zap.String("order_id", orderID.String()), zap.String("actor", actor.String()))
	s.machine.Publish(ctx, res)
	return res, nil
}

func (s *Service) CreateTherapyPlan(ctx context.Context, in NewTherapyPlan) (*TherapyPlan, error) {
	if in.PatientID == uuid.Nil {
		return nil, workflow.NewValidationError("patient_id", "is required")
	}
	if in.DoctorID == uuid.Nil {
		return nil, workflow.NewValidationError("doctor_id", "is required")
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, workflow.NewValidationError("priority", "must be one of low, medium, high")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return nil, workflow.NewValidationError("end_date", "must not be before start_date")
	}

	now := s.now().UTC()
	p := &TherapyPlan{
		ID:           uuid.New(),
		PatientID:    in.PatientID,
		DoctorID:     in.DoctorID,
		Status:       workflow.TherapyDraft,
		Priority:     in.Priority,
		StartDate:    utc(in.StartDate),
		EndDate:      utc(in.EndDate),
		FollowUpDate: utc(in.FollowUpDate),
		Diagnosis:    strings.TrimSpace(in.Diagnosis),
		Notes:        strings.TrimSpace(in.Notes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.create(ctx, audit.KindTherapyPlan, p.ID, p.Status, in.DoctorID, now, func(ctx context.Context, tx Tx) error {
		return tx.InsertTherapyPlan(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) SubmitApplication(ctx context.Context, in NewApplication) (*DoctorApplication, error) {
	in.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
	in.Field = strings.TrimSpace(in.Field)
	switch {
	case in.ApplicantID == uuid.Nil:
		return nil, workflow.NewValidationError("applicant_id", "is required")
	case in.LicenseNumber == "":
		return nil, workflow.NewValidationError("license_number", "is required")
	case in.Field == "":
		return nil, workflow.NewValidationError("field", "is required")
	case in.ExperienceYears < 0:
		return nil, workflow.NewValidationError("experience_years", "must not be negative")
	}

	now := s.now().UTC()
	a := &DoctorApplication{
		ID:              uuid.New(),
		ApplicantID:     in.ApplicantID,
		LicenseNumber:   in.LicenseNumber,
		Field:           in.Field,
		ExperienceYears: in.ExperienceYears,
		Status:          workflow.ApplicationPending,
		CreatedAt:       now,
	}

	err := s.create(ctx, audit.KindDoctorApplication, a.ID, a.Status, in.ApplicantID, now, func(ctx context.Context, tx Tx) error {
		return tx.InsertApplication(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// create inserts an aggregate and its "created" record in one transaction, then
// announces it.
func (s *Service) create(ctx context.Context, kind audit.Kind, id uuid.UUID, status workflow.Status, actor uuid.UUID, at time.Time, insert func(ctx context.Context, tx Tx) error) error {
	err := s.store.InCareTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := insert(ctx, tx); err != nil {
			if errors.Is(err, ErrApplicationExists) {
				return err
			}
			return fmt.Errorf("insert %s: %w", kind, err)
		}
		_, err := s.ledger.Append(ctx, tx, audit.Record{
			Kind:        kind,
			EntityID:    id,
			Action:      audit.ActionCreated,
			NewStatus:   string(status),
			PerformedBy: actor,
			CreatedAt:   at,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info("entity created", zap.String("kind", string(kind)), zap.String("entity_id", id.String()))
	events.Emit(ctx, s.publisher, s.log, events.Event{
		Type:       events.TypeEntityCreated,
		Kind:       string(kind),
		EntityID:   id,
		To:         string(status),
		ActorID:    actor,
		OccurredAt: at,
	})
	return nil
}

func (s *Service) GetAnalysisOrder(ctx context.Context, id uuid.UUID) (*AnalysisOrder, error) {
	return s.store.GetAnalysisOrder(ctx, id)
}

func (s *Service) GetTherapyPlan(ctx context.Context, id uuid.UUID) (*TherapyPlan, error) {
	return s.store.GetTherapyPlan(ctx, id)
}

func (s *Service) GetApplication(ctx context.Context, id uuid.UUID) (*DoctorApplication, error) {
	return s.store.GetApplication(ctx, id)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
