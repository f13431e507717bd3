package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loramulaku/LABcourse-sub002/internal/care"
)

func (s *Store) GetAnalysisOrder(ctx context.Context, id uuid.UUID) (*care.AnalysisOrder, error) {
	var (
		o      care.AnalysisOrder
		result []byte
		docRef *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, requester_id, analysis_type_id, laboratory_id, status, result, result_document_ref,
		       appointment_at, completed_at, created_at, updated_at
		FROM analysis_orders
		WHERE id = $1
	`, id).Scan(&o.ID, &o.RequesterID, &o.AnalysisTypeID, &o.LaboratoryID, &o.Status, &result, &docRef,
		&o.AppointmentAt, &o.CompletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "analysis_order", id)
	}
	o.Result = result
	o.ResultDocumentRef = stringOrEmpty(docRef)
	return &o, nil
}

func (s *Store) GetTherapyPlan(ctx context.Context, id uuid.UUID) (*care.TherapyPlan, error) {
	var (
		p                care.TherapyPlan
		diagnosis, notes *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, status, priority, start_date, end_date, follow_up_date,
		       diagnosis, notes, created_at, updated_at
		FROM therapy_plans
		WHERE id = $1
	`, id).Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.Status, &p.Priority, &p.StartDate, &p.EndDate, &p.FollowUpDate,
		&diagnosis, &notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "therapy_plan", id)
	}
	p.Diagnosis = stringOrEmpty(diagnosis)
	p.Notes = stringOrEmpty(notes)
	return &p, nil
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*care.DoctorApplication, error) {
	var (
		a      care.DoctorApplication
		reason *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, applicant_id, license_number, field, experience_years, status, reviewer_id, decided_at,
		       rejection_reason, created_at
		FROM doctor_applications
		WHERE id = $1
	`, id).Scan(&a.ID, &a.ApplicantID, &a.LicenseNumber, &a.Field, &a.ExperienceYears, &a.Status, &a.ReviewerID,
		&a.DecidedAt, &reason, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err, "doctor_application", id)
	}
	a.RejectionReason = stringOrEmpty(reason)
	return &a, nil
}

func (s *Store) OverdueTherapyPlans(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id
		FROM therapy_plans p
		WHERE p.follow_up_date IS NOT NULL
		  AND p.follow_up_date < $1
		  AND p.status NOT IN ('completed', 'cancelled', 'overdue')
		  AND NOT EXISTS (
		      SELECT 1
		      FROM history_records h
		      WHERE h.entity_kind = 'therapy_plan'
		        AND h.entity_id = p.id
		        AND h.action_type = 'marked_overdue'
		        AND h.created_at >= p.follow_up_date
		  )
		ORDER BY p.follow_up_date
	`, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (s *Store) CreateUser(ctx context.Context, u care.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, full_name, email, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, nullableString(u.FullName), nullableString(u.Email), u.Role, u.CreatedAt)
	return err
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*care.User, error) {
	var (
		u           care.User
		name, email *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, full_name, email, role, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &name, &email, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	u.FullName = stringOrEmpty(name)
	u.Email = stringOrEmpty(email)
	return &u, nil
}

func (s *Store) GetDoctorProfile(ctx context.Context, userID uuid.UUID) (*care.DoctorProfile, error) {
	var p care.DoctorProfile
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, specialization, license_number, experience_years, consultation_fee, available, created_at
		FROM doctor_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Specialization, &p.LicenseNumber, &p.ExperienceYears, &p.ConsultationFee, &p.Available, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "doctor profile", userID)
	}
	return &p, nil
}
