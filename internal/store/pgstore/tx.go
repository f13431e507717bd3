package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

// tx implements every package's transaction interface over one pgx.Tx.
type tx struct {
	db dbtx
}

var (
	_ payment.Tx = (*tx)(nil)
	_ booking.Tx = (*tx)(nil)
	_ care.Tx    = (*tx)(nil)
)

func (t *tx) AppendHistory(ctx context.Context, rec audit.Record) (audit.Record, error) {
	return appendHistory(ctx, t.db, rec)
}

func (t *tx) LockStatus(ctx context.Context, kind audit.Kind, id uuid.UUID) (workflow.Status, error) {
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}

	var status workflow.Status
	err = t.db.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1 FOR UPDATE`, table), id).Scan(&status)
	if err != nil {
		return "", notFound(err, string(kind), id)
	}
	return status, nil
}

func (t *tx) UpdateStatus(ctx context.Context, kind audit.Kind, id uuid.UUID, to workflow.Status, at time.Time) error {
	var (
		query string
		args  = []any{id, to}
	)
	switch kind {
	case audit.KindBooking:
		query = `UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`
		args = append(args, at)
	case audit.KindAnalysisOrder:
		query = `
			UPDATE analysis_orders
			SET status = $2,
			    updated_at = $3,
			    completed_at = CASE WHEN $2 = 'completed' THEN $3 ELSE completed_at END
			WHERE id = $1`
		args = append(args, at)
	case audit.KindTherapyPlan:
		query = `UPDATE therapy_plans SET status = $2, updated_at = $3 WHERE id = $1`
		args = append(args, at)
	case audit.KindDoctorApplication:
		query = `UPDATE doctor_applications SET status = $2 WHERE id = $1`
	default:
		return fmt.Errorf("%w: %q", workflow.ErrUnknownKind, kind)
	}

	tag, err := t.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, string(kind), id)
	}
	return nil
}

func (t *tx) RecordReview(ctx context.Context, appID, reviewerID uuid.UUID, reason string, at time.Time) error {
	tag, err := t.db.Exec(ctx, `
		UPDATE doctor_applications
		SET reviewer_id = $2,
		    decided_at = $3,
		    rejection_reason = $4
		WHERE id = $1
	`, appID, reviewerID, at, nullableString(reason))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "doctor_application", appID)
	}
	return nil
}

// PromoteApplicant makes the applicant a doctor and provisions a default profile
// from the application's credentials.
func (t *tx) PromoteApplicant(ctx context.Context, appID uuid.UUID) (uuid.UUID, error) {
	var (
		applicant  uuid.UUID
		field      string
		license    string
		experience int
	)
	err := t.db.QueryRow(ctx, `
		SELECT applicant_id, field, license_number, experience_years
		FROM doctor_applications
		WHERE id = $1
	`, appID).Scan(&applicant, &field, &license, &experience)
	if err != nil {
		return uuid.Nil, notFound(err, "doctor_application", appID)
	}

	_, err = t.db.Exec(ctx, `
		INSERT INTO users (id, role, created_at)
		VALUES ($1, 'doctor', now())
		ON CONFLICT (id) DO UPDATE SET role = 'doctor'
	`, applicant)
	if err != nil {
		return uuid.Nil, fmt.Errorf("promote user: %w", err)
	}

	_, err = t.db.Exec(ctx, `
		INSERT INTO doctor_profiles (user_id, specialization, license_number, experience_years, consultation_fee, available, created_at)
		VALUES ($1, $2, $3, $4, 0, true, now())
		ON CONFLICT (user_id) DO NOTHING
	`, applicant, field, license, experience)
	if err != nil {
		return uuid.Nil, fmt.Errorf("provision doctor profile: %w", err)
	}

	return applicant, nil
}

func (t *tx) InsertAnalysisOrder(ctx context.Context, o *care.AnalysisOrder) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO analysis_orders (id, requester_id, analysis_type_id, laboratory_id, status, appointment_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, o.ID, o.RequesterID, o.AnalysisTypeID, o.LaboratoryID, o.Status, o.AppointmentAt, o.CreatedAt, o.UpdatedAt)
	return err
}

func (t *tx) SaveAnalysisResult(ctx context.Context, id uuid.UUID, result []byte, docRef string, at time.Time) error {
	var payload any
	if len(result) > 0 {
		payload = string(result)
	}
	tag, err := t.db.Exec(ctx, `
		UPDATE analysis_orders
		SET result = $2::jsonb,
		    result_document_ref = $3,
		    updated_at = $4
		WHERE id = $1
	`, id, payload, nullableString(docRef), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "analysis_order", id)
	}
	return nil
}

func (t *tx) InsertTherapyPlan(ctx context.Context, p *care.TherapyPlan) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO therapy_plans (id, patient_id, doctor_id, status, priority, start_date, end_date, follow_up_date,
		                           diagnosis, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.PatientID, p.DoctorID, p.Status, p.Priority, p.StartDate, p.EndDate, p.FollowUpDate,
		nullableString(p.Diagnosis), nullableString(p.Notes), p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *tx) InsertApplication(ctx context.Context, a *care.DoctorApplication) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO doctor_applications (id, applicant_id, license_number, field, experience_years, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.ApplicantID, a.LicenseNumber, a.Field, a.ExperienceYears, a.Status, a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return care.ErrApplicationExists
		}
		return err
	}

	_, err = t.db.Exec(ctx, `
		INSERT INTO users (id, role, created_at)
		VALUES ($1, 'pending_doctor', $2)
		ON CONFLICT (id) DO UPDATE SET role = 'pending_doctor' WHERE users.role = 'user'
	`, a.ApplicantID, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("mark applicant pending: %w", err)
	}
	return nil
}
