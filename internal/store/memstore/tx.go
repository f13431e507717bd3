package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

// tx implements every package's transaction interface over the locked state.
type tx struct {
	st *state
}

var (
	_ payment.Tx = (*tx)(nil)
	_ booking.Tx = (*tx)(nil)
	_ care.Tx    = (*tx)(nil)
)

func (t *tx) AppendHistory(_ context.Context, rec audit.Record) (audit.Record, error) {
	t.st.lastID++
	rec.ID = t.st.lastID
	t.st.history = append(t.st.history, rec)
	return rec, nil
}

func (t *tx) LockStatus(_ context.Context, kind audit.Kind, id uuid.UUID) (workflow.Status, error) {
	switch kind {
	case audit.KindBooking:
		if b, ok := t.st.bookings[id]; ok {
			return b.Status, nil
		}
	case audit.KindAnalysisOrder:
		if o, ok := t.st.orders[id]; ok {
			return o.Status, nil
		}
	case audit.KindTherapyPlan:
		if p, ok := t.st.plans[id]; ok {
			return p.Status, nil
		}
	case audit.KindDoctorApplication:
		if a, ok := t.st.applications[id]; ok {
			return a.Status, nil
		}
	default:
		return "", fmt.Errorf("%w: %q", workflow.ErrUnknownKind, kind)
	}
	return "", fmt.Errorf("%w: %s %s", workflow.ErrNotFound, kind, id)
}

func (t *tx) UpdateStatus(ctx context.Context, kind audit.Kind, id uuid.UUID, to workflow.Status, at time.Time) error {
	if _, err := t.LockStatus(ctx, kind, id); err != nil {
		return err
	}

	switch kind {
	case audit.KindBooking:
		b := t.st.bookings[id]
		b.Status, b.UpdatedAt = to, at
		t.st.bookings[id] = b
	case audit.KindAnalysisOrder:
		o := t.st.orders[id]
		o.Status, o.UpdatedAt = to, at
		if to == workflow.AnalysisCompleted {
			o.CompletedAt = &at
		}
		t.st.orders[id] = o
	case audit.KindTherapyPlan:
		p := t.st.plans[id]
		p.Status, p.UpdatedAt = to, at
		t.st.plans[id] = p
	case audit.KindDoctorApplication:
		a := t.st.applications[id]
		if to == workflow.ApplicationRejected && a.RejectionReason == "" {
			return fmt.Errorf("%w: doctor_application %s: rejected without a reason", ErrCheckViolation, id)
		}
		a.Status = to
		t.st.applications[id] = a
	}
	return nil
}

func (t *tx) BookingPaymentStatus(_ context.Context, id uuid.UUID) (workflow.PaymentStatus, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return "", fmt.Errorf("%w: booking %s", workflow.ErrNotFound, id)
	}
	return b.PaymentStatus, nil
}

func (t *tx) RecordReview(_ context.Context, appID, reviewerID uuid.UUID, reason string, at time.Time) error {
	a, ok := t.st.applications[appID]
	if !ok {
		return fmt.Errorf("%w: doctor_application %s", workflow.ErrNotFound, appID)
	}
	a.ReviewerID = &reviewerID
	a.DecidedAt = &at
	a.RejectionReason = reason
	t.st.applications[appID] = a
	return nil
}

func (t *tx) PromoteApplicant(_ context.Context, appID uuid.UUID) (uuid.UUID, error) {
	a, ok := t.st.applications[appID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: doctor_application %s", workflow.ErrNotFound, appID)
	}

	now := time.Now().UTC()
	if a.DecidedAt != nil {
		now = *a.DecidedAt
	}

	u, ok := t.st.users[a.ApplicantID]
	if !ok {
		u = care.User{ID: a.ApplicantID, CreatedAt: now}
	}
	u.Role = care.RoleDoctor
	t.st.users[a.ApplicantID] = u

	if _, ok := t.st.profiles[a.ApplicantID]; !ok {
		t.st.profiles[a.ApplicantID] = care.DoctorProfile{
			UserID:          a.ApplicantID,
			Specialization:  a.Field,
			LicenseNumber:   a.LicenseNumber,
			ExperienceYears: a.ExperienceYears,
			Available:       true,
			CreatedAt:       now,
		}
	}
	return a.ApplicantID, nil
}

func (t *tx) InsertBooking(_ context.Context, b *booking.Booking) error {
	for _, other := range t.st.bookings {
		if other.DoctorID == b.DoctorID && other.ScheduledAt.Equal(b.ScheduledAt) && other.Active() {
			return booking.ErrSlotConflict
		}
	}
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *tx) AttachSession(_ context.Context, s payment.SessionRecord) (bool, error) {
	b, ok := t.st.bookings[s.BookingID]
	if !ok {
		return false, fmt.Errorf("%w: booking %s", workflow.ErrNotFound, s.BookingID)
	}
	if b.PaymentSessionRef == s.Reference {
		return false, nil
	}
	if b.PaymentSessionRef != "" || b.PaymentStatus != workflow.PaymentUnpaid {
		return false, payment.ErrPaymentMismatch
	}

	b.PaymentSessionRef = s.Reference
	b.Amount = s.Amount
	b.Currency = s.Currency
	b.UpdatedAt = s.CreatedAt
	t.st.bookings[b.ID] = b
	t.st.sessions[s.Reference] = s
	return true, nil
}

func (t *tx) LockBookingBySession(_ context.Context, ref string) (*booking.Booking, error) {
	s, ok := t.st.sessions[ref]
	if !ok {
		return nil, payment.ErrUnknownSession
	}
	b, ok := t.st.bookings[s.BookingID]
	if !ok {
		return nil, payment.ErrUnknownSession
	}
	return &b, nil
}

func (t *tx) MarkSettled(_ context.Context, ref string, outcome payment.Outcome, at time.Time) (bool, error) {
	key := settlementKey{ref: ref, outcome: outcome}
	if _, ok := t.st.settlements[key]; ok {
		return false, nil
	}
	t.st.settlements[key] = at
	return true, nil
}

func (t *tx) SetPaymentStatus(_ context.Context, id uuid.UUID, to workflow.PaymentStatus, at time.Time) error {
	b, ok := t.st.bookings[id]
	if !ok {
		return fmt.Errorf("%w: booking %s", workflow.ErrNotFound, id)
	}
	b.PaymentStatus, b.UpdatedAt = to, at
	t.st.bookings[id] = b
	return nil
}

func (t *tx) InsertAnalysisOrder(_ context.Context, o *care.AnalysisOrder) error {
	t.st.orders[o.ID] = *o
	return nil
}

func (t *tx) SaveAnalysisResult(_ context.Context, id uuid.UUID, result []byte, docRef string, at time.Time) error {
	o, ok := t.st.orders[id]
	if !ok {
		return fmt.Errorf("%w: analysis_order %s", workflow.ErrNotFound, id)
	}
	o.Result = append([]byte(nil), result...)
	o.ResultDocumentRef = docRef
	o.UpdatedAt = at
	t.st.orders[id] = o
	return nil
}

func (t *tx) InsertTherapyPlan(_ context.Context, p *care.TherapyPlan) error {
	t.st.plans[p.ID] = *p
	return nil
}

func (t *tx) InsertApplication(_ context.Context, a *care.DoctorApplication) error {
	for _, other := range t.st.applications {
		if other.ApplicantID == a.ApplicantID && other.Status == workflow.ApplicationPending {
			return care.ErrApplicationExists
		}
	}
	t.st.applications[a.ID] = *a

	u, ok := t.st.users[a.ApplicantID]
	if !ok {
		u = care.User{ID: a.ApplicantID, Role: care.RoleUser, CreatedAt: a.CreatedAt}
	}
	if u.Role == care.RoleUser || u.Role == "" {
		u.Role = care.RolePendingDoctor
	}
	t.st.users[a.ApplicantID] = u
	return nil
}
