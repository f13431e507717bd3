package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	var out *booking.Booking
	err := s.read(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return fmt.Errorf("%w: booking %s", workflow.ErrNotFound, id)
		}
		out = &b
		return nil
	})
	return out, err
}

func (s *Store) ListDoctorBookings(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]booking.Booking, error) {
	var out []booking.Booking
	err := s.read(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if b.DoctorID == doctorID && !b.ScheduledAt.Before(from) && b.ScheduledAt.Before(to) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, err
}

func (s *Store) StaleUnpaidBookings(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var stale []booking.Booking
	err := s.read(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if b.Status == workflow.BookingPending && b.PaymentStatus == workflow.PaymentUnpaid && b.CreatedAt.Before(cutoff) {
				stale = append(stale, b)
			}
		}
		return nil
	})
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })

	ids := make([]uuid.UUID, 0, len(stale))
	for _, b := range stale {
		ids = append(ids, b.ID)
	}
	return ids, err
}

func (s *Store) GetSession(ctx context.Context, ref string) (*payment.SessionRecord, error) {
	var out *payment.SessionRecord
	err := s.read(ctx, func(st *state) error {
		sess, ok := st.sessions[ref]
		if !ok {
			return payment.ErrUnknownSession
		}
		out = &sess
		return nil
	})
	return out, err
}

func (s *Store) UnsettledSessions(ctx context.Context, cutoff time.Time) ([]payment.SessionRecord, error) {
	var out []payment.SessionRecord
	err := s.read(ctx, func(st *state) error {
		settled := make(map[string]bool)
		for k := range st.settlements {
			settled[k.ref] = true
		}
		for _, sess := range st.sessions {
			b := st.bookings[sess.BookingID]
			if sess.CreatedAt.Before(cutoff) && b.PaymentStatus == workflow.PaymentUnpaid && !settled[sess.Reference] {
				out = append(out, sess)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (s *Store) OverdueTherapyPlans(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.read(ctx, func(st *state) error {
		for _, p := range st.plans {
			if p.FollowUpDate == nil || !p.FollowUpDate.Before(now) {
				continue
			}
			switch p.Status {
			case workflow.TherapyCompleted, workflow.TherapyCancelled, workflow.TherapyOverdue:
				continue
			}
			if markedSince(st.history, p.ID, *p.FollowUpDate) {
				continue
			}
			ids = append(ids, p.ID)
		}
		return nil
	})
	return ids, err
}

// markedSince reports whether the plan was already marked overdue for this
// follow-up date.
func markedSince(history []audit.Record, planID uuid.UUID, followUp time.Time) bool {
	for _, rec := range history {
		if rec.Kind == audit.KindTherapyPlan && rec.EntityID == planID &&
			rec.Action == audit.ActionMarkedOverdue && !rec.CreatedAt.Before(followUp) {
			return true
		}
	}
	return false
}

func (s *Store) ListHistory(ctx context.Context, kind audit.Kind, id uuid.UUID) ([]audit.Record, error) {
	var out []audit.Record
	err := s.read(ctx, func(st *state) error {
		for _, rec := range st.history {
			if rec.Kind == kind && rec.EntityID == id {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) GetAnalysisOrder(ctx context.Context, id uuid.UUID) (*care.AnalysisOrder, error) {
	var out *care.AnalysisOrder
	err := s.read(ctx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return fmt.Errorf("%w: analysis_order %s", workflow.ErrNotFound, id)
		}
		out = &o
		return nil
	})
	return out, err
}

func (s *Store) GetTherapyPlan(ctx context.Context, id uuid.UUID) (*care.TherapyPlan, error) {
	var out *care.TherapyPlan
	err := s.read(ctx, func(st *state) error {
		p, ok := st.plans[id]
		if !ok {
			return fmt.Errorf("%w: therapy_plan %s", workflow.ErrNotFound, id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*care.DoctorApplication, error) {
	var out *care.DoctorApplication
	err := s.read(ctx, func(st *state) error {
		a, ok := st.applications[id]
		if !ok {
			return fmt.Errorf("%w: doctor_application %s", workflow.ErrNotFound, id)
		}
		out = &a
		return nil
	})
	return out, err
}

func (s *Store) CreateUser(ctx context.Context, u care.User) error {
	return s.run(ctx, func(t *tx) error {
		t.st.users[u.ID] = u
		return nil
	})
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*care.User, error) {
	var out *care.User
	err := s.read(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return fmt.Errorf("%w: user %s", workflow.ErrNotFound, id)
		}
		out = &u
		return nil
	})
	return out, err
}

func (s *Store) GetDoctorProfile(ctx context.Context, userID uuid.UUID) (*care.DoctorProfile, error) {
	var out *care.DoctorProfile
	err := s.read(ctx, func(st *state) error {
		p, ok := st.profiles[userID]
		if !ok {
			return fmt.Errorf("%w: doctor profile %s", workflow.ErrNotFound, userID)
		}
		out = &p
		return nil
	})
	return out, err
}
