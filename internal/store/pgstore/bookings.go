package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

const bookingColumns = `id, requester_id, doctor_id, scheduled_at, reason, status, payment_status,
	amount, currency, payment_session_ref, created_at, updated_at`

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var (
		b          booking.Booking
		reason     *string
		amount     *int64
		currency   *string
		sessionRef *string
	)

	err := row.Scan(
		&b.ID,
		&b.RequesterID,
		&b.DoctorID,
		&b.ScheduledAt,
		&reason,
		&b.Status,
		&b.PaymentStatus,
		&amount,
		&currency,
		&sessionRef,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Reason = stringOrEmpty(reason)
	if amount != nil {
		b.Amount = *amount
	}
	b.Currency = stringOrEmpty(currency)
	b.PaymentSessionRef = stringOrEmpty(sessionRef)
	b.ScheduledAt = b.ScheduledAt.UTC()
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]booking.Booking, error) {
	defer rows.Close()

	var result []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (t *tx) InsertBooking(ctx context.Context, b *booking.Booking) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO bookings (id, requester_id, doctor_id, scheduled_at, reason, status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.RequesterID, b.DoctorID, b.ScheduledAt, nullableString(b.Reason), b.Status, b.PaymentStatus, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return booking.ErrSlotConflict
		}
		return err
	}
	return nil
}

func (t *tx) BookingPaymentStatus(ctx context.Context, id uuid.UUID) (workflow.PaymentStatus, error) {
	var ps workflow.PaymentStatus
	err := t.db.QueryRow(ctx, `SELECT payment_status FROM bookings WHERE id = $1`, id).Scan(&ps)
	if err != nil {
		return "", notFound(err, "booking", id)
	}
	return ps, nil
}

func (t *tx) SetPaymentStatus(ctx context.Context, id uuid.UUID, to workflow.PaymentStatus, at time.Time) error {
	tag, err := t.db.Exec(ctx, `
		UPDATE bookings
		SET payment_status = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, to, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "booking", id)
	}
	return nil
}

func (t *tx) AttachSession(ctx context.Context, s payment.SessionRecord) (bool, error) {
	var (
		current *string
		status  workflow.PaymentStatus
	)
	err := t.db.QueryRow(ctx, `
		SELECT payment_session_ref, payment_status
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, s.BookingID).Scan(&current, &status)
	if err != nil {
		return false, notFound(err, "booking", s.BookingID)
	}

	if stringOrEmpty(current) == s.Reference {
		return false, nil
	}
	if current != nil || status != workflow.PaymentUnpaid {
		return false, payment.ErrPaymentMismatch
	}

	_, err = t.db.Exec(ctx, `
		INSERT INTO payment_sessions (reference, booking_id, amount, currency, redirect_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.Reference, s.BookingID, s.Amount, s.Currency, nullableString(s.RedirectURL), s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, payment.ErrPaymentMismatch
		}
		return false, err
	}

	_, err = t.db.Exec(ctx, `
		UPDATE bookings
		SET payment_session_ref = $2,
		    amount = $3,
		    currency = $4,
		    updated_at = $5
		WHERE id = $1
	`, s.BookingID, s.Reference, s.Amount, s.Currency, s.CreatedAt)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *tx) LockBookingBySession(ctx context.Context, ref string) (*booking.Booking, error) {
	row := t.db.QueryRow(ctx, `
		SELECT b.id, b.requester_id, b.doctor_id, b.scheduled_at, b.reason, b.status, b.payment_status,
		       b.amount, b.currency, b.payment_session_ref, b.created_at, b.updated_at
		FROM payment_sessions s
		JOIN bookings b ON b.id = s.booking_id
		WHERE s.reference = $1
		FOR UPDATE OF b
	`, ref)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrUnknownSession
		}
		return nil, err
	}
	return b, nil
}

func (t *tx) MarkSettled(ctx context.Context, ref string, outcome payment.Outcome, at time.Time) (bool, error) {
	tag, err := t.db.Exec(ctx, `
		INSERT INTO payment_settlements (session_reference, outcome, applied_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_reference, outcome) DO NOTHING
	`, ref, outcome, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return b, nil
}

func (s *Store) ListDoctorBookings(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE doctor_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) StaleUnpaidBookings(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM bookings
		WHERE status = 'PENDING'
		  AND payment_status = 'unpaid'
		  AND created_at < $1
		ORDER BY created_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (s *Store) GetSession(ctx context.Context, ref string) (*payment.SessionRecord, error) {
	var (
		rec      payment.SessionRecord
		redirect *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT reference, booking_id, amount, currency, redirect_url, created_at
		FROM payment_sessions
		WHERE reference = $1
	`, ref).Scan(&rec.Reference, &rec.BookingID, &rec.Amount, &rec.Currency, &redirect, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrUnknownSession
		}
		return nil, err
	}
	rec.RedirectURL = stringOrEmpty(redirect)
	return &rec, nil
}

func (s *Store) UnsettledSessions(ctx context.Context, cutoff time.Time) ([]payment.SessionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.reference, s.booking_id, s.amount, s.currency, s.redirect_url, s.created_at
		FROM payment_sessions s
		JOIN bookings b ON b.id = s.booking_id
		WHERE s.created_at < $1
		  AND b.payment_status = 'unpaid'
		  AND NOT EXISTS (
		      SELECT 1 FROM payment_settlements ps WHERE ps.session_reference = s.reference
		  )
		ORDER BY s.created_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payment.SessionRecord
	for rows.Next() {
		var (
			rec      payment.SessionRecord
			redirect *string
		)
		if err := rows.Scan(&rec.Reference, &rec.BookingID, &rec.Amount, &rec.Currency, &redirect, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.RedirectURL = stringOrEmpty(redirect)
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
