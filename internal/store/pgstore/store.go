// Package pgstore persists every aggregate in Postgres through pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

const uniqueViolation = "23505"

// dbtx is what both the pool and an open transaction offer.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ workflow.Store = (*Store)(nil)
	_ booking.Store  = (*Store)(nil)
	_ payment.Store  = (*Store)(nil)
	_ care.Store     = (*Store)(nil)
	_ audit.Reader   = (*Store)(nil)
	_ audit.Appender = (*Store)(nil)
)

func (s *Store) run(ctx context.Context, fn func(t *tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(ptx pgx.Tx) error {
		return fn(&tx{db: ptx})
	})
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx workflow.Tx) error) error {
	return s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (s *Store) InBookingTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (s *Store) InPaymentTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
	return s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (s *Store) InCareTx(ctx context.Context, fn func(ctx context.Context, tx care.Tx) error) error {
	return s.run(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (s *Store) AppendHistory(ctx context.Context, rec audit.Record) (audit.Record, error) {
	return appendHistory(ctx, s.pool, rec)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func tableFor(kind audit.Kind) (string, error) {
	switch kind {
	case audit.KindBooking:
		return "bookings", nil
	case audit.KindAnalysisOrder:
		return "analysis_orders", nil
	case audit.KindTherapyPlan:
		return "therapy_plans", nil
	case audit.KindDoctorApplication:
		return "doctor_applications", nil
	}
	return "", fmt.Errorf("%w: %q", workflow.ErrUnknownKind, kind)
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", workflow.ErrNotFound, what, id)
	}
	return err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
