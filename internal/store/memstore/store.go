// Package memstore keeps every aggregate in process memory. It backs the booking
// race simulator and serves as the store in package tests.
//
// A transaction holds the store mutex from start to finish and works on the live
// state; on error the state is restored from a snapshot taken at the start.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/booking"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

// ErrCheckViolation mirrors a failed table CHECK constraint in the SQL schema.
var ErrCheckViolation = errors.New("check constraint violated")

type settlementKey struct {
	ref     string
	outcome payment.Outcome
}

type state struct {
	bookings     map[uuid.UUID]booking.Booking
	orders       map[uuid.UUID]care.AnalysisOrder
	plans        map[uuid.UUID]care.TherapyPlan
	applications map[uuid.UUID]care.DoctorApplication
	users        map[uuid.UUID]care.User
	profiles     map[uuid.UUID]care.DoctorProfile
	sessions     map[string]payment.SessionRecord
	settlements  map[settlementKey]time.Time
	history      []audit.Record
	lastID       int64
}

func newState() *state {
	return &state{
		bookings:     make(map[uuid.UUID]booking.Booking),
		orders:       make(map[uuid.UUID]care.AnalysisOrder),
		plans:        make(map[uuid.UUID]care.TherapyPlan),
		applications: make(map[uuid.UUID]care.DoctorApplication),
		users:        make(map[uuid.UUID]care.User),
		profiles:     make(map[uuid.UUID]care.DoctorProfile),
		sessions:     make(map[string]payment.SessionRecord),
		settlements:  make(map[settlementKey]time.Time),
	}
}

func (s *state) snapshot() *state {
	c := &state{
		bookings:     cloneMap(s.bookings),
		orders:       cloneMap(s.orders),
		plans:        cloneMap(s.plans),
		applications: cloneMap(s.applications),
		users:        cloneMap(s.users),
		profiles:     cloneMap(s.profiles),
		sessions:     cloneMap(s.sessions),
		settlements:  cloneMap(s.settlements),
		history:      append([]audit.Record(nil), s.history...),
		lastID:       s.lastID,
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
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
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.st.snapshot()
	if err := fn(&tx{st: s.st}); err != nil {
		s.st = saved
		return err
	}
	return nil
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

// AppendHistory writes a record outside any caller transaction.
func (s *Store) AppendHistory(ctx context.Context, rec audit.Record) (audit.Record, error) {
	var out audit.Record
	err := s.run(ctx, func(t *tx) error {
		var err error
		out, err = t.AppendHistory(ctx, rec)
		return err
	})
	return out, err
}

// Ping satisfies the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
