package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/events"
)

type Request struct {
	Kind   audit.Kind
	ID     uuid.UUID
	Target Status
	Actor  uuid.UUID
	Note   string

	// Action overrides the history action derived from Target.
	Action audit.Action

	// Require is an extra guard checked under the row lock, after the kind's own guard.
	Require Guard

	system bool
}

type Result struct {
	Kind   audit.Kind
	ID     uuid.UUID
	From   Status
	To     Status
	Record audit.Record

	// Events are published once the surrounding transaction has committed.
	Events []events.Event
}

// Machine evaluates guarded transitions for every registered entity kind.
type Machine struct {
	store     Store
	ledger    *audit.Ledger
	publisher events.Publisher
	log       *zap.Logger
	defs      map[audit.Kind]Definition
	now       func() time.Time
}

func NewMachine(store Store, ledger *audit.Ledger, publisher events.Publisher, log *zap.Logger, defs ...Definition) *Machine {
	m := &Machine{
		store:     store,
		ledger:    ledger,
		publisher: publisher,
		log:       log,
		defs:      make(map[audit.Kind]Definition, len(defs)),
		now:       time.Now,
	}
	for _, d := range defs {
		m.defs[d.Kind] = d
	}
	return m
}

func (m *Machine) Definition(kind audit.Kind) (Definition, bool) {
	d, ok := m.defs[kind]
	return d, ok
}

// Transition moves one entity to target in its own transaction.
func (m *Machine) Transition(ctx context.Context, kind audit.Kind, id uuid.UUID, target Status, actor uuid.UUID, note string) (Result, error) {
	return m.Execute(ctx, Request{
		Kind:   kind,
		ID:     id,
		Target: target,
		Actor:  actor,
		Note:   note,
	})
}

func (m *Machine) Execute(ctx context.Context, req Request) (Result, error) {
	var res Result
	err := m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		res, err = m.Apply(ctx, tx, req)
		return err
	})
	if err != nil {
		m.log.Info("transition rejected",
			zap.String("kind", string(req.Kind)),
			zap.String("entity_id", req.ID.String()),
			zap.String("target", string(req.Target)),
			zap.Error(err),
		)
		return Result{}, err
	}

	m.log.Info("transition applied",
		zap.String("kind", string(res.Kind)),
		zap.String("entity_id", res.ID.String()),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
		zap.String("actor", req.Actor.String()),
	)
	m.Publish(ctx, res)
	return res, nil
}

// Apply runs a transition inside a transaction owned by the caller. The caller must
// call Publish after committing.
func (m *Machine) Apply(ctx context.Context, tx Tx, req Request) (Result, error) {
	def, ok := m.defs[req.Kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	if req.ID == uuid.Nil {
		return Result{}, NewValidationError("id", "is required")
	}
	if req.Actor == uuid.Nil {
		return Result{}, NewValidationError("actor_id", "is required")
	}
	if !def.known(req.Target) {
		return Result{}, NewValidationError("target_status", fmt.Sprintf("%q is not a %s status", req.Target, req.Kind))
	}

	from, err := tx.LockStatus(ctx, req.Kind, req.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("lock %s %s: %w", req.Kind, req.ID, err)
	}

	if !def.allows(from, req.Target, req.system) {
		return Result{}, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, req.Kind, from, req.Target)
	}

	change := Change{Request: req, From: from, At: m.now().UTC()}

	if def.Guard != nil {
		if err := def.Guard(ctx, tx, change); err != nil {
			return Result{}, err
		}
	}

	if req.Require != nil {
		if err := req.Require(ctx, tx, change); err != nil {
			return Result{}, err
		}
	}

	if def.Prepare != nil {
		if err := def.Prepare(ctx, tx, change); err != nil {
			return Result{}, fmt.Errorf("prepare %s: %w", req.Kind, err)
		}
	}

	if err := tx.UpdateStatus(ctx, req.Kind, req.ID, req.Target, change.At); err != nil {
		return Result{}, fmt.Errorf("update %s status: %w", req.Kind, err)
	}

	action := req.Action
	if action == "" {
		action = actionFor(req.Target)
	}
	rec, err := m.ledger.Append(ctx, tx, audit.Record{
		Kind:        req.Kind,
		EntityID:    req.ID,
		Action:      action,
		OldStatus:   string(from),
		NewStatus:   string(req.Target),
		PerformedBy: req.Actor,
		Note:        req.Note,
		CreatedAt:   change.At,
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Kind:   req.Kind,
		ID:     req.ID,
		From:   from,
		To:     req.Target,
		Record: rec,
		Events: []events.Event{{
			Type:       events.TypeStatusChanged,
			Kind:       string(req.Kind),
			EntityID:   req.ID,
			From:       string(from),
			To:         string(req.Target),
			ActorID:    req.Actor,
			Note:       req.Note,
			OccurredAt: change.At,
		}},
	}

	if def.Effect != nil {
		evs, err := def.Effect(ctx, tx, change)
		if err != nil {
			return Result{}, fmt.Errorf("apply %s effect: %w", req.Kind, err)
		}
		res.Events = append(res.Events, evs...)
	}

	return res, nil
}

func (m *Machine) Publish(ctx context.Context, res Result) {
	for _, ev := range res.Events {
		events.Emit(ctx, m.publisher, m.log, ev)
	}
}
