package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
)

// MarkOverdue takes the system-only edge into overdue. The actor comes from ctx.
func (m *Machine) MarkOverdue(ctx context.Context, planID uuid.UUID, note string) (Result, error) {
	actor, err := audit.ActorFrom(ctx)
	if err != nil {
		return Result{}, err
	}
	return m.Execute(ctx, Request{
		Kind:   audit.KindTherapyPlan,
		ID:     planID,
		Target: TherapyOverdue,
		Actor:  actor,
		Note:   note,
		system: true,
	})
}

// SweepOverdue marks every therapy plan whose follow-up date passed before now.
// Plans that moved on concurrently are skipped.
func (m *Machine) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	ids, err := m.store.OverdueTherapyPlans(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find overdue therapy plans: %w", err)
	}

	marked := 0
	for _, id := range ids {
		_, err := m.MarkOverdue(ctx, id, "follow-up date elapsed")
		switch {
		case err == nil:
			marked++
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
			continue
		case errors.Is(err, audit.ErrMissingActor):
			return marked, err
		default:
			m.log.Error("mark overdue failed", zap.String("plan_id", id.String()), zap.Error(err))
		}
	}
	return marked, nil
}
