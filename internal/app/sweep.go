package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type SweepOptions struct {
	SweepUnpaid    bool
	UnpaidTTL      time.Duration
	ReconcileAfter time.Duration
}

type SweepReport struct {
	Reconciled int
	Cancelled  int
	Overdue    int
}

// Sweep runs one pass of the background jobs as the actor in ctx. Gateway
// reconciliation runs before the unpaid sweep. A failing job does not stop the
// others; their errors are joined.
func (s *Services) Sweep(ctx context.Context, now time.Time, opts SweepOptions, log *zap.Logger) (SweepReport, error) {
	var (
		report SweepReport
		errs   []error
		err    error
	)

	report.Reconciled, err = s.Reconciler.Reconcile(ctx, now.Add(-opts.ReconcileAfter))
	if err != nil {
		log.Error("payment reconciliation failed", zap.Error(err))
		errs = append(errs, err)
	}

	if opts.SweepUnpaid {
		report.Cancelled, err = s.UnpaidSweeper.Run(ctx, now.Add(-opts.UnpaidTTL))
		if err != nil {
			log.Error("unpaid booking sweep failed", zap.Error(err))
			errs = append(errs, err)
		}
	}

	report.Overdue, err = s.Machine.SweepOverdue(ctx, now)
	if err != nil {
		log.Error("overdue sweep failed", zap.Error(err))
		errs = append(errs, err)
	}

	return report, errors.Join(errs...)
}
