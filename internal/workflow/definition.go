package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/events"
)

// Change is what guards and effects see: the request plus the locked current status.
type Change struct {
	Request
	From Status
	At   time.Time
}

type (
	Guard  func(ctx context.Context, tx Tx, c Change) error
	Effect func(ctx context.Context, tx Tx, c Change) ([]events.Event, error)
)

// Definition is the fixed lifecycle of one entity kind.
type Definition struct {
	Kind    audit.Kind
	Initial Status
	Table   Table

	// System edges are only taken by time-based checks, never by a user request.
	System Table

	Guard Guard

	// Prepare writes columns that must already be set when the status changes.
	Prepare Guard
	Effect  Effect
}

func (d Definition) known(s Status) bool {
	if s == d.Initial {
		return true
	}
	if _, ok := d.Table.statuses()[s]; ok {
		return true
	}
	_, ok := d.System.statuses()[s]
	return ok
}

func (d Definition) allows(from, to Status, system bool) bool {
	if system {
		return d.System.Allows(from, to)
	}
	return d.Table.Allows(from, to)
}

type Options struct {
	RequirePaymentForConfirm bool
}

func Definitions(opts Options) []Definition {
	return []Definition{
		BookingDefinition(opts),
		AnalysisOrderDefinition(),
		TherapyPlanDefinition(),
		DoctorApplicationDefinition(),
	}
}

// BookingDefinition follows the persisted appointment enum. Completion of a past
// appointment is a reporting concept and has no status of its own.
func BookingDefinition(opts Options) Definition {
	return Definition{
		Kind:    audit.KindBooking,
		Initial: BookingPending,
		Table: Table{
			BookingPending:   {BookingConfirmed, BookingDeclined, BookingCancelled},
			BookingConfirmed: {BookingCancelled},
		},
		Guard: func(ctx context.Context, tx Tx, c Change) error {
			if c.Target != BookingConfirmed || !opts.RequirePaymentForConfirm {
				return nil
			}
			paid, err := tx.BookingPaymentStatus(ctx, c.ID)
			if err != nil {
				return err
			}
			if paid != PaymentPaid {
				return ErrPaymentRequired
			}
			return nil
		},
	}
}

func AnalysisOrderDefinition() Definition {
	return Definition{
		Kind:    audit.KindAnalysisOrder,
		Initial: AnalysisUnconfirmed,
		Table: Table{
			AnalysisUnconfirmed:   {AnalysisConfirmed, AnalysisCancelled},
			AnalysisConfirmed:     {AnalysisPendingResult, AnalysisCancelled},
			AnalysisPendingResult: {AnalysisCompleted, AnalysisCancelled},
		},
	}
}

func TherapyPlanDefinition() Definition {
	return Definition{
		Kind:    audit.KindTherapyPlan,
		Initial: TherapyDraft,
		Table: Table{
			TherapyDraft:     {TherapyPending},
			TherapyPending:   {TherapyConfirmed},
			TherapyConfirmed: {TherapyActive},
			TherapyActive:    {TherapyOnHold, TherapyCompleted, TherapyCancelled},
			TherapyOnHold:    {TherapyActive},
			TherapyOverdue:   {TherapyActive, TherapyCompleted, TherapyCancelled},
		},
		System: Table{
			TherapyDraft:     {TherapyOverdue},
			TherapyPending:   {TherapyOverdue},
			TherapyConfirmed: {TherapyOverdue},
			TherapyActive:    {TherapyOverdue},
			TherapyOnHold:    {TherapyOverdue},
		},
	}
}

func DoctorApplicationDefinition() Definition {
	return Definition{
		Kind:    audit.KindDoctorApplication,
		Initial: ApplicationPending,
		Table: Table{
			ApplicationPending: {ApplicationApproved, ApplicationRejected},
		},
		Guard: func(ctx context.Context, tx Tx, c Change) error {
			if c.Target == ApplicationRejected && strings.TrimSpace(c.Note) == "" {
				return NewValidationError("reason", "is required when rejecting")
			}
			return nil
		},
		Prepare: func(ctx context.Context, tx Tx, c Change) error {
			reason := ""
			if c.Target == ApplicationRejected {
				reason = strings.TrimSpace(c.Note)
			}
			return tx.RecordReview(ctx, c.ID, c.Actor, reason, c.At)
		},
		Effect: func(ctx context.Context, tx Tx, c Change) ([]events.Event, error) {
			if c.Target != ApplicationApproved {
				return nil, nil
			}
			applicant, err := tx.PromoteApplicant(ctx, c.ID)
			if err != nil {
				return nil, err
			}
			return []events.Event{{
				Type:       events.TypeApplicantPromoted,
				Kind:       string(audit.KindDoctorApplication),
				EntityID:   applicant,
				To:         "doctor",
				ActorID:    c.Actor,
				Note:       "application " + c.ID.String(),
				OccurredAt: c.At,
			}}, nil
		},
	}
}

// actionFor names the history action for entering status to.
func actionFor(to Status) audit.Action {
	switch strings.ToLower(string(to)) {
	case "confirmed":
		return audit.ActionConfirmed
	case "cancelled":
		return audit.ActionCancelled
	case "declined":
		return audit.ActionDeclined
	case "approved":
		return audit.ActionApproved
	case "rejected":
		return audit.ActionRejected
	case "overdue":
		return audit.ActionMarkedOverdue
	}
	return audit.ActionStatusChanged
}
