// Package review decides doctor applications.
package review

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/audit"
	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

// Reviewer approves or rejects pending doctor applications. Approval promotes the
// applicant to a doctor in the same transaction as the status change.
type Reviewer struct {
	machine *workflow.Machine
}

func NewReviewer(machine *workflow.Machine) *Reviewer {
	return &Reviewer{machine: machine}
}

func (r *Reviewer) Approve(ctx context.Context, applicationID, reviewerID uuid.UUID) (workflow.Result, error) {
	return r.machine.Transition(ctx, audit.KindDoctorApplication, applicationID, workflow.ApplicationApproved, reviewerID, "")
}

func (r *Reviewer) Reject(ctx context.Context, applicationID, reviewerID uuid.UUID, reason string) (workflow.Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return workflow.Result{}, workflow.NewValidationError("reason", "is required when rejecting")
	}
	return r.machine.Transition(ctx, audit.KindDoctorApplication, applicationID, workflow.ApplicationRejected, reviewerID, reason)
}
