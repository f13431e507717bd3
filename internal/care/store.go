package care

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

type Tx interface {
	workflow.Tx

	InsertAnalysisOrder(ctx context.Context, o *AnalysisOrder) error
	SaveAnalysisResult(ctx context.Context, orderID uuid.UUID, result []byte, documentRef string, at time.Time) error
	InsertTherapyPlan(ctx context.Context, p *TherapyPlan) error

	// InsertApplication returns ErrApplicationExists when the applicant already has a
	// pending application, and marks the applicant's role pending_doctor.
	InsertApplication(ctx context.Context, a *DoctorApplication) error
}

type Store interface {
	InCareTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAnalysisOrder(ctx context.Context, id uuid.UUID) (*AnalysisOrder, error)
	GetTherapyPlan(ctx context.Context, id uuid.UUID) (*TherapyPlan, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*DoctorApplication, error)
}
