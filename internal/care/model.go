// Package care creates the clinical aggregates whose lifecycles the workflow machine drives.
package care

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/loramulaku/LABcourse-sub002/internal/workflow"
)

var ErrApplicationExists = errors.New("applicant already has an open application")

type AnalysisOrder struct {
	ID                uuid.UUID
	RequesterID       uuid.UUID
	AnalysisTypeID    uuid.UUID
	LaboratoryID      uuid.UUID
	Status            workflow.Status
	Result            []byte // JSON, set on upload
	ResultDocumentRef string
	AppointmentAt     *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type TherapyPlan struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	Status       workflow.Status
	Priority     Priority
	StartDate    *time.Time
	EndDate      *time.Time
	FollowUpDate *time.Time
	Diagnosis    string
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DoctorApplication struct {
	ID              uuid.UUID
	ApplicantID     uuid.UUID
	LicenseNumber   string
	Field           string
	ExperienceYears int
	Status          workflow.Status
	ReviewerID      *uuid.UUID
	DecidedAt       *time.Time
	RejectionReason string
	CreatedAt       time.Time
}

// Roles stored on users.
const (
	RoleUser          = "user"
	RolePendingDoctor = "pending_doctor"
	RoleDoctor        = "doctor"
)

type User struct {
	ID        uuid.UUID
	FullName  string
	Email     string
	Role      string
	CreatedAt time.Time
}

// DoctorProfile is provisioned from the application when it is approved.
type DoctorProfile struct {
	UserID          uuid.UUID
	Specialization  string
	LicenseNumber   string
	ExperienceYears int
	ConsultationFee int64
	Available       bool
	CreatedAt       time.Time
}
