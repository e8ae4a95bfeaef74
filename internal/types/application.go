package types

import (
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus is the lifecycle status of an application as stored in applications.status.
type ApplicationStatus string

// Canonical statuses
const (
	StatusSubmitted  ApplicationStatus = "postulada"
	StatusInProgress ApplicationStatus = "en_proceso"
	StatusOffer      ApplicationStatus = "oferta"
	StatusAccepted   ApplicationStatus = "aceptada"
	StatusRejected   ApplicationStatus = "rechazada"
	StatusCompleted  ApplicationStatus = "completada"
	StatusFinalized  ApplicationStatus = "finalizada"
	StatusWithdrawn  ApplicationStatus = "retirada"
)

// Legacy spellings still present in older rows
const (
	StatusLegacySubmitted ApplicationStatus = "submitted"
	StatusLegacyPending   ApplicationStatus = "pendiente"
	StatusLegacyReviewed  ApplicationStatus = "revisada"
	StatusLegacyInterview ApplicationStatus = "entrevista"
)

// Decision values recorded alongside a status change
const (
	DecisionOffered   = "offered"
	DecisionRejected  = "rejected"
	DecisionAccepted  = "accepted"
	DecisionDeclined  = "declined"
	DecisionWithdrawn = "withdrawn"
)

// Application is a student's request to fill a posting.
type Application struct {
	ID         uuid.UUID         `json:"id"`
	StudentID  uuid.UUID         `json:"student_id"`
	PostingID  uuid.UUID         `json:"vacancy_id"`
	Status     ApplicationStatus `json:"status"`
	Decision   string            `json:"decision,omitempty"`
	AppliedAt  time.Time         `json:"applied_at"`
	DecisionAt *time.Time        `json:"decision_at,omitempty"`
}

// ApplicationDetail joins an application with its posting, company and student.
type ApplicationDetail struct {
	Application
	PostingTitle     string    `json:"vacancy_title"`
	CompanyID        uuid.UUID `json:"company_id"`
	CompanyName      string    `json:"company_name"`
	CompanyOwnerID   uuid.UUID `json:"-"`
	StudentName      string    `json:"student_name,omitempty"`
	StudentEmail     string    `json:"student_email,omitempty"`
	StudentAvatarURL string    `json:"student_avatar_url,omitempty"`
	StudentCVURL     string    `json:"student_cv_url,omitempty"`
	ProgramName      string    `json:"program_name,omitempty"`
}

// StatusUpdate describes a compare-and-set status change on one application.
// The store applies it only while the row still holds From and the actor
// still owns the row in the given role.
type StatusUpdate struct {
	ApplicationID uuid.UUID
	From          ApplicationStatus
	To            ApplicationStatus
	Decision      string
	DecisionAt    time.Time
	ActorID       uuid.UUID
	ActorRole     Role
}

// Practice status values
const (
	PracticeActive    = "active"
	PracticeCompleted = "completed"
	PracticeCancelled = "cancelled"
)

// Practice is the realized placement once an offer is accepted.
type Practice struct {
	ID            uuid.UUID  `json:"id"`
	StudentID     uuid.UUID  `json:"student_id"`
	PostingID     uuid.UUID  `json:"vacancy_id"`
	ApplicationID uuid.UUID  `json:"application_id"`
	Status        string     `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
