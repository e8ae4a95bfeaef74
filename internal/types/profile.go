package types

import (
	"time"

	"github.com/google/uuid"
)

// Role of an account
type Role string

const (
	RoleStudent   Role = "student"
	RoleCompany   Role = "company"
	RoleProfessor Role = "professor"
)

// Known reports whether r is one of the portal's account roles.
func (r Role) Known() bool {
	switch r {
	case RoleStudent, RoleCompany, RoleProfessor:
		return true
	}
	return false
}

// Profile is the per-account record shared by every role.
type Profile struct {
	ID          uuid.UUID  `json:"id"`
	Role        Role       `json:"role"`
	FullName    string     `json:"full_name"`
	Email       string     `json:"email"`
	ProgramID   *uuid.UUID `json:"program_id,omitempty"`
	Program     *Program   `json:"program,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	CVURL       string     `json:"cv_url,omitempty"`
	Office      string     `json:"office,omitempty"`
	OfficeHours string     `json:"office_hours,omitempty"`
	Institute   string     `json:"institute,omitempty"`
	InstituteID *uuid.UUID `json:"institute_id,omitempty"`
}

// Program is an academic program a student belongs to.
type Program struct {
	ID      uuid.UUID `json:"id"`
	Key     string    `json:"key"`
	Name    string    `json:"name"`
	Faculty string    `json:"faculty,omitempty"`
}

// Institute is a professor's academic unit.
type Institute struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

// ProfessorProfileRequest updates the professor-only profile fields.
type ProfessorProfileRequest struct {
	Office      string `json:"office" validate:"max=120"`
	OfficeHours string `json:"office_hours" validate:"max=200"`
	Institute   string `json:"institute" validate:"max=200"`
}

// Company is the organisation publishing postings. OwnerID is the profile that manages it.
type Company struct {
	ID           uuid.UUID  `json:"id"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Industry     string     `json:"industry,omitempty"`
	Website      string     `json:"website,omitempty"`
	Description  string     `json:"description,omitempty"`
	LogoURL      string     `json:"logo_url,omitempty"`
	LocationText string     `json:"location_text,omitempty"`
	Status       string     `json:"status,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// UpdateCompanyRequest is the editable subset of Company.
type UpdateCompanyRequest struct {
	Name         string `json:"name" validate:"required,min=1"`
	Email        string `json:"email" validate:"omitempty,email"`
	Industry     string `json:"industry"`
	Website      string `json:"website" validate:"omitempty,url"`
	Description  string `json:"description"`
	LocationText string `json:"location_text"`
}

// CompanyDashboard holds the KPIs shown on the company panel.
type CompanyDashboard struct {
	Company            *Company            `json:"company"`
	PostingsTotal      int                 `json:"postings_total"`
	PostingsActive     int                 `json:"postings_active"`
	ApplicationsTotal  int                 `json:"applications_total"`
	RecentApplications []ApplicationDetail `json:"recent_applications"`
}

// Notification is a message addressed to a student.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	StudentID uuid.UUID  `json:"student_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ActionURL string     `json:"action_url,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Group is a professor-managed student roster.
type Group struct {
	ID          uuid.UUID `json:"id"`
	ProfessorID uuid.UUID `json:"professor_id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Term        string    `json:"term,omitempty"`
	Hidden      bool      `json:"hidden"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// StudentGroup is the group a student belongs to, with its professor.
type StudentGroup struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Color          string    `json:"color"`
	ProfessorID    uuid.UUID `json:"professor_id"`
	ProfessorName  string    `json:"professor_name"`
	ProfessorEmail string    `json:"professor_email"`
}

// DefaultGroupColor is used when a group is created without a color.
const DefaultGroupColor = "#1F3354"

// CreateGroupRequest creates a group.
type CreateGroupRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=120"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
	Term  string `json:"term" validate:"max=40"`
}

// UpdateGroupRequest patches a group; nil fields are left unchanged.
type UpdateGroupRequest struct {
	Name   *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Color  *string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Term   *string `json:"term,omitempty" validate:"omitempty,max=40"`
	Hidden *bool   `json:"hidden,omitempty"`
}

// StudentSummary is the compact student view used by rosters and search.
type StudentSummary struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	ProgramName string    `json:"program_name,omitempty"`
	AddedAt     time.Time `json:"added_at,omitempty"`
}

// MemberApplication is the latest application of a group member.
type MemberApplication struct {
	ID           uuid.UUID         `json:"id"`
	Status       ApplicationStatus `json:"status"`
	Decision     string            `json:"decision,omitempty"`
	PostingTitle string            `json:"vacancy_title"`
	CompanyName  string            `json:"company_name"`
	AppliedAt    time.Time         `json:"applied_at"`
}

// GroupMember is a student of a group with their placement progress.
// HasOffer is set while any application holds an offer, Placed once an
// offer was accepted or a practice is active.
type GroupMember struct {
	StudentSummary
	Application    *MemberApplication `json:"application,omitempty"`
	PracticeStatus string             `json:"practice_status,omitempty"`
	HasOffer       bool               `json:"has_offer"`
	Placed         bool               `json:"placed"`
}
