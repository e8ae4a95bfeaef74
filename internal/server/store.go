package server

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/catalog"
	"github.com/jonathan/internship-portal/internal/db"
	"github.com/jonathan/internship-portal/internal/lifecycle"
	"github.com/jonathan/internship-portal/internal/types"
)

// UserStore is the account persistence used by UserService.
type UserStore interface {
	CheckEmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, fullName, email, passwordHash string, role types.Role) (uuid.UUID, error)
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// Store is everything the HTTP handlers read and write. *db.DB implements it.
type Store interface {
	lifecycle.Store
	catalog.Store
	UserStore

	Ping(ctx context.Context) error

	// Student
	ListStudentApplicationDetails(ctx context.Context, studentID uuid.UUID) ([]types.ApplicationDetail, error)
	ListNotifications(ctx context.Context, studentID uuid.UUID, limit int) ([]types.Notification, error)
	MarkNotificationRead(ctx context.Context, studentID, id uuid.UUID) (bool, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*types.Profile, error)
	SetCVURL(ctx context.Context, id uuid.UUID, url string) error
	SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error
	ListPrograms(ctx context.Context) ([]types.Program, error)

	// Company
	GetCompanyByOwner(ctx context.Context, ownerID uuid.UUID) (*types.Company, error)
	UpdateCompany(ctx context.Context, ownerID uuid.UUID, req types.UpdateCompanyRequest) (*types.Company, error)
	SetCompanyLogo(ctx context.Context, ownerID uuid.UUID, url string) error
	GetCompanyDashboard(ctx context.Context, ownerID uuid.UUID) (*types.CompanyDashboard, error)
	ListCompanyPostings(ctx context.Context, companyID uuid.UUID) ([]types.Posting, error)
	CreatePosting(ctx context.Context, companyID uuid.UUID, req types.CreatePostingRequest) (*types.Posting, error)
	UpdatePostingStatus(ctx context.Context, ownerID, postingID uuid.UUID, status string) (bool, error)
	ListCompanyApplications(ctx context.Context, f db.ApplicationFilter) ([]types.ApplicationDetail, error)

	// Professor
	UpdateProfessorProfile(ctx context.Context, id uuid.UUID, req types.ProfessorProfileRequest) (*types.Profile, error)
	ListGroups(ctx context.Context, professorID uuid.UUID) ([]types.Group, error)
	GetGroup(ctx context.Context, professorID, groupID uuid.UUID) (*types.Group, error)
	CreateGroup(ctx context.Context, professorID uuid.UUID, req types.CreateGroupRequest) (*types.Group, error)
	UpdateGroup(ctx context.Context, professorID, groupID uuid.UUID, req types.UpdateGroupRequest) (*types.Group, error)
	DeleteGroup(ctx context.Context, professorID, groupID uuid.UUID) (bool, error)
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]types.GroupMember, error)
	AddGroupMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error)
	RemoveGroupMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error)
	SearchStudents(ctx context.Context, term string) ([]types.StudentSummary, error)
	GetStudentGroup(ctx context.Context, studentID uuid.UUID) (*types.StudentGroup, error)
}

var _ Store = (*db.DB)(nil)
