package types

import (
	"time"

	"github.com/google/uuid"
)

// Modality values as stored in vacancies.modality
const (
	ModalityOnSite = "presencial"
	ModalityHybrid = "híbrido"
	ModalityRemote = "remoto"
)

// Posting status values. Both spellings of "active" exist in stored data.
const (
	PostingActive    = "activa"
	PostingActiveAlt = "active"
	PostingInactive  = "inactiva"
)

// Posting is an internship opening published by a company.
type Posting struct {
	ID           uuid.UUID `json:"id"`
	CompanyID    uuid.UUID `json:"company_id"`
	CompanyName  string    `json:"company_name,omitempty"`
	CompanyLogo  string    `json:"company_logo_url,omitempty"`
	Title        string    `json:"title"`
	Modality     string    `json:"modality"`
	Compensation string    `json:"compensation"`
	Language     string    `json:"language"`
	Activities   string    `json:"activities,omitempty"`
	Requirements string    `json:"requirements,omitempty"`
	LocationText string    `json:"location_text,omitempty"`
	RatingAvg    float64   `json:"rating_avg"`
	RatingCount  int       `json:"rating_count"`
	Status       string    `json:"status"`
	SpotsTotal   int       `json:"spots_total"`
	SpotsTaken   int       `json:"spots_taken"`
	SpotsLeft    int       `json:"spots_left"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsOpen reports whether the posting accepts new applications.
func (p *Posting) IsOpen() bool {
	return (p.Status == PostingActive || p.Status == PostingActiveAlt) && p.SpotsLeft > 0
}

// CreatePostingRequest is the company-side payload for publishing a vacancy.
type CreatePostingRequest struct {
	Title        string      `json:"title" validate:"required,min=3"`
	Modality     string      `json:"modality" validate:"required"`
	Compensation string      `json:"compensation"`
	Language     string      `json:"language" validate:"omitempty,oneof=ES EN"`
	Activities   string      `json:"activities"`
	Requirements string      `json:"requirements"`
	LocationText string      `json:"location_text"`
	SpotsTotal   int         `json:"spots_total" validate:"required,min=1"`
	ProgramIDs   []uuid.UUID `json:"program_ids" validate:"required,min=1"`
}

// PostingQuery is the store-level search over open postings for one program.
type PostingQuery struct {
	ProgramID    uuid.UUID
	Text         string
	Location     string
	Modality     string
	Compensation []string
	Language     string
	ExcludeIDs   []uuid.UUID
	Limit        int
	Offset       int
}

// PostingCard is a search result annotated with the student's markers.
type PostingCard struct {
	Posting
	Favorite bool `json:"favorite"`
	Hidden   bool `json:"hidden,omitempty"`
	Applied  bool `json:"applied"`
	// ModalityLabel and CompensationLabel are the display forms of the stored values.
	ModalityLabel     string `json:"modality_label"`
	CompensationLabel string `json:"compensation_label"`
	CompanyInitials   string `json:"company_initials"`
}

// UpdatePostingStatusRequest publishes or closes a vacancy.
type UpdatePostingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=activa active inactiva"`
}
