package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/catalog"
	"github.com/jonathan/internship-portal/internal/lifecycle"
	"github.com/jonathan/internship-portal/internal/server/middleware"
	"github.com/jonathan/internship-portal/internal/types"
	"golang.org/x/sync/errgroup"
)

// notificationsLimit is how many notifications the student pages load.
const notificationsLimit = 50

// PostingDetail is a posting with its bullet lists and, for a signed-in
// student, the derived view state.
type PostingDetail struct {
	types.Posting
	ModalityLabel     string          `json:"modality_label"`
	CompensationLabel string          `json:"compensation_label"`
	CompanyInitials   string          `json:"company_initials"`
	ActivityLines     []string        `json:"activity_lines"`
	RequirementLines  []string        `json:"requirement_lines"`
	View              *lifecycle.View `json:"view,omitempty"`
}

// ApplicationCard is an application with its display status.
type ApplicationCard struct {
	types.ApplicationDetail
	StatusLabel string         `json:"status_label"`
	StatusTone  lifecycle.Tone `json:"status_tone"`
}

// StudentDashboard is the student's home page payload.
type StudentDashboard struct {
	Profile       *types.Profile       `json:"profile"`
	Active        []ApplicationCard    `json:"active"`
	Completed     []ApplicationCard    `json:"completed"`
	Practices     []types.Practice     `json:"practices"`
	Notifications []types.Notification `json:"notifications"`
	Group         *types.StudentGroup  `json:"group"`
	Favorites     []types.PostingCard  `json:"favorites"`
	Hidden        []types.PostingCard  `json:"hidden"`
}

func applicationCard(d types.ApplicationDetail) ApplicationCard {
	return ApplicationCard{
		ApplicationDetail: d,
		StatusLabel:       lifecycle.Label(d.Status),
		StatusTone:        lifecycle.StatusTone(d.Status),
	}
}

// handleListPrograms lists the academic programs for the registration form
func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := s.store.ListPrograms(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if programs == nil {
		programs = []types.Program{}
	}
	s.jsonResponse(w, http.StatusOK, programs)
}

// handleGetProfile returns the caller's profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := s.store.GetProfile(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if profile == nil {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "profile", ID: userID})
		return
	}
	s.jsonResponse(w, http.StatusOK, profile)
}

// handleSearchPostings runs the student's posting search
func (s *Server) handleSearchPostings(w http.ResponseWriter, r *http.Request) {
	studentID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filters := catalog.Filters{
		Query:        q.Get("q"),
		Location:     q.Get("loc"),
		Modality:     q.Get("modalidad"),
		Compensation: q.Get("comp"),
		Language:     q.Get("idioma"),
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 0 {
			s.writeError(w, r, &ErrValidation{Field: "page", Message: "must be a non-negative integer"})
			return
		}
		filters.Page = page
	}

	result, err := s.catalog.Search(r.Context(), studentID, filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleGetPosting returns one posting; signed-in students also get their view state
func (s *Server) handleGetPosting(w http.ResponseWriter, r *http.Request) {
	postingID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	posting, err := s.store.GetPosting(r.Context(), postingID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if posting == nil {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "posting", ID: postingID})
		return
	}

	detail := PostingDetail{
		Posting:           *posting,
		ModalityLabel:     catalog.FormatModality(posting.Modality),
		CompensationLabel: catalog.FormatCompensation(posting.Compensation),
		CompanyInitials:   catalog.Initials(posting.CompanyName),
		ActivityLines:     catalog.SplitLines(posting.Activities),
		RequirementLines:  catalog.SplitLines(posting.Requirements),
	}

	if userID, err := middleware.GetUserID(r); err == nil && middleware.GetRole(r) == string(types.RoleStudent) {
		view, err := s.lifecycle.StudentView(r.Context(), userID, postingID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		detail.View = view
	}

	s.jsonResponse(w, http.StatusOK, detail)
}

// handleViewState returns the derived view state of the caller on a posting
func (s *Server) handleViewState(w http.ResponseWriter, r *http.Request) {
	studentID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	postingID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	view, err := s.lifecycle.StudentView(r.Context(), studentID, postingID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

// applyRequest carries the re-application confirmation; the body is optional.
type applyRequest struct {
	Confirmed bool `json:"confirmed"`
}

// handleApply applies the caller to a posting. A duplicate apply answers 200.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	studentID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	postingID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req applyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, &ErrValidation{Field: "body", Message: "invalid JSON"})
		return
	}
	if r.URL.Query().Get("confirmed") == "true" {
		req.Confirmed = true
	}

	result, err := s.lifecycle.Apply(r.Context(), studentID, postingID, req.Confirmed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	s.jsonResponse(w, status, result)
}

type marker int

const (
	markerFavorite marker = iota
	markerHidden
)

// handleMarker sets or clears a favorite or hidden marker
func (s *Server) handleMarker(kind marker, on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := caller(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		postingID, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if kind == markerFavorite {
			err = s.catalog.SetFavorite(r.Context(), studentID, postingID, on)
		} else {
			err = s.catalog.SetHidden(r.Context(), studentID, postingID, on)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleMarkedPostings lists the caller's favorite or hidden postings
func (s *Server) handleMarkedPostings(kind marker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := caller(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var cards []types.PostingCard
		if kind == markerFavorite {
			cards, err = s.catalog.Favorites(r.Context(), studentID)
		} else {
			cards, err = s.catalog.Hidden(r.Context(), studentID)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, cards)
	}
}

// handleStudentDashboard loads the student's home page: applications,
// practices, notifications, group and marked postings
func (s *Server) handleStudentDashboard(w http.ResponseWriter, r *http.Request) {
	studentID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		profile       *types.Profile
		details       []types.ApplicationDetail
		practices     []types.Practice
		notifications []types.Notification
		group         *types.StudentGroup
		favorites     []types.PostingCard
		hidden        []types.PostingCard
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		profile, err = s.store.GetProfile(ctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		details, err = s.store.ListStudentApplicationDetails(ctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		practices, err = s.store.ListStudentPractices(ctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		notifications, err = s.store.ListNotifications(ctx, studentID, notificationsLimit)
		return err
	})
	g.Go(func() (err error) {
		group, err = s.store.GetStudentGroup(ctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		favorites, err = s.catalog.Favorites(ctx, studentID)
		return err
	})
	g.Go(func() (err error) {
		hidden, err = s.catalog.Hidden(ctx, studentID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.writeError(w, r, err)
		return
	}

	apps := make([]types.Application, len(details))
	byID := make(map[uuid.UUID]types.ApplicationDetail, len(details))
	for i, d := range details {
		apps[i] = d.Application
		byID[d.ID] = d
	}
	active, completed := lifecycle.SplitApplications(apps)

	dashboard := StudentDashboard{
		Profile:       profile,
		Active:        make([]ApplicationCard, 0, len(active)),
		Completed:     make([]ApplicationCard, 0, len(completed)),
		Practices:     practices,
		Notifications: notifications,
		Group:         group,
		Favorites:     favorites,
		Hidden:        hidden,
	}
	for _, a := range active {
		dashboard.Active = append(dashboard.Active, applicationCard(byID[a.ID]))
	}
	for _, a := range completed {
		dashboard.Completed = append(dashboard.Completed, applicationCard(byID[a.ID]))
	}
	if dashboard.Practices == nil {
		dashboard.Practices = []types.Practice{}
	}
	if dashboard.Notifications == nil {
		dashboard.Notifications = []types.Notification{}
	}

	s.jsonResponse(w, http.StatusOK, dashboard)
}

// handleListOffers lists the caller's applications holding an open offer
func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	studentID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	details, err := s.store.ListStudentApplicationDetails(r.Context(), studentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	offers := []ApplicationCard{}
	for _, d := range details {
		if lifecycle.NormalizeStatus(d.Status) == types.StatusOffer {
			offers = append(offers, applicationCard(d))
		}
	}
	s.jsonResponse(w, http.StatusOK, offers)
}

// handleListNotifications lists the caller's notifications, newest first
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	studentID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	notifications, err := s.store.ListNotifications(r.Context(), studentID, notificationsLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []types.Notification{}
	}
	s.jsonResponse(w, http.StatusOK, notifications)
}

// handleMarkNotificationRead marks one of the caller's notifications as read
func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	studentID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ok, err := s.store.MarkNotificationRead(r.Context(), studentID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "notification", ID: id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStudentDecision accepts, declines or withdraws one of the caller's applications
func (s *Server) handleStudentDecision(w http.ResponseWriter, r *http.Request) {
	studentID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	applicationID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var result *lifecycle.DecisionResult
	switch action := r.PathValue("action"); action {
	case "accept":
		result, err = s.lifecycle.AcceptOffer(r.Context(), studentID, applicationID)
	case "decline":
		result, err = s.lifecycle.DeclineOffer(r.Context(), studentID, applicationID)
	case "withdraw":
		result, err = s.lifecycle.Withdraw(r.Context(), studentID, applicationID)
	default:
		s.errorResponse(w, http.StatusNotFound, "unknown action: "+action)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}
