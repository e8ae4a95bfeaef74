package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/catalog"
	"github.com/jonathan/internship-portal/internal/db"
	"github.com/jonathan/internship-portal/internal/events"
	"github.com/jonathan/internship-portal/internal/lifecycle"
	"github.com/jonathan/internship-portal/internal/types"
)

// companyApplicationsLimit caps the company applications list.
const companyApplicationsLimit = 200

// ownedCompany loads the company managed by the caller.
func (s *Server) ownedCompany(ctx context.Context, ownerID uuid.UUID) (*types.Company, error) {
	c, err := s.store.GetCompanyByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &lifecycle.ErrNotFound{Resource: "company", ID: ownerID}
	}
	return c, nil
}

// handleGetCompany returns the caller's company
func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	ownerID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.ownedCompany(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, c)
}

// handleUpdateCompany stores the editable company fields
func (s *Server) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	ownerID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.UpdateCompanyRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.store.UpdateCompany(r.Context(), ownerID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if c == nil {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "company", ID: ownerID})
		return
	}
	s.jsonResponse(w, http.StatusOK, c)
}

// handleCompanyDashboard returns the company KPIs
func (s *Server) handleCompanyDashboard(w http.ResponseWriter, r *http.Request) {
	ownerID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dashboard, err := s.store.GetCompanyDashboard(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if dashboard == nil || dashboard.Company == nil {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "company", ID: ownerID})
		return
	}
	if dashboard.RecentApplications == nil {
		dashboard.RecentApplications = []types.ApplicationDetail{}
	}
	s.jsonResponse(w, http.StatusOK, dashboard)
}

// handleListCompanyPostings lists every posting of the caller's company
func (s *Server) handleListCompanyPostings(w http.ResponseWriter, r *http.Request) {
	ownerID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.ownedCompany(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	postings, err := s.store.ListCompanyPostings(r.Context(), c.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if postings == nil {
		postings = []types.Posting{}
	}
	s.jsonResponse(w, http.StatusOK, postings)
}

// handleCreatePosting publishes a vacancy for the caller's company.
// Modality may arrive as a UI label and is stored in its canonical form.
func (s *Server) handleCreatePosting(w http.ResponseWriter, r *http.Request) {
	ownerID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.CreatePostingRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	modality := catalog.ModalityFromUI(req.Modality)
	if modality == "" {
		s.writeError(w, r, &ErrValidation{Field: "modality", Message: "must be presencial, híbrido or remoto"})
		return
	}
	req.Modality = modality
	req.Title = strings.TrimSpace(req.Title)

	c, err := s.ownedCompany(r.Context(), ownerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	posting, err := s.store.CreatePosting(r.Context(), c.ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.WithField("posting_id", posting.ID).WithField("company_id", c.ID).Info("posting created")
	s.jsonResponse(w, http.StatusCreated, posting)
}

// handleUpdatePostingStatus publishes or closes one of the caller's postings
func (s *Server) handleUpdatePostingStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	postingID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.UpdatePostingStatusRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ok, err := s.store.UpdatePostingStatus(r.Context(), ownerID, postingID, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "posting", ID: postingID})
		return
	}

	// open views of this posting re-derive their state
	ev := events.Event{Kind: events.PostingChanged, PostingID: postingID, Status: req.Status, At: s.now()}
	if err := s.bus.Publish(r.Context(), ev); err != nil {
		s.log.WithError(err).WithField("posting_id", postingID).Warn("failed to publish posting change")
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": req.Status})
}

// handleListCompanyApplications lists applications to the caller's postings.
// vacancy_id narrows to one posting; status takes comma-separated canonical
// statuses and also matches their legacy spellings.
func (s *Server) handleListCompanyApplications(w http.ResponseWriter, r *http.Request) {
	ownerID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	filter := db.ApplicationFilter{OwnerID: ownerID, Limit: companyApplicationsLimit}
	q := r.URL.Query()
	if raw := q.Get("vacancy_id"); raw != "" {
		postingID, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, r, &ErrValidation{Field: "vacancy_id", Message: "must be a UUID"})
			return
		}
		filter.PostingID = &postingID
	}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			filter.Statuses = append(filter.Statuses, lifecycle.StoredSpellings(types.ApplicationStatus(part))...)
		}
	}

	details, err := s.store.ListCompanyApplications(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cards := make([]ApplicationCard, 0, len(details))
	for _, d := range details {
		cards = append(cards, applicationCard(d))
	}
	s.jsonResponse(w, http.StatusOK, cards)
}

// handleCompanyDecision moves one application through the company side of the lifecycle.
// A failed student notification still answers 200 with a warning.
func (s *Server) handleCompanyDecision(w http.ResponseWriter, r *http.Request) {
	actorID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	applicationID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	var result *lifecycle.DecisionResult
	switch action := r.PathValue("action"); action {
	case "offer":
		result, err = s.lifecycle.SendOffer(ctx, actorID, applicationID)
	case "reject":
		result, err = s.lifecycle.Reject(ctx, actorID, applicationID)
	case "start":
		result, err = s.lifecycle.StartPractice(ctx, actorID, applicationID)
	case "complete":
		result, err = s.lifecycle.CompletePractice(ctx, actorID, applicationID, false)
	case "finalize":
		result, err = s.lifecycle.CompletePractice(ctx, actorID, applicationID, true)
	case "withdraw":
		result, err = s.lifecycle.Withdraw(ctx, actorID, applicationID)
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
