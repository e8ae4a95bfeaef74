package server

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/catalog"
	"github.com/jonathan/internship-portal/internal/db"
	"github.com/jonathan/internship-portal/internal/lifecycle"
	"github.com/jonathan/internship-portal/internal/types"
)

// minStudentSearch is the shortest search term accepted by student search.
const minStudentSearch = 2

type addMemberRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
}

// MemberCard is a group member with the display status of their latest application.
type MemberCard struct {
	types.GroupMember
	StatusLabel string         `json:"status_label,omitempty"`
	StatusTone  lifecycle.Tone `json:"status_tone,omitempty"`
}

func memberCard(m types.GroupMember) MemberCard {
	card := MemberCard{GroupMember: m}
	if m.Application != nil {
		card.StatusLabel = lifecycle.Label(m.Application.Status)
		card.StatusTone = lifecycle.StatusTone(m.Application.Status)
	}
	return card
}

// ownedGroup loads a group of the caller, or ErrNotFound.
func (s *Server) ownedGroup(ctx context.Context, professorID, groupID uuid.UUID) (*types.Group, error) {
	g, err := s.store.GetGroup(ctx, professorID, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &lifecycle.ErrNotFound{Resource: "group", ID: groupID}
	}
	return g, nil
}

// handleUpdateProfessorProfile stores the caller's office details
func (s *Server) handleUpdateProfessorProfile(w http.ResponseWriter, r *http.Request) {
	professorID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.ProfessorProfileRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := s.store.UpdateProfessorProfile(r.Context(), professorID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if profile == nil {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "profile", ID: professorID})
		return
	}
	s.jsonResponse(w, http.StatusOK, profile)
}

// handleListGroups lists the caller's groups
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	professorID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	groups, err := s.store.ListGroups(r.Context(), professorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []types.Group{}
	}
	s.jsonResponse(w, http.StatusOK, groups)
}

// handleCreateGroup creates a group for the caller
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	professorID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.CreateGroupRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	group, err := s.store.CreateGroup(r.Context(), professorID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, group)
}

// handleUpdateGroup patches one of the caller's groups
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	professorID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groupID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.UpdateGroupRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	group, err := s.store.UpdateGroup(r.Context(), professorID, groupID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if group == nil {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "group", ID: groupID})
		return
	}
	s.jsonResponse(w, http.StatusOK, group)
}

// handleDeleteGroup deletes one of the caller's groups
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	professorID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groupID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ok, err := s.store.DeleteGroup(r.Context(), professorID, groupID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "group", ID: groupID})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListGroupMembers lists the students of one of the caller's groups
func (s *Server) handleListGroupMembers(w http.ResponseWriter, r *http.Request) {
	professorID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groupID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.ownedGroup(r.Context(), professorID, groupID); err != nil {
		s.writeError(w, r, err)
		return
	}

	members, err := s.store.ListGroupMembers(r.Context(), groupID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cards := make([]MemberCard, 0, len(members))
	for _, m := range members {
		cards = append(cards, memberCard(m))
	}
	s.jsonResponse(w, http.StatusOK, cards)
}

// handleAddGroupMember adds a student to one of the caller's groups.
// Adding an existing member answers 200 instead of 201, and a profile that
// is not a student answers 404.
func (s *Server) handleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	professorID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groupID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req addMemberRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.ownedGroup(r.Context(), professorID, groupID); err != nil {
		s.writeError(w, r, err)
		return
	}

	added, err := s.store.AddGroupMember(r.Context(), groupID, req.StudentID)
	if errors.Is(err, db.ErrNotStudent) {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "student", ID: req.StudentID})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	s.jsonResponse(w, status, map[string]any{"group_id": groupID, "student_id": req.StudentID, "added": added})
}

// handleRemoveGroupMember removes a student from one of the caller's groups
func (s *Server) handleRemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	professorID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groupID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	studentID, err := pathID(r, "student_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.ownedGroup(r.Context(), professorID, groupID); err != nil {
		s.writeError(w, r, err)
		return
	}

	ok, err := s.store.RemoveGroupMember(r.Context(), groupID, studentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, &lifecycle.ErrNotFound{Resource: "group member", ID: studentID})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearchStudents finds students by name or email for roster building
func (s *Server) handleSearchStudents(w http.ResponseWriter, r *http.Request) {
	term := catalog.SanitizeQuery(r.URL.Query().Get("q"))
	if utf8.RuneCountInString(term) < minStudentSearch {
		s.writeError(w, r, &ErrValidation{Field: "q", Message: "min=2"})
		return
	}

	students, err := s.store.SearchStudents(r.Context(), term)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if students == nil {
		students = []types.StudentSummary{}
	}
	s.jsonResponse(w, http.StatusOK, students)
}
