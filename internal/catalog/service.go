package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PageSize is the number of postings returned per search page.
const PageSize = 20

// Marker list limits, matching what the search page loads per student.
const (
	favoritesLimit    = 500
	hiddenLimit       = 500
	applicationsLimit = 1000
)

// ErrNoProgram is returned when the student has no program assigned, so no
// posting can be matched.
var ErrNoProgram = errors.New("student has no program assigned")

// NoProgramMessage is shown to the student when ErrNoProgram is returned.
const NoProgramMessage = "Tu perfil no tiene un programa asignado. Actualiza tu programa para ver vacantes."

// Store is the persistence the catalog needs.
type Store interface {
	GetStudentProgramID(ctx context.Context, studentID uuid.UUID) (*uuid.UUID, error)
	ListFavoriteIDs(ctx context.Context, studentID uuid.UUID, limit int) ([]uuid.UUID, error)
	ListHiddenIDs(ctx context.Context, studentID uuid.UUID, limit int) ([]uuid.UUID, error)
	ListAppliedPostingIDs(ctx context.Context, studentID uuid.UUID, limit int) ([]uuid.UUID, error)
	SearchPostings(ctx context.Context, q types.PostingQuery) ([]types.Posting, error)
	// ListFavoritePostings and ListHiddenPostings return the marked postings
	// with their company, most recently marked first, whatever their status.
	ListFavoritePostings(ctx context.Context, studentID uuid.UUID, limit int) ([]types.Posting, error)
	ListHiddenPostings(ctx context.Context, studentID uuid.UUID, limit int) ([]types.Posting, error)
	SetFavorite(ctx context.Context, studentID, postingID uuid.UUID, on bool) error
	// SetHidden hides or unhides a posting. Hiding also removes the favorite in the same transaction.
	SetHidden(ctx context.Context, studentID, postingID uuid.UUID, on bool) error
}

// Filters are the student-facing search inputs as typed in the UI.
type Filters struct {
	Query        string `json:"q"`
	Location     string `json:"loc"`
	Modality     string `json:"modalidad"`
	Compensation string `json:"comp"`
	Language     string `json:"idioma"`
	Page         int    `json:"page"`
}

// Result is one page of search results.
type Result struct {
	Postings []types.PostingCard `json:"postings"`
	Page     int                 `json:"page"`
	HasMore  bool                `json:"has_more"`
}

// Service runs posting searches and marker updates.
type Service struct {
	store Store
	log   *logrus.Logger
}

// NewService creates a catalog service.
func NewService(store Store, log *logrus.Logger) *Service {
	return &Service{store: store, log: log}
}

type markers struct {
	favorite map[uuid.UUID]bool
	hidden   []uuid.UUID
	applied  map[uuid.UUID]bool
}

func (s *Service) loadMarkers(ctx context.Context, studentID uuid.UUID) (*markers, error) {
	var fav, hidden, applied []uuid.UUID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		fav, err = s.store.ListFavoriteIDs(gctx, studentID, favoritesLimit)
		return err
	})
	g.Go(func() (err error) {
		hidden, err = s.store.ListHiddenIDs(gctx, studentID, hiddenLimit)
		return err
	})
	g.Go(func() (err error) {
		applied, err = s.store.ListAppliedPostingIDs(gctx, studentID, applicationsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load markers: %w", err)
	}

	m := &markers{
		favorite: make(map[uuid.UUID]bool, len(fav)),
		hidden:   hidden,
		applied:  make(map[uuid.UUID]bool, len(applied)),
	}
	for _, id := range fav {
		m.favorite[id] = true
	}
	for _, id := range applied {
		m.applied[id] = true
	}
	return m, nil
}

// Search returns the open postings linked to the student's program that
// match f, excluding the ones the student hid, newest first.
func (s *Service) Search(ctx context.Context, studentID uuid.UUID, f Filters) (*Result, error) {
	programID, err := s.store.GetStudentProgramID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student program: %w", err)
	}
	if programID == nil {
		return nil, ErrNoProgram
	}

	m, err := s.loadMarkers(ctx, studentID)
	if err != nil {
		return nil, err
	}

	page := f.Page
	if page < 0 {
		page = 0
	}
	q := types.PostingQuery{
		ProgramID:    *programID,
		Text:         SanitizeQuery(f.Query),
		Location:     SanitizeQuery(f.Location),
		Modality:     ModalityFromUI(f.Modality),
		Compensation: CompensationVariants(f.Compensation),
		Language:     strings.ToUpper(strings.TrimSpace(f.Language)),
		ExcludeIDs:   m.hidden,
		Limit:        PageSize,
		Offset:       page * PageSize,
	}

	postings, err := s.store.SearchPostings(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to search postings: %w", err)
	}

	cards := make([]types.PostingCard, 0, len(postings))
	for _, p := range postings {
		card := newCard(p)
		card.Favorite = m.favorite[p.ID]
		card.Applied = m.applied[p.ID]
		cards = append(cards, card)
	}

	s.log.WithFields(logrus.Fields{
		"student_id": studentID,
		"page":       page,
		"results":    len(cards),
	}).Debug("posting search")

	return &Result{
		Postings: cards,
		Page:     page,
		HasMore:  len(cards) == PageSize,
	}, nil
}

func newCard(p types.Posting) types.PostingCard {
	return types.PostingCard{
		Posting:           p,
		ModalityLabel:     FormatModality(p.Modality),
		CompensationLabel: FormatCompensation(p.Compensation),
		CompanyInitials:   Initials(p.CompanyName),
	}
}

// Favorites lists the postings the student marked as favorite.
func (s *Service) Favorites(ctx context.Context, studentID uuid.UUID) ([]types.PostingCard, error) {
	return s.marked(ctx, studentID, s.store.ListFavoritePostings, favoritesLimit, func(c *types.PostingCard) {
		c.Favorite = true
	})
}

// Hidden lists the postings the student hid from search, so they can be restored.
func (s *Service) Hidden(ctx context.Context, studentID uuid.UUID) ([]types.PostingCard, error) {
	return s.marked(ctx, studentID, s.store.ListHiddenPostings, hiddenLimit, func(c *types.PostingCard) {
		c.Hidden = true
	})
}

type listPostings func(ctx context.Context, studentID uuid.UUID, limit int) ([]types.Posting, error)

func (s *Service) marked(ctx context.Context, studentID uuid.UUID, list listPostings, limit int, mark func(*types.PostingCard)) ([]types.PostingCard, error) {
	var postings []types.Posting
	var applied []uuid.UUID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		postings, err = list(gctx, studentID, limit)
		return err
	})
	g.Go(func() (err error) {
		applied, err = s.store.ListAppliedPostingIDs(gctx, studentID, applicationsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load marked postings: %w", err)
	}

	appliedSet := make(map[uuid.UUID]bool, len(applied))
	for _, id := range applied {
		appliedSet[id] = true
	}
	cards := make([]types.PostingCard, 0, len(postings))
	for _, p := range postings {
		card := newCard(p)
		card.Applied = appliedSet[p.ID]
		mark(&card)
		cards = append(cards, card)
	}
	return cards, nil
}

// SetFavorite marks or unmarks a posting as favorite.
func (s *Service) SetFavorite(ctx context.Context, studentID, postingID uuid.UUID, on bool) error {
	if err := s.store.SetFavorite(ctx, studentID, postingID, on); err != nil {
		return fmt.Errorf("failed to update favorite: %w", err)
	}
	return nil
}

// SetHidden hides or unhides a posting. A hidden posting is never a favorite.
func (s *Service) SetHidden(ctx context.Context, studentID, postingID uuid.UUID, on bool) error {
	if err := s.store.SetHidden(ctx, studentID, postingID, on); err != nil {
		return fmt.Errorf("failed to update hidden posting: %w", err)
	}
	return nil
}
