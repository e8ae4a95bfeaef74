package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/events"
	"github.com/jonathan/internship-portal/internal/metrics"
	"github.com/jonathan/internship-portal/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence the orchestrator needs. Lookups return nil, nil
// when the row does not exist.
type Store interface {
	GetPosting(ctx context.Context, id uuid.UUID) (*types.Posting, error)
	GetApplicationDetail(ctx context.Context, id uuid.UUID) (*types.ApplicationDetail, error)
	ListStudentApplications(ctx context.Context, studentID uuid.UUID) ([]types.Application, error)
	ListStudentPractices(ctx context.Context, studentID uuid.UUID) ([]types.Practice, error)
	// ApplyAndNotify creates the application and the company notification atomically.
	ApplyAndNotify(ctx context.Context, studentID, postingID uuid.UUID) (uuid.UUID, error)
	// AcceptOffer flips the application to accepted and opens the practice atomically.
	AcceptOffer(ctx context.Context, studentID, applicationID uuid.UUID) error
	// UpdateApplicationStatus applies u and reports whether a row matched.
	UpdateApplicationStatus(ctx context.Context, u types.StatusUpdate) (bool, error)
	CreateNotification(ctx context.Context, n types.Notification) error
}

// Service orchestrates eligibility, transitions and their side effects.
type Service struct {
	store Store
	bus   events.Bus
	log   *logrus.Logger
	now   func() time.Time
}

// NewService creates a lifecycle service.
func NewService(store Store, bus events.Bus, log *logrus.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log,
		now:   time.Now,
	}
}

// ApplyResult is the outcome of an apply attempt.
type ApplyResult struct {
	ApplicationID uuid.UUID `json:"application_id,omitempty"`
	PostingID     uuid.UUID `json:"vacancy_id"`
	State         ViewState `json:"state"`
	// Duplicate is set when the student had already applied; not an error.
	Duplicate bool `json:"duplicate"`
}

// DecisionResult is the outcome of a status transition.
type DecisionResult struct {
	ApplicationID uuid.UUID               `json:"application_id"`
	Status        types.ApplicationStatus `json:"status"`
	// Unchanged is set when the application already held the target status.
	Unchanged bool `json:"unchanged"`
	// Notified is false when no notification applies or when writing it failed.
	Notified bool `json:"notified"`
	// Warning is set when the status changed but the student notification failed.
	Warning string `json:"warning,omitempty"`
}

// StudentView derives the current view state of (studentID, postingID).
func (s *Service) StudentView(ctx context.Context, studentID, postingID uuid.UUID) (*View, error) {
	if studentID == uuid.Nil {
		return nil, &ErrUnauthenticated{}
	}

	var (
		posting   *types.Posting
		apps      []types.Application
		practices []types.Practice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.store.GetPosting(gctx, postingID)
		if err != nil {
			return fmt.Errorf("failed to load posting: %w", err)
		}
		posting = p
		return nil
	})
	g.Go(func() error {
		a, err := s.store.ListStudentApplications(gctx, studentID)
		if err != nil {
			return fmt.Errorf("failed to load applications: %w", err)
		}
		apps = a
		return nil
	})
	g.Go(func() error {
		p, err := s.store.ListStudentPractices(gctx, studentID)
		if err != nil {
			return fmt.Errorf("failed to load practices: %w", err)
		}
		practices = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if posting == nil {
		return nil, &ErrNotFound{Resource: "posting", ID: postingID}
	}

	spotsLeft := posting.SpotsLeft
	if !posting.IsOpen() {
		spotsLeft = 0
	}
	view := NewView(BuildEligibility(postingID, spotsLeft, apps, practices))
	return &view, nil
}

// Apply creates an application for studentID on postingID. A re-application
// to a completed posting requires confirmed.
func (s *Service) Apply(ctx context.Context, studentID, postingID uuid.UUID, confirmed bool) (*ApplyResult, error) {
	if studentID == uuid.Nil {
		return nil, &ErrUnauthenticated{}
	}

	view, err := s.StudentView(ctx, studentID, postingID)
	if err != nil {
		return nil, err
	}

	switch view.State {
	case StateEligible:
	case StateReapplyEligible:
		if !confirmed {
			return nil, &ErrConfirmationRequired{Prompt: ReapplyPrompt}
		}
	case StateAlreadyApplied:
		metrics.RecordApply("duplicate")
		return &ApplyResult{PostingID: postingID, State: StateAlreadyApplied, Duplicate: true}, nil
	default:
		return nil, &ErrNotEligible{State: view.State}
	}

	appID, err := s.store.ApplyAndNotify(ctx, studentID, postingID)
	if err != nil {
		// a concurrent request won the race; the desired end state holds
		if IsUniqueViolation(err) {
			metrics.RecordApply("duplicate")
			s.log.WithFields(logrus.Fields{
				"student_id": studentID,
				"vacancy_id": postingID,
			}).Info("duplicate application treated as already applied")
			return &ApplyResult{PostingID: postingID, State: StateAlreadyApplied, Duplicate: true}, nil
		}
		metrics.RecordApply("error")
		return nil, fmt.Errorf("failed to apply: %w", err)
	}

	metrics.RecordApply("created")
	s.publish(ctx, events.Event{
		Kind:          events.ApplicationChanged,
		StudentID:     studentID,
		PostingID:     postingID,
		ApplicationID: appID,
		Status:        string(types.StatusSubmitted),
	})

	return &ApplyResult{ApplicationID: appID, PostingID: postingID, State: StateAlreadyApplied}, nil
}

// SendOffer moves a submitted application to offer and notifies the student.
func (s *Service) SendOffer(ctx context.Context, actorID, applicationID uuid.UUID) (*DecisionResult, error) {
	return s.companyDecision(ctx, actorID, applicationID, types.StatusOffer, types.DecisionOffered)
}

// Reject moves a submitted application to rejected and notifies the student.
func (s *Service) Reject(ctx context.Context, actorID, applicationID uuid.UUID) (*DecisionResult, error) {
	return s.companyDecision(ctx, actorID, applicationID, types.StatusRejected, types.DecisionRejected)
}

// StartPractice moves an accepted application to in progress.
func (s *Service) StartPractice(ctx context.Context, actorID, applicationID uuid.UUID) (*DecisionResult, error) {
	return s.companyDecision(ctx, actorID, applicationID, types.StatusInProgress, "")
}

// CompletePractice closes an in-progress application as completed, or finalized when finalize is set.
func (s *Service) CompletePractice(ctx context.Context, actorID, applicationID uuid.UUID, finalize bool) (*DecisionResult, error) {
	to := types.StatusCompleted
	if finalize {
		to = types.StatusFinalized
	}
	return s.companyDecision(ctx, actorID, applicationID, to, "")
}

// companyDecision is the two-step protocol shared by every company transition:
// an ownership-checked compare-and-set, then a best-effort student notification.
func (s *Service) companyDecision(ctx context.Context, actorID, applicationID uuid.UUID, to types.ApplicationStatus, decision string) (*DecisionResult, error) {
	if actorID == uuid.Nil {
		return nil, &ErrUnauthenticated{}
	}

	detail, err := s.loadDetail(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if detail.CompanyOwnerID != actorID {
		return nil, &ErrForbidden{Resource: "application", ID: applicationID}
	}

	current := NormalizeStatus(detail.Status)
	if current == to {
		return &DecisionResult{ApplicationID: applicationID, Status: to, Unchanged: true}, nil
	}
	if !CanTransition(current, to, types.RoleCompany) {
		return nil, &ErrInvalidTransition{From: current, To: to}
	}

	if err := s.transition(ctx, detail, types.StatusUpdate{
		ApplicationID: applicationID,
		From:          detail.Status,
		To:            to,
		Decision:      decision,
		ActorID:       actorID,
		ActorRole:     types.RoleCompany,
	}); err != nil {
		return nil, err
	}

	result := &DecisionResult{ApplicationID: applicationID, Status: to}
	n, ok := noticeFor(to, detail)
	if !ok {
		return result, nil
	}
	if err := s.store.CreateNotification(ctx, n.notification(detail)); err != nil {
		metrics.RecordNotificationFailure(n.kind)
		s.log.WithError(err).WithFields(logrus.Fields{
			"application_id": applicationID,
			"student_id":     detail.StudentID,
			"type":           n.kind,
		}).Warn("status changed but student notification failed")
		result.Warning = n.warning
		return result, nil
	}
	result.Notified = true
	return result, nil
}

// AcceptOffer accepts an offer on behalf of the owning student. The store
// opens the practice; a student with another active practice is refused.
func (s *Service) AcceptOffer(ctx context.Context, studentID, applicationID uuid.UUID) (*DecisionResult, error) {
	detail, err := s.studentOwned(ctx, studentID, applicationID)
	if err != nil {
		return nil, err
	}

	current := NormalizeStatus(detail.Status)
	if current == types.StatusAccepted {
		return &DecisionResult{ApplicationID: applicationID, Status: current, Unchanged: true}, nil
	}
	if current != types.StatusOffer {
		return nil, &ErrInvalidTransition{From: current, To: types.StatusAccepted}
	}

	view, err := s.StudentView(ctx, studentID, detail.PostingID)
	if err != nil {
		return nil, err
	}
	if !CanAcceptOffer(view.State) {
		return nil, &ErrNotEligible{State: view.State}
	}

	if err := s.store.AcceptOffer(ctx, studentID, applicationID); err != nil {
		return nil, fmt.Errorf("failed to accept offer: %w", err)
	}

	metrics.RecordTransition(string(current), string(types.StatusAccepted))
	s.logTransition(detail, current, types.StatusAccepted)
	s.publish(ctx, events.Event{
		Kind:          events.PracticeChanged,
		StudentID:     studentID,
		PostingID:     detail.PostingID,
		ApplicationID: applicationID,
		Status:        string(types.StatusAccepted),
	})

	return &DecisionResult{ApplicationID: applicationID, Status: types.StatusAccepted}, nil
}

// DeclineOffer rejects an offer on behalf of the owning student. No practice is created.
func (s *Service) DeclineOffer(ctx context.Context, studentID, applicationID uuid.UUID) (*DecisionResult, error) {
	detail, err := s.studentOwned(ctx, studentID, applicationID)
	if err != nil {
		return nil, err
	}

	current := NormalizeStatus(detail.Status)
	if current == types.StatusRejected && detail.Decision == types.DecisionDeclined {
		return &DecisionResult{ApplicationID: applicationID, Status: current, Unchanged: true}, nil
	}
	if current != types.StatusOffer {
		return nil, &ErrInvalidTransition{From: current, To: types.StatusRejected}
	}

	if err := s.transition(ctx, detail, types.StatusUpdate{
		ApplicationID: applicationID,
		From:          detail.Status,
		To:            types.StatusRejected,
		Decision:      types.DecisionDeclined,
		ActorID:       studentID,
		ActorRole:     types.RoleStudent,
	}); err != nil {
		return nil, err
	}

	return &DecisionResult{ApplicationID: applicationID, Status: types.StatusRejected}, nil
}

// Withdraw moves a non-terminal application to withdrawn. Either the student
// or the owning company may withdraw.
func (s *Service) Withdraw(ctx context.Context, actorID, applicationID uuid.UUID) (*DecisionResult, error) {
	if actorID == uuid.Nil {
		return nil, &ErrUnauthenticated{}
	}

	detail, err := s.loadDetail(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	var role types.Role
	switch actorID {
	case detail.StudentID:
		role = types.RoleStudent
	case detail.CompanyOwnerID:
		role = types.RoleCompany
	default:
		return nil, &ErrForbidden{Resource: "application", ID: applicationID}
	}

	current := NormalizeStatus(detail.Status)
	if current == types.StatusWithdrawn {
		return &DecisionResult{ApplicationID: applicationID, Status: current, Unchanged: true}, nil
	}
	if !CanTransition(current, types.StatusWithdrawn, role) {
		return nil, &ErrInvalidTransition{From: current, To: types.StatusWithdrawn}
	}

	if err := s.transition(ctx, detail, types.StatusUpdate{
		ApplicationID: applicationID,
		From:          detail.Status,
		To:            types.StatusWithdrawn,
		Decision:      types.DecisionWithdrawn,
		ActorID:       actorID,
		ActorRole:     role,
	}); err != nil {
		return nil, err
	}

	return &DecisionResult{ApplicationID: applicationID, Status: types.StatusWithdrawn}, nil
}

// transition applies u as a compare-and-set and publishes the change.
func (s *Service) transition(ctx context.Context, detail *types.ApplicationDetail, u types.StatusUpdate) error {
	u.DecisionAt = s.now()

	ok, err := s.store.UpdateApplicationStatus(ctx, u)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	if !ok {
		return &ErrConflict{ApplicationID: u.ApplicationID}
	}

	from := NormalizeStatus(u.From)
	metrics.RecordTransition(string(from), string(u.To))
	s.logTransition(detail, from, u.To)

	kind := events.ApplicationChanged
	if u.To == types.StatusInProgress || IsCompleted(u.To) || u.To == types.StatusWithdrawn {
		kind = events.PracticeChanged
	}
	s.publish(ctx, events.Event{
		Kind:          kind,
		StudentID:     detail.StudentID,
		PostingID:     detail.PostingID,
		ApplicationID: u.ApplicationID,
		Status:        string(u.To),
	})
	return nil
}

func (s *Service) loadDetail(ctx context.Context, applicationID uuid.UUID) (*types.ApplicationDetail, error) {
	detail, err := s.store.GetApplicationDetail(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if detail == nil {
		return nil, &ErrNotFound{Resource: "application", ID: applicationID}
	}
	return detail, nil
}

func (s *Service) studentOwned(ctx context.Context, studentID, applicationID uuid.UUID) (*types.ApplicationDetail, error) {
	if studentID == uuid.Nil {
		return nil, &ErrUnauthenticated{}
	}
	detail, err := s.loadDetail(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if detail.StudentID != studentID {
		return nil, &ErrForbidden{Resource: "application", ID: applicationID}
	}
	return detail, nil
}

func (s *Service) logTransition(detail *types.ApplicationDetail, from, to types.ApplicationStatus) {
	s.log.WithFields(logrus.Fields{
		"application_id": detail.ID,
		"student_id":     detail.StudentID,
		"vacancy_id":     detail.PostingID,
		"from":           from,
		"to":             to,
	}).Info("application status changed")
}

// publish is best effort: subscribers re-derive on the next change anyway.
func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.bus == nil {
		return
	}
	ev.At = s.now()
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("kind", ev.Kind).Warn("failed to publish event")
	}
}
