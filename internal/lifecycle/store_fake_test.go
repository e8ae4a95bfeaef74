package lifecycle

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonathan/internship-portal/internal/events"
	"github.com/jonathan/internship-portal/internal/types"
	"github.com/sirupsen/logrus"
)

// fakeStore is an in-memory Store that enforces the same uniqueness and
// ownership rules as the database.
type fakeStore struct {
	mu            sync.Mutex
	postings      map[uuid.UUID]*types.Posting
	owners        map[uuid.UUID]uuid.UUID // company id -> owner profile id
	companyNames  map[uuid.UUID]string
	apps          map[uuid.UUID]*types.ApplicationDetail
	practices     []types.Practice
	notifications []types.Notification

	applyErr      error
	notifyErr     error
	forceConflict bool
	applyCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		postings:     make(map[uuid.UUID]*types.Posting),
		owners:       make(map[uuid.UUID]uuid.UUID),
		companyNames: make(map[uuid.UUID]string),
		apps:         make(map[uuid.UUID]*types.ApplicationDetail),
	}
}

// addPosting registers an active posting owned by ownerID and returns it.
func (f *fakeStore) addPosting(ownerID uuid.UUID, spotsTotal, spotsTaken int) *types.Posting {
	f.mu.Lock()
	defer f.mu.Unlock()

	companyID := uuid.New()
	f.owners[companyID] = ownerID
	f.companyNames[companyID] = "Acme Labs"
	p := &types.Posting{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Title:      "Backend Intern",
		Status:     types.PostingActive,
		SpotsTotal: spotsTotal,
		SpotsTaken: spotsTaken,
		SpotsLeft:  max(spotsTotal-spotsTaken, 0),
	}
	f.postings[p.ID] = p
	return p
}

// addApplication inserts an application row directly.
func (f *fakeStore) addApplication(studentID uuid.UUID, posting *types.Posting, status types.ApplicationStatus) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(studentID, posting, status)
}

func (f *fakeStore) insertLocked(studentID uuid.UUID, posting *types.Posting, status types.ApplicationStatus) uuid.UUID {
	id := uuid.New()
	f.apps[id] = &types.ApplicationDetail{
		Application: types.Application{
			ID:        id,
			StudentID: studentID,
			PostingID: posting.ID,
			Status:    status,
			AppliedAt: time.Now(),
		},
		PostingTitle:   posting.Title,
		CompanyID:      posting.CompanyID,
		CompanyName:    f.companyNames[posting.CompanyID],
		CompanyOwnerID: f.owners[posting.CompanyID],
	}
	return id
}

func (f *fakeStore) addPractice(studentID, postingID uuid.UUID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.practices = append(f.practices, types.Practice{
		ID:        uuid.New(),
		StudentID: studentID,
		PostingID: postingID,
		Status:    status,
	})
}

func (f *fakeStore) status(id uuid.UUID) types.ApplicationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apps[id].Status
}

func (f *fakeStore) countApplications(studentID, postingID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.apps {
		if a.StudentID == studentID && a.PostingID == postingID {
			n++
		}
	}
	return n
}

func (f *fakeStore) GetPosting(_ context.Context, id uuid.UUID) (*types.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.postings[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetApplicationDetail(_ context.Context, id uuid.UUID) (*types.ApplicationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.apps[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) ListStudentApplications(_ context.Context, studentID uuid.UUID) ([]types.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Application
	for _, a := range f.apps {
		if a.StudentID == studentID {
			out = append(out, a.Application)
		}
	}
	return out, nil
}

func (f *fakeStore) ListStudentPractices(_ context.Context, studentID uuid.UUID) ([]types.Practice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Practice
	for _, p := range f.practices {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ApplyAndNotify(_ context.Context, studentID, postingID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	if f.applyErr != nil {
		return uuid.Nil, f.applyErr
	}
	for _, a := range f.apps {
		if a.StudentID == studentID && a.PostingID == postingID && !IsTerminal(a.Status) {
			return uuid.Nil, &pgconn.PgError{
				Code:    UniqueViolationCode,
				Message: `duplicate key value violates unique constraint "applications_student_vacancy_active_key"`,
			}
		}
	}
	return f.insertLocked(studentID, f.postings[postingID], types.StatusSubmitted), nil
}

func (f *fakeStore) AcceptOffer(_ context.Context, studentID, applicationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.apps[applicationID]
	a.Status = types.StatusAccepted
	a.Decision = types.DecisionAccepted
	now := time.Now()
	a.DecisionAt = &now
	f.practices = append(f.practices, types.Practice{
		ID:            uuid.New(),
		StudentID:     studentID,
		PostingID:     a.PostingID,
		ApplicationID: applicationID,
		Status:        types.PracticeActive,
	})
	return nil
}

func (f *fakeStore) UpdateApplicationStatus(_ context.Context, u types.StatusUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceConflict {
		return false, nil
	}
	a, ok := f.apps[u.ApplicationID]
	if !ok || a.Status != u.From {
		return false, nil
	}
	switch u.ActorRole {
	case types.RoleStudent:
		if a.StudentID != u.ActorID {
			return false, nil
		}
	case types.RoleCompany:
		if a.CompanyOwnerID != u.ActorID {
			return false, nil
		}
	}
	a.Status = u.To
	if u.Decision != "" {
		a.Decision = u.Decision
	}
	at := u.DecisionAt
	a.DecisionAt = &at
	return true, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n types.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) practicesFor(studentID uuid.UUID) []types.Practice {
	out, _ := f.ListStudentPractices(context.Background(), studentID)
	return out
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService() (*Service, *fakeStore, *events.LocalBus) {
	store := newFakeStore()
	bus := events.NewLocalBus()
	return NewService(store, bus, quietLogger()), store, bus
}
