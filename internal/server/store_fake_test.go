package server

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonathan/internship-portal/internal/config"
	"github.com/jonathan/internship-portal/internal/db"
	"github.com/jonathan/internship-portal/internal/lifecycle"
	"github.com/jonathan/internship-portal/internal/storage"
	"github.com/jonathan/internship-portal/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store. Methods the tests never reach are left
// to the embedded nil interface and panic if called.
type fakeStore struct {
	Store

	mu            sync.Mutex
	pingErr       error
	notifyErr     error
	users         map[uuid.UUID]*db.User
	profiles      map[uuid.UUID]*types.Profile
	companies     map[uuid.UUID]*types.Company // by owner
	postings      map[uuid.UUID]*types.Posting
	apps          map[uuid.UUID]*types.ApplicationDetail
	practices     []types.Practice
	notifications []types.Notification
	favorites     map[uuid.UUID]map[uuid.UUID]bool
	hidden        map[uuid.UUID]map[uuid.UUID]bool
	groups        map[uuid.UUID]*types.Group
	members       map[uuid.UUID]map[uuid.UUID]bool
	lastFilter    db.ApplicationFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[uuid.UUID]*db.User),
		profiles:  make(map[uuid.UUID]*types.Profile),
		companies: make(map[uuid.UUID]*types.Company),
		postings:  make(map[uuid.UUID]*types.Posting),
		apps:      make(map[uuid.UUID]*types.ApplicationDetail),
		favorites: make(map[uuid.UUID]map[uuid.UUID]bool),
		hidden:    make(map[uuid.UUID]map[uuid.UUID]bool),
		groups:    make(map[uuid.UUID]*types.Group),
		members:   make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

// addStudent registers a student profile enrolled in a program.
func (f *fakeStore) addStudent(name string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	programID := uuid.New()
	f.profiles[id] = &types.Profile{ID: id, Role: types.RoleStudent, FullName: name, Email: strings.ToLower(name) + "@uni.mx", ProgramID: &programID}
	return id
}

// addCompany registers a company owned by a new company profile and returns the owner.
func (f *fakeStore) addCompany(name string) (uuid.UUID, *types.Company) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ownerID := uuid.New()
	f.profiles[ownerID] = &types.Profile{ID: ownerID, Role: types.RoleCompany, FullName: name}
	c := &types.Company{ID: uuid.New(), OwnerID: ownerID, Name: name}
	f.companies[ownerID] = c
	return ownerID, c
}

func (f *fakeStore) addPosting(c *types.Company, spots int) *types.Posting {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &types.Posting{
		ID:           uuid.New(),
		CompanyID:    c.ID,
		CompanyName:  c.Name,
		Title:        "Backend Intern",
		Modality:     types.ModalityRemote,
		Compensation: "Apoyo económico",
		Activities:   "Escribir servicios\n• Revisar código",
		Status:       types.PostingActive,
		SpotsTotal:   spots,
		SpotsLeft:    spots,
		CreatedAt:    time.Now(),
	}
	f.postings[p.ID] = p
	return p
}

func (f *fakeStore) addApplication(studentID uuid.UUID, p *types.Posting, status types.ApplicationStatus) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(studentID, p, status)
}

func (f *fakeStore) insertLocked(studentID uuid.UUID, p *types.Posting, status types.ApplicationStatus) uuid.UUID {
	var ownerID uuid.UUID
	for owner, c := range f.companies {
		if c.ID == p.CompanyID {
			ownerID = owner
		}
	}
	id := uuid.New()
	f.apps[id] = &types.ApplicationDetail{
		Application: types.Application{
			ID:        id,
			StudentID: studentID,
			PostingID: p.ID,
			Status:    status,
			AppliedAt: time.Now(),
		},
		PostingTitle:   p.Title,
		CompanyID:      p.CompanyID,
		CompanyName:    p.CompanyName,
		CompanyOwnerID: ownerID,
		StudentName:    f.profiles[studentID].FullName,
	}
	return id
}

func (f *fakeStore) status(id uuid.UUID) types.ApplicationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apps[id].Status
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

// Users

func (f *fakeStore) CheckEmailExists(_ context.Context, email string) (bool, error) {
	u, _ := f.GetUserByEmail(context.Background(), email)
	return u != nil, nil
}

func (f *fakeStore) CreateUser(_ context.Context, fullName, email, passwordHash string, role types.Role) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return uuid.Nil, &pgconn.PgError{Code: lifecycle.UniqueViolationCode}
		}
	}
	id := uuid.New()
	now := time.Now()
	f.users[id] = &db.User{ID: id, Email: email, FullName: fullName, Role: role, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	f.profiles[id] = &types.Profile{ID: id, Role: role, FullName: fullName, Email: email}
	return id, nil
}

func (f *fakeStore) GetUser(_ context.Context, id uuid.UUID) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return errors.New("no such user")
	}
	u.PasswordHash = passwordHash
	return nil
}

// Lifecycle

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

func (f *fakeStore) ListStudentApplications(ctx context.Context, studentID uuid.UUID) ([]types.Application, error) {
	details, _ := f.ListStudentApplicationDetails(ctx, studentID)
	out := make([]types.Application, 0, len(details))
	for _, d := range details {
		out = append(out, d.Application)
	}
	return out, nil
}

func (f *fakeStore) ListStudentApplicationDetails(_ context.Context, studentID uuid.UUID) ([]types.ApplicationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ApplicationDetail
	for _, d := range f.apps {
		if d.StudentID == studentID {
			out = append(out, *d)
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
	for _, a := range f.apps {
		if a.StudentID == studentID && a.PostingID == postingID && !lifecycle.IsTerminal(a.Status) {
			return uuid.Nil, &pgconn.PgError{Code: lifecycle.UniqueViolationCode}
		}
	}
	return f.insertLocked(studentID, f.postings[postingID], types.StatusSubmitted), nil
}

func (f *fakeStore) AcceptOffer(_ context.Context, studentID, applicationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.apps[applicationID]
	a.Status = types.StatusAccepted
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
	a, ok := f.apps[u.ApplicationID]
	if !ok || a.Status != u.From {
		return false, nil
	}
	if (u.ActorRole == types.RoleStudent && a.StudentID != u.ActorID) ||
		(u.ActorRole == types.RoleCompany && a.CompanyOwnerID != u.ActorID) {
		return false, nil
	}
	a.Status = u.To
	a.Decision = u.Decision
	return true, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n types.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return f.notifyErr
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, studentID uuid.UUID, limit int) ([]types.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Notification
	for i := len(f.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if f.notifications[i].StudentID == studentID {
			out = append(out, f.notifications[i])
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, studentID, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		n := &f.notifications[i]
		if n.ID == id && n.StudentID == studentID {
			now := time.Now()
			n.ReadAt = &now
			return true, nil
		}
	}
	return false, nil
}

// Catalog

func (f *fakeStore) GetStudentProgramID(_ context.Context, studentID uuid.UUID) (*uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[studentID]; ok {
		return p.ProgramID, nil
	}
	return nil, nil
}

func markerIDs(m map[uuid.UUID]bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id, on := range m {
		if on {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakeStore) ListFavoriteIDs(_ context.Context, studentID uuid.UUID, _ int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return markerIDs(f.favorites[studentID]), nil
}

func (f *fakeStore) ListHiddenIDs(_ context.Context, studentID uuid.UUID, _ int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return markerIDs(f.hidden[studentID]), nil
}

func (f *fakeStore) ListAppliedPostingIDs(ctx context.Context, studentID uuid.UUID, _ int) ([]uuid.UUID, error) {
	apps, _ := f.ListStudentApplications(ctx, studentID)
	ids := make([]uuid.UUID, 0, len(apps))
	for _, a := range apps {
		ids = append(ids, a.PostingID)
	}
	return ids, nil
}

func (f *fakeStore) SearchPostings(_ context.Context, q types.PostingQuery) ([]types.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	excluded := make(map[uuid.UUID]bool, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}
	var out []types.Posting
	for _, p := range f.postings {
		if excluded[p.ID] || !p.IsOpen() {
			continue
		}
		if q.Text != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(q.Text)) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func setMarker(m map[uuid.UUID]map[uuid.UUID]bool, studentID, postingID uuid.UUID, on bool) {
	if m[studentID] == nil {
		m[studentID] = make(map[uuid.UUID]bool)
	}
	m[studentID][postingID] = on
}

func (f *fakeStore) markedPostingsLocked(marks map[uuid.UUID]bool) []types.Posting {
	var out []types.Posting
	for id, on := range marks {
		if p, ok := f.postings[id]; ok && on {
			out = append(out, *p)
		}
	}
	return out
}

func (f *fakeStore) ListFavoritePostings(_ context.Context, studentID uuid.UUID, _ int) ([]types.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markedPostingsLocked(f.favorites[studentID]), nil
}

func (f *fakeStore) ListHiddenPostings(_ context.Context, studentID uuid.UUID, _ int) ([]types.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markedPostingsLocked(f.hidden[studentID]), nil
}

func (f *fakeStore) SetFavorite(_ context.Context, studentID, postingID uuid.UUID, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	setMarker(f.favorites, studentID, postingID, on)
	return nil
}

func (f *fakeStore) SetHidden(_ context.Context, studentID, postingID uuid.UUID, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	setMarker(f.hidden, studentID, postingID, on)
	if on {
		setMarker(f.favorites, studentID, postingID, false)
	}
	return nil
}

// Profiles

func (f *fakeStore) GetProfile(_ context.Context, id uuid.UUID) (*types.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) SetCVURL(_ context.Context, id uuid.UUID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[id].CVURL = url
	return nil
}

func (f *fakeStore) SetAvatarURL(_ context.Context, id uuid.UUID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[id].AvatarURL = url
	return nil
}

func (f *fakeStore) ListPrograms(context.Context) ([]types.Program, error) {
	return []types.Program{{ID: uuid.New(), Key: "ISC", Name: "Ingeniería en Sistemas"}}, nil
}

// Companies

func (f *fakeStore) GetCompanyByOwner(_ context.Context, ownerID uuid.UUID) (*types.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[ownerID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) SetCompanyLogo(_ context.Context, ownerID uuid.UUID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companies[ownerID].LogoURL = url
	return nil
}

func (f *fakeStore) CreatePosting(_ context.Context, companyID uuid.UUID, req types.CreatePostingRequest) (*types.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &types.Posting{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Title:      req.Title,
		Modality:   req.Modality,
		Status:     types.PostingActive,
		SpotsTotal: req.SpotsTotal,
		SpotsLeft:  req.SpotsTotal,
	}
	f.postings[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeStore) UpdatePostingStatus(_ context.Context, ownerID, postingID uuid.UUID, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[ownerID]
	p, found := f.postings[postingID]
	if !ok || !found || p.CompanyID != c.ID {
		return false, nil
	}
	p.Status = status
	return true, nil
}

func (f *fakeStore) ListCompanyApplications(_ context.Context, filter db.ApplicationFilter) ([]types.ApplicationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var out []types.ApplicationDetail
	for _, d := range f.apps {
		if d.CompanyOwnerID == filter.OwnerID {
			out = append(out, *d)
		}
	}
	return out, nil
}

// Groups

func (f *fakeStore) GetGroup(_ context.Context, professorID, groupID uuid.UUID) (*types.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok || g.ProfessorID != professorID {
		return nil, nil
	}
	cp := *g
	cp.MemberCount = len(f.members[groupID])
	return &cp, nil
}

func (f *fakeStore) CreateGroup(_ context.Context, professorID uuid.UUID, req types.CreateGroupRequest) (*types.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	color := req.Color
	if color == "" {
		color = types.DefaultGroupColor
	}
	g := &types.Group{ID: uuid.New(), ProfessorID: professorID, Name: req.Name, Color: color, Term: req.Term, CreatedAt: time.Now()}
	f.groups[g.ID] = g
	cp := *g
	return &cp, nil
}

func (f *fakeStore) AddGroupMember(_ context.Context, groupID, studentID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[studentID]; !ok || p.Role != types.RoleStudent {
		return false, db.ErrNotStudent
	}
	if f.members[groupID] == nil {
		f.members[groupID] = make(map[uuid.UUID]bool)
	}
	if f.members[groupID][studentID] {
		return false, nil
	}
	f.members[groupID][studentID] = true
	return true, nil
}

func (f *fakeStore) ListGroupMembers(_ context.Context, groupID uuid.UUID) ([]types.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.GroupMember
	for studentID := range f.members[groupID] {
		p := f.profiles[studentID]
		m := types.GroupMember{StudentSummary: types.StudentSummary{ID: p.ID, FullName: p.FullName, Email: p.Email}}
		for _, d := range f.apps {
			if d.StudentID != studentID {
				continue
			}
			switch d.Status {
			case types.StatusOffer:
				m.HasOffer = true
			case types.StatusAccepted, types.StatusInProgress:
				m.Placed = true
			}
			if m.Application == nil || d.AppliedAt.After(m.Application.AppliedAt) {
				m.Application = &types.MemberApplication{
					ID: d.ID, Status: d.Status, Decision: d.Decision,
					PostingTitle: d.PostingTitle, CompanyName: d.CompanyName, AppliedAt: d.AppliedAt,
				}
			}
		}
		for _, pr := range f.practices {
			if pr.StudentID == studentID {
				m.PracticeStatus = pr.Status
				if pr.Status == "active" {
					m.Placed = true
				}
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (f *fakeStore) GetStudentGroup(_ context.Context, studentID uuid.UUID) (*types.StudentGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for groupID, members := range f.members {
		if !members[studentID] {
			continue
		}
		g := f.groups[groupID]
		sg := &types.StudentGroup{ID: g.ID, Name: g.Name, Color: g.Color, ProfessorID: g.ProfessorID}
		if prof, ok := f.profiles[g.ProfessorID]; ok {
			sg.ProfessorName = prof.FullName
			sg.ProfessorEmail = prof.Email
		}
		return sg, nil
	}
	return nil, nil
}

func (f *fakeStore) SearchStudents(_ context.Context, term string) ([]types.StudentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.StudentSummary
	for _, p := range f.profiles {
		if p.Role == types.RoleStudent && strings.Contains(strings.ToLower(p.FullName), strings.ToLower(term)) {
			out = append(out, types.StudentSummary{ID: p.ID, FullName: p.FullName, Email: p.Email})
		}
	}
	return out, nil
}

// fakeObjects is an in-memory object store for Documents.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte // bucket/path
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (o *fakeObjects) Upload(_ context.Context, bucket, path, _ string, data []byte, _ bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[bucket+"/"+path] = data
	return nil
}

func (o *fakeObjects) Remove(_ context.Context, bucket string, paths []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range paths {
		delete(o.objects, bucket+"/"+p)
	}
	return nil
}

func (o *fakeObjects) List(_ context.Context, bucket, prefix, search string) ([]storage.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []storage.Object
	for key := range o.objects {
		folder := bucket + "/" + prefix + "/"
		if name, ok := strings.CutPrefix(key, folder); ok && strings.Contains(name, search) {
			out = append(out, storage.Object{Name: name})
		}
	}
	return out, nil
}

func (o *fakeObjects) PublicURL(bucket, path string) string {
	return "https://cdn.test/" + bucket + "/" + path
}

func (o *fakeObjects) keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.objects))
	for k := range o.objects {
		keys = append(keys, k)
	}
	return keys
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// setupTestServer builds a server over a fresh fake store with storage enabled.
func setupTestServer(t *testing.T) (*Server, *fakeStore, *fakeObjects) {
	t.Helper()
	store := newFakeStore()
	objects := newFakeObjects()
	log := quietLogger()

	s, err := New(Config{
		Port: 0,
		JWT:  &config.JWTConfig{Secret: testJWTSecret, ExpirationHours: 24},
		// Lower cost for faster tests
		Password: &config.PasswordConfig{BcryptCost: 10},
	}, Deps{
		Store:     store,
		Documents: storage.NewDocuments(objects, log),
		Log:       log,
	})
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s, store, objects
}

// tokenFor issues a bearer token for id in role.
func tokenFor(t *testing.T, s *Server, id uuid.UUID, role types.Role) string {
	t.Helper()
	token, err := s.jwtService.GenerateToken(id, role)
	require.NoError(t, err)
	return token
}
