package catalog

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hibrida", Normalize("Híbrida"))
	assert.Equal(t, "apoyo economico", Normalize("  APOYO   Económico "))
	assert.Equal(t, "nino", Normalize("Niño"))
	assert.Equal(t, "", Normalize("   "))
}

func TestModalityFromUI(t *testing.T) {
	tests := map[string]string{
		"Presencial": types.ModalityOnSite,
		"Híbrida":    types.ModalityHybrid,
		"hibrido":    types.ModalityHybrid,
		"Remota":     types.ModalityRemote,
		"REMOTO":     types.ModalityRemote,
		"":           "",
		"cualquiera": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ModalityFromUI(in), in)
	}
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "Híbrida", FormatModality(types.ModalityHybrid))
	assert.Equal(t, "Modalidad N/A", FormatModality(""))
	assert.Equal(t, "mixta", FormatModality("mixta"))

	assert.Equal(t, "Apoyo económico", FormatCompensation("apoyo_economico"))
	assert.Equal(t, "Sin apoyo", FormatCompensation("sin_apoyo"))
	assert.Equal(t, "Compensación N/A", FormatCompensation(""))
	assert.Equal(t, "$5000 MXN", FormatCompensation("$5000 MXN"))
}

func TestCompensationVariants(t *testing.T) {
	assert.Contains(t, CompensationVariants("Apoyo económico"), "apoyo_economico")
	assert.Contains(t, CompensationVariants("sin apoyo"), "SIN APOYO")
	assert.Nil(t, CompensationVariants("otro"))

	// callers may not mutate the package lists
	v := CompensationVariants("sin apoyo")
	v[0] = "changed"
	assert.Equal(t, "sin_apoyo", CompensationVariants("sin apoyo")[0])
}

func TestSanitizeQuery(t *testing.T) {
	assert.Equal(t, "data  eng", SanitizeQuery(`data%*eng`))
	assert.Equal(t, "a  b", SanitizeQuery(`"a,(b)"`))
	assert.Equal(t, "backend", SanitizeQuery("  backend "))
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"Diseñar APIs", "Escribir pruebas", "Documentar"},
		SplitLines("Diseñar APIs\r\n• Escribir pruebas\n- Documentar"))
	assert.Equal(t, []string{"No disponible"}, SplitLines(""))
	assert.Equal(t, []string{"No disponible"}, SplitLines(" \n • "))
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "AL", Initials("Acme Labs"))
	assert.Equal(t, "BM", Initials("Banco de México"))
	assert.Equal(t, "GO", Initials("google"))
	assert.Equal(t, "X", Initials("x"))
	assert.Equal(t, "?", Initials("  "))
	assert.Equal(t, "?", Initials("de la"))
}

type fakeCatalogStore struct {
	mu        sync.Mutex
	programID *uuid.UUID
	postings  []types.Posting
	favorites map[uuid.UUID]bool
	hidden    map[uuid.UUID]bool
	applied   []uuid.UUID
	lastQuery types.PostingQuery
	searchErr error
}

func newFakeCatalogStore() *fakeCatalogStore {
	program := uuid.New()
	return &fakeCatalogStore{
		programID: &program,
		favorites: make(map[uuid.UUID]bool),
		hidden:    make(map[uuid.UUID]bool),
	}
}

func keys(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id, ok := range m {
		if ok {
			out = append(out, id)
		}
	}
	return out
}

func (f *fakeCatalogStore) GetStudentProgramID(context.Context, uuid.UUID) (*uuid.UUID, error) {
	return f.programID, nil
}

func (f *fakeCatalogStore) ListFavoriteIDs(context.Context, uuid.UUID, int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return keys(f.favorites), nil
}

func (f *fakeCatalogStore) ListHiddenIDs(context.Context, uuid.UUID, int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return keys(f.hidden), nil
}

func (f *fakeCatalogStore) ListAppliedPostingIDs(context.Context, uuid.UUID, int) ([]uuid.UUID, error) {
	return f.applied, nil
}

func (f *fakeCatalogStore) SearchPostings(_ context.Context, q types.PostingQuery) ([]types.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	excluded := make(map[uuid.UUID]bool)
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}
	var out []types.Posting
	for _, p := range f.postings {
		if !excluded[p.ID] {
			out = append(out, p)
		}
	}
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeCatalogStore) markedPostings(marks map[uuid.UUID]bool) []types.Posting {
	var out []types.Posting
	for _, p := range f.postings {
		if marks[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeCatalogStore) ListFavoritePostings(context.Context, uuid.UUID, int) ([]types.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markedPostings(f.favorites), nil
}

func (f *fakeCatalogStore) ListHiddenPostings(context.Context, uuid.UUID, int) ([]types.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markedPostings(f.hidden), nil
}

func (f *fakeCatalogStore) SetFavorite(_ context.Context, _, postingID uuid.UUID, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.favorites[postingID] = on
	return nil
}

func (f *fakeCatalogStore) SetHidden(_ context.Context, _, postingID uuid.UUID, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden[postingID] = on
	if on {
		f.favorites[postingID] = false
	}
	return nil
}

func newTestCatalog() (*Service, *fakeCatalogStore) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := newFakeCatalogStore()
	return NewService(store, log), store
}

func addPostings(store *fakeCatalogStore, n int) {
	for i := 0; i < n; i++ {
		store.postings = append(store.postings, types.Posting{
			ID:           uuid.New(),
			Title:        "Intern",
			CompanyName:  "Acme Labs",
			Modality:     types.ModalityRemote,
			Compensation: "sin_apoyo",
			Status:       types.PostingActive,
			SpotsTotal:   2,
			SpotsLeft:    2,
		})
	}
}

func TestSearch_NoProgram(t *testing.T) {
	svc, store := newTestCatalog()
	store.programID = nil

	_, err := svc.Search(context.Background(), uuid.New(), Filters{})
	assert.ErrorIs(t, err, ErrNoProgram)
}

func TestSearch_TranslatesFilters(t *testing.T) {
	svc, store := newTestCatalog()
	addPostings(store, 1)

	_, err := svc.Search(context.Background(), uuid.New(), Filters{
		Query:        `python "senior"`,
		Modality:     "Híbrida",
		Compensation: "Apoyo económico",
		Language:     " en ",
		Page:         2,
	})
	require.NoError(t, err)

	q := store.lastQuery
	assert.Equal(t, *store.programID, q.ProgramID)
	assert.Equal(t, "python  senior", q.Text)
	assert.Equal(t, types.ModalityHybrid, q.Modality)
	assert.Contains(t, q.Compensation, "apoyo económico")
	assert.Equal(t, "EN", q.Language)
	assert.Equal(t, PageSize, q.Limit)
	assert.Equal(t, 2*PageSize, q.Offset)
}

func TestSearch_MarkersAndPaging(t *testing.T) {
	svc, store := newTestCatalog()
	addPostings(store, PageSize+3)
	fav := store.postings[0].ID
	applied := store.postings[1].ID
	hidden := store.postings[2].ID
	store.favorites[fav] = true
	store.hidden[hidden] = true
	store.applied = []uuid.UUID{applied}

	res, err := svc.Search(context.Background(), uuid.New(), Filters{})
	require.NoError(t, err)
	require.Len(t, res.Postings, PageSize)
	assert.True(t, res.HasMore)

	for _, card := range res.Postings {
		assert.NotEqual(t, hidden, card.ID, "hidden postings are excluded")
		assert.Equal(t, card.ID == fav, card.Favorite)
		assert.Equal(t, card.ID == applied, card.Applied)
		assert.Equal(t, "Remota", card.ModalityLabel)
		assert.Equal(t, "Sin apoyo", card.CompensationLabel)
		assert.Equal(t, "AL", card.CompanyInitials)
	}

	next, err := svc.Search(context.Background(), uuid.New(), Filters{Page: 1})
	require.NoError(t, err)
	assert.Len(t, next.Postings, 2)
	assert.False(t, next.HasMore)
}

func TestSearch_StoreError(t *testing.T) {
	svc, store := newTestCatalog()
	store.searchErr = errors.New("statement timeout")

	_, err := svc.Search(context.Background(), uuid.New(), Filters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement timeout")
}

func TestSetHidden_RemovesFavorite(t *testing.T) {
	svc, store := newTestCatalog()
	student := uuid.New()
	posting := uuid.New()

	require.NoError(t, svc.SetFavorite(context.Background(), student, posting, true))
	require.NoError(t, svc.SetHidden(context.Background(), student, posting, true))
	assert.False(t, store.favorites[posting])
	assert.True(t, store.hidden[posting])

	require.NoError(t, svc.SetHidden(context.Background(), student, posting, false))
	assert.False(t, store.hidden[posting])
}

func TestFavoritesAndHidden_Cards(t *testing.T) {
	svc, store := newTestCatalog()
	addPostings(store, 3)
	fav := store.postings[0].ID
	hidden := store.postings[1].ID
	store.favorites[fav] = true
	store.hidden[hidden] = true
	store.applied = []uuid.UUID{fav}
	student := uuid.New()

	favs, err := svc.Favorites(context.Background(), student)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, fav, favs[0].ID)
	assert.True(t, favs[0].Favorite)
	assert.True(t, favs[0].Applied)
	assert.False(t, favs[0].Hidden)
	assert.Equal(t, "AL", favs[0].CompanyInitials)

	hid, err := svc.Hidden(context.Background(), student)
	require.NoError(t, err)
	require.Len(t, hid, 1)
	assert.Equal(t, hidden, hid[0].ID)
	assert.True(t, hid[0].Hidden)
	assert.False(t, hid[0].Applied)
	assert.Equal(t, "Remota", hid[0].ModalityLabel)
}

func TestFavorites_Empty(t *testing.T) {
	svc, _ := newTestCatalog()

	favs, err := svc.Favorites(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, favs)
	assert.Empty(t, favs)
}
