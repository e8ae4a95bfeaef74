package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonathan/internship-portal/internal/events"
	"github.com/jonathan/internship-portal/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_CreatesApplicationAndPublishes(t *testing.T) {
	svc, store, bus := newTestService()
	student := uuid.New()
	posting := store.addPosting(uuid.New(), 3, 0)

	var got []events.Event
	var mu sync.Mutex
	bus.Subscribe(events.ForStudent(student), func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})

	res, err := svc.Apply(context.Background(), student, posting.ID, false)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.NotEqual(t, uuid.Nil, res.ApplicationID)
	assert.Equal(t, StateAlreadyApplied, res.State)

	view, err := svc.StudentView(context.Background(), student, posting.ID)
	require.NoError(t, err)
	assert.Equal(t, StateAlreadyApplied, view.State)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, events.ApplicationChanged, got[0].Kind)
	assert.Equal(t, res.ApplicationID, got[0].ApplicationID)
}

func TestApply_TwiceIsBenignDuplicate(t *testing.T) {
	svc, store, _ := newTestService()
	student := uuid.New()
	posting := store.addPosting(uuid.New(), 3, 0)

	_, err := svc.Apply(context.Background(), student, posting.ID, false)
	require.NoError(t, err)

	res, err := svc.Apply(context.Background(), student, posting.ID, false)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, store.countApplications(student, posting.ID))
	assert.Equal(t, 1, store.applyCalls, "second apply is answered from the view state")
}

func TestApply_ConcurrentRequestsCreateOneRow(t *testing.T) {
	svc, store, _ := newTestService()
	student := uuid.New()
	posting := store.addPosting(uuid.New(), 3, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(context.Background(), student, posting.ID, false)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, store.countApplications(student, posting.ID))
}

func TestApply_UniqueViolationFromStore(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"sqlstate", &pgconn.PgError{Code: "23505", Message: "boom"}},
		{"message only", errors.New("application already exists")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService()
			posting := store.addPosting(uuid.New(), 3, 0)
			store.applyErr = tt.err

			res, err := svc.Apply(context.Background(), uuid.New(), posting.ID, false)
			require.NoError(t, err)
			assert.True(t, res.Duplicate)
			assert.Equal(t, StateAlreadyApplied, res.State)
		})
	}
}

func TestApply_OtherStoreErrorPropagates(t *testing.T) {
	svc, store, _ := newTestService()
	posting := store.addPosting(uuid.New(), 3, 0)
	store.applyErr = errors.New("connection reset by peer")

	_, err := svc.Apply(context.Background(), uuid.New(), posting.ID, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply")
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestApply_Refusals(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		svc, store, _ := newTestService()
		posting := store.addPosting(uuid.New(), 3, 0)
		_, err := svc.Apply(context.Background(), uuid.Nil, posting.ID, false)
		var target *ErrUnauthenticated
		assert.ErrorAs(t, err, &target)
		assert.Zero(t, store.applyCalls)
	})

	t.Run("unknown posting", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Apply(context.Background(), uuid.New(), uuid.New(), false)
		var target *ErrNotFound
		assert.ErrorAs(t, err, &target)
	})

	t.Run("no capacity", func(t *testing.T) {
		svc, store, _ := newTestService()
		posting := store.addPosting(uuid.New(), 2, 2)
		_, err := svc.Apply(context.Background(), uuid.New(), posting.ID, false)
		var target *ErrNotEligible
		require.ErrorAs(t, err, &target)
		assert.Equal(t, StateNoCapacity, target.State)
		assert.Zero(t, store.applyCalls)
	})

	t.Run("inactive posting has no capacity", func(t *testing.T) {
		svc, store, _ := newTestService()
		posting := store.addPosting(uuid.New(), 2, 0)
		store.postings[posting.ID].Status = types.PostingInactive
		_, err := svc.Apply(context.Background(), uuid.New(), posting.ID, false)
		var target *ErrNotEligible
		require.ErrorAs(t, err, &target)
		assert.Equal(t, StateNoCapacity, target.State)
	})

	t.Run("blocked by other practice", func(t *testing.T) {
		svc, store, _ := newTestService()
		student := uuid.New()
		posting := store.addPosting(uuid.New(), 2, 0)
		store.addPractice(student, uuid.New(), types.PracticeActive)
		_, err := svc.Apply(context.Background(), student, posting.ID, false)
		var target *ErrNotEligible
		require.ErrorAs(t, err, &target)
		assert.Equal(t, StateBlockedByOtherPractice, target.State)
	})
}

func TestApply_ReapplyNeedsConfirmation(t *testing.T) {
	svc, store, _ := newTestService()
	student := uuid.New()
	posting := store.addPosting(uuid.New(), 3, 1)
	store.addApplication(student, posting, types.StatusCompleted)

	_, err := svc.Apply(context.Background(), student, posting.ID, false)
	var confirm *ErrConfirmationRequired
	require.ErrorAs(t, err, &confirm)
	assert.Equal(t, ReapplyPrompt, confirm.Prompt)
	assert.Zero(t, store.applyCalls)

	res, err := svc.Apply(context.Background(), student, posting.ID, true)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 2, store.countApplications(student, posting.ID))
}

func TestSendOffer_NotifiesStudent(t *testing.T) {
	svc, store, _ := newTestService()
	owner := uuid.New()
	student := uuid.New()
	posting := store.addPosting(owner, 3, 0)
	appID := store.addApplication(student, posting, types.StatusSubmitted)

	res, err := svc.SendOffer(context.Background(), owner, appID)
	require.NoError(t, err)
	assert.True(t, res.Notified)
	assert.Empty(t, res.Warning)
	assert.Equal(t, types.StatusOffer, store.status(appID))

	require.Len(t, store.notifications, 1)
	n := store.notifications[0]
	assert.Equal(t, student, n.StudentID)
	assert.Equal(t, NotificationOffer, n.Type)
	assert.Contains(t, n.Body, "Acme Labs")
	assert.Contains(t, n.Body, posting.Title)
	assert.Equal(t, OffersPath, n.ActionURL)

	detail, _ := store.GetApplicationDetail(context.Background(), appID)
	assert.Equal(t, types.DecisionOffered, detail.Decision)
	assert.NotNil(t, detail.DecisionAt)
}

func TestSendOffer_NotificationFailureKeepsStatus(t *testing.T) {
	svc, store, _ := newTestService()
	owner := uuid.New()
	posting := store.addPosting(owner, 3, 0)
	appID := store.addApplication(uuid.New(), posting, types.StatusSubmitted)
	store.notifyErr = errors.New("permission denied for table notifications")

	res, err := svc.SendOffer(context.Background(), owner, appID)
	require.NoError(t, err)
	assert.False(t, res.Notified)
	assert.NotEmpty(t, res.Warning)
	assert.Equal(t, types.StatusOffer, store.status(appID), "status is not reverted")
	assert.Empty(t, store.notifications)
}

func TestSendOffer_IdempotentWithoutSecondNotification(t *testing.T) {
	svc, store, _ := newTestService()
	owner := uuid.New()
	posting := store.addPosting(owner, 3, 0)
	appID := store.addApplication(uuid.New(), posting, types.StatusSubmitted)

	_, err := svc.SendOffer(context.Background(), owner, appID)
	require.NoError(t, err)

	res, err := svc.SendOffer(context.Background(), owner, appID)
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Len(t, store.notifications, 1)
}

func TestSendOffer_LegacyStatusAccepted(t *testing.T) {
	svc, store, _ := newTestService()
	owner := uuid.New()
	posting := store.addPosting(owner, 3, 0)
	appID := store.addApplication(uuid.New(), posting, types.StatusLegacyPending)

	_, err := svc.SendOffer(context.Background(), owner, appID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOffer, store.status(appID))
}

func TestReject_Ownership(t *testing.T) {
	svc, store, _ := newTestService()
	owner := uuid.New()
	posting := store.addPosting(owner, 3, 0)
	appID := store.addApplication(uuid.New(), posting, types.StatusSubmitted)

	_, err := svc.Reject(context.Background(), uuid.New(), appID)
	var forbidden *ErrForbidden
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, types.StatusSubmitted, store.status(appID))
	assert.Empty(t, store.notifications)

	res, err := svc.Reject(context.Background(), owner, appID)
	require.NoError(t, err)
	assert.True(t, res.Notified)
	assert.Equal(t, types.StatusRejected, store.status(appID))
	require.Len(t, store.notifications, 1)
	assert.Equal(t, NotificationRejected, store.notifications[0].Type)
}

func TestCompanyDecision_Errors(t *testing.T) {
	t.Run("unknown application", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.SendOffer(context.Background(), uuid.New(), uuid.New())
		var target *ErrNotFound
		assert.ErrorAs(t, err, &target)
	})

	t.Run("invalid edge", func(t *testing.T) {
		svc, store, _ := newTestService()
		owner := uuid.New()
		posting := store.addPosting(owner, 3, 0)
		appID := store.addApplication(uuid.New(), posting, types.StatusRejected)
		_, err := svc.SendOffer(context.Background(), owner, appID)
		var target *ErrInvalidTransition
		require.ErrorAs(t, err, &target)
		assert.Equal(t, types.StatusRejected, target.From)
	})

	t.Run("concurrent change", func(t *testing.T) {
		svc, store, _ := newTestService()
		owner := uuid.New()
		posting := store.addPosting(owner, 3, 0)
		appID := store.addApplication(uuid.New(), posting, types.StatusSubmitted)
		store.forceConflict = true
		_, err := svc.SendOffer(context.Background(), owner, appID)
		var target *ErrConflict
		require.ErrorAs(t, err, &target)
		assert.Empty(t, store.notifications)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Reject(context.Background(), uuid.Nil, uuid.New())
		var target *ErrUnauthenticated
		assert.ErrorAs(t, err, &target)
	})
}

func TestPracticeProgression(t *testing.T) {
	svc, store, _ := newTestService()
	owner := uuid.New()
	posting := store.addPosting(owner, 3, 0)
	appID := store.addApplication(uuid.New(), posting, types.StatusAccepted)

	_, err := svc.CompletePractice(context.Background(), owner, appID, false)
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)

	res, err := svc.StartPractice(context.Background(), owner, appID)
	require.NoError(t, err)
	assert.False(t, res.Notified)
	assert.Equal(t, types.StatusInProgress, store.status(appID))

	_, err = svc.CompletePractice(context.Background(), owner, appID, true)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFinalized, store.status(appID))
	assert.Empty(t, store.notifications)
}

func TestAcceptOffer_OpensPractice(t *testing.T) {
	svc, store, bus := newTestService()
	student := uuid.New()
	posting := store.addPosting(uuid.New(), 3, 0)
	appID := store.addApplication(student, posting, types.StatusOffer)

	var kinds []events.Kind
	var mu sync.Mutex
	bus.Subscribe(events.ForStudent(student), func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, ev.Kind)
	})

	res, err := svc.AcceptOffer(context.Background(), student, appID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAccepted, res.Status)
	assert.Equal(t, types.StatusAccepted, store.status(appID))

	practices := store.practicesFor(student)
	require.Len(t, practices, 1)
	assert.Equal(t, appID, practices[0].ApplicationID)
	assert.Equal(t, types.PracticeActive, practices[0].Status)

	view, err := svc.StudentView(context.Background(), student, posting.ID)
	require.NoError(t, err)
	assert.Equal(t, StateParticipating, view.State)

	again, err := svc.AcceptOffer(context.Background(), student, appID)
	require.NoError(t, err)
	assert.True(t, again.Unchanged)
	assert.Len(t, store.practicesFor(student), 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.Kind{events.PracticeChanged}, kinds)
}

func TestAcceptOffer_RefusedWhenBlocked(t *testing.T) {
	svc, store, _ := newTestService()
	student := uuid.New()
	posting := store.addPosting(uuid.New(), 3, 0)
	appID := store.addApplication(student, posting, types.StatusOffer)
	store.addPractice(student, uuid.New(), types.PracticeActive)

	_, err := svc.AcceptOffer(context.Background(), student, appID)
	var target *ErrNotEligible
	require.ErrorAs(t, err, &target)
	assert.Equal(t, StateBlockedByOtherPractice, target.State)
	assert.Equal(t, types.StatusOffer, store.status(appID))
	assert.Len(t, store.practicesFor(student), 1)
}

func TestAcceptOffer_OwnershipAndStatus(t *testing.T) {
	svc, store, _ := newTestService()
	student := uuid.New()
	posting := store.addPosting(uuid.New(), 3, 0)
	appID := store.addApplication(student, posting, types.StatusSubmitted)

	_, err := svc.AcceptOffer(context.Background(), uuid.New(), appID)
	var forbidden *ErrForbidden
	assert.ErrorAs(t, err, &forbidden)

	_, err = svc.AcceptOffer(context.Background(), student, appID)
	var invalid *ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)
}

func TestDeclineOffer(t *testing.T) {
	svc, store, _ := newTestService()
	student := uuid.New()
	posting := store.addPosting(uuid.New(), 3, 0)
	appID := store.addApplication(student, posting, types.StatusOffer)

	res, err := svc.DeclineOffer(context.Background(), student, appID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, res.Status)
	assert.Empty(t, store.practicesFor(student))

	detail, _ := store.GetApplicationDetail(context.Background(), appID)
	assert.Equal(t, types.DecisionDeclined, detail.Decision)
	require.NotNil(t, detail.DecisionAt)
	assert.False(t, detail.DecisionAt.IsZero())

	again, err := svc.DeclineOffer(context.Background(), student, appID)
	require.NoError(t, err)
	assert.True(t, again.Unchanged)
}

func TestWithdraw(t *testing.T) {
	t.Run("student withdraws", func(t *testing.T) {
		svc, store, _ := newTestService()
		student := uuid.New()
		posting := store.addPosting(uuid.New(), 3, 0)
		appID := store.addApplication(student, posting, types.StatusSubmitted)

		_, err := svc.Withdraw(context.Background(), student, appID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusWithdrawn, store.status(appID))

		// a withdrawn application no longer blocks a new one
		view, err := svc.StudentView(context.Background(), student, posting.ID)
		require.NoError(t, err)
		assert.Equal(t, StateEligible, view.State)
	})

	t.Run("company withdraws", func(t *testing.T) {
		svc, store, _ := newTestService()
		owner := uuid.New()
		posting := store.addPosting(owner, 3, 0)
		appID := store.addApplication(uuid.New(), posting, types.StatusInProgress)

		_, err := svc.Withdraw(context.Background(), owner, appID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusWithdrawn, store.status(appID))
	})

	t.Run("stranger forbidden", func(t *testing.T) {
		svc, store, _ := newTestService()
		posting := store.addPosting(uuid.New(), 3, 0)
		appID := store.addApplication(uuid.New(), posting, types.StatusSubmitted)

		_, err := svc.Withdraw(context.Background(), uuid.New(), appID)
		var target *ErrForbidden
		assert.ErrorAs(t, err, &target)
	})

	t.Run("terminal is invalid", func(t *testing.T) {
		svc, store, _ := newTestService()
		student := uuid.New()
		posting := store.addPosting(uuid.New(), 3, 0)
		appID := store.addApplication(student, posting, types.StatusCompleted)

		_, err := svc.Withdraw(context.Background(), student, appID)
		var target *ErrInvalidTransition
		assert.ErrorAs(t, err, &target)
	})
}
