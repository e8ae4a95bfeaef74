package lifecycle

import (
	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/types"
)

// ViewState is the single action state of a (student, posting) pair.
type ViewState string

const (
	StateParticipating          ViewState = "PARTICIPATING"
	StateBlockedByOtherPractice ViewState = "BLOCKED_BY_OTHER_PRACTICE"
	StateHasOffer               ViewState = "HAS_OFFER"
	StateAlreadyApplied         ViewState = "ALREADY_APPLIED"
	StateNoCapacity             ViewState = "NO_CAPACITY"
	StateReapplyEligible        ViewState = "REAPPLY_ELIGIBLE"
	StateEligible               ViewState = "ELIGIBLE"
)

// Eligibility holds every input the derivation depends on.
type Eligibility struct {
	PostingID uuid.UUID `json:"vacancy_id"`
	// AppliedStatuses maps posting id to the student's live application status.
	AppliedStatuses         map[uuid.UUID]types.ApplicationStatus `json:"applied_statuses,omitempty"`
	HasActivePractice       bool                                  `json:"has_active_practice"`
	ActivePracticePostingID uuid.UUID                             `json:"active_practice_vacancy_id,omitempty"`
	OfferForThisPosting     bool                                  `json:"offer_for_this_posting"`
	CompletedForThisPosting bool                                  `json:"completed_for_this_posting"`
	SpotsLeft               int                                   `json:"spots_left"`
}

// Derive returns the view state for e. The first matching rule wins.
func Derive(e Eligibility) ViewState {
	if e.HasActivePractice && e.ActivePracticePostingID == e.PostingID {
		return StateParticipating
	}
	if e.HasActivePractice {
		return StateBlockedByOtherPractice
	}
	if e.OfferForThisPosting {
		return StateHasOffer
	}
	if _, ok := e.AppliedStatuses[e.PostingID]; ok {
		return StateAlreadyApplied
	}
	if e.SpotsLeft <= 0 {
		return StateNoCapacity
	}
	if e.CompletedForThisPosting {
		return StateReapplyEligible
	}
	return StateEligible
}

// BuildEligibility computes the derivation inputs for postingID from the
// student's applications and practices.
func BuildEligibility(postingID uuid.UUID, spotsLeft int, apps []types.Application, practices []types.Practice) Eligibility {
	e := Eligibility{
		PostingID:       postingID,
		AppliedStatuses: make(map[uuid.UUID]types.ApplicationStatus),
		SpotsLeft:       spotsLeft,
	}

	for _, a := range apps {
		s := NormalizeStatus(a.Status)
		if isActiveMeaning(s) {
			e.AppliedStatuses[a.PostingID] = s
		}
		if a.PostingID != postingID {
			continue
		}
		if s == types.StatusOffer {
			e.OfferForThisPosting = true
		}
		if IsCompleted(s) {
			e.CompletedForThisPosting = true
		}
	}

	for _, p := range practices {
		switch p.Status {
		case types.PracticeActive:
			e.HasActivePractice = true
			e.ActivePracticePostingID = p.PostingID
		case types.PracticeCompleted:
			if p.PostingID == postingID {
				e.CompletedForThisPosting = true
			}
		}
	}

	return e
}

// ActionKind tells a client what the primary button does.
type ActionKind string

const (
	ActionApply        ActionKind = "apply"
	ActionReviewOffer  ActionKind = "review_offer"
	ActionViewPractice ActionKind = "view_practice"
	ActionNone         ActionKind = "none"
)

// Action is the primary button shown for a view state.
type Action struct {
	Kind                 ActionKind `json:"kind"`
	Label                string     `json:"label"`
	Enabled              bool       `json:"enabled"`
	Link                 string     `json:"link,omitempty"`
	RequiresConfirmation bool       `json:"requires_confirmation"`
	ConfirmationPrompt   string     `json:"confirmation_prompt,omitempty"`
}

// ReapplyPrompt is shown before re-applying to a posting the student already completed.
const ReapplyPrompt = "Ya completaste una práctica en esta vacante anteriormente. ¿Deseas postularte nuevamente?"

// Student-facing routes the actions link to
const (
	PracticesPath = "/alumno/mis-practicas"
	OffersPath    = "/alumno/ofertas"
)

// Action returns the button for v.
func (v ViewState) Action() Action {
	switch v {
	case StateParticipating:
		return Action{Kind: ActionViewPractice, Label: "Ya estás participando en este proyecto", Enabled: true, Link: PracticesPath}
	case StateBlockedByOtherPractice:
		return Action{Kind: ActionNone, Label: "Ya estás participando en otro proyecto"}
	case StateHasOffer:
		return Action{Kind: ActionReviewOffer, Label: "¡Tienes una oferta! Revisar oferta", Enabled: true, Link: OffersPath}
	case StateAlreadyApplied:
		return Action{Kind: ActionNone, Label: "Ya postulada"}
	case StateNoCapacity:
		return Action{Kind: ActionNone, Label: "Cupos agotados"}
	case StateReapplyEligible:
		return Action{
			Kind:                 ActionApply,
			Label:                "Postularse nuevamente",
			Enabled:              true,
			RequiresConfirmation: true,
			ConfirmationPrompt:   ReapplyPrompt,
		}
	default:
		return Action{Kind: ActionApply, Label: "Postularse ahora", Enabled: true}
	}
}

// CanApply reports whether the apply transition may be issued from v.
func CanApply(v ViewState) bool {
	return v == StateEligible || v == StateReapplyEligible
}

// CanAcceptOffer reports whether accepting an offer is enabled in v.
func CanAcceptOffer(v ViewState) bool {
	return v == StateHasOffer
}

// View is the derived state returned to clients.
type View struct {
	PostingID   uuid.UUID   `json:"vacancy_id"`
	State       ViewState   `json:"state"`
	Action      Action      `json:"action"`
	Eligibility Eligibility `json:"eligibility"`
	Sequence    uint64      `json:"sequence,omitempty"`
}

// NewView derives the state for e and attaches its action.
func NewView(e Eligibility) View {
	state := Derive(e)
	return View{
		PostingID:   e.PostingID,
		State:       state,
		Action:      state.Action(),
		Eligibility: e,
	}
}
