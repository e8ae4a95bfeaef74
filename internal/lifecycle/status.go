// Package lifecycle derives what a student can do with a posting and drives
// application status transitions together with their notification side effects.
package lifecycle

import (
	"strings"

	"github.com/jonathan/internship-portal/internal/types"
)

// NormalizeStatus maps legacy and synonym spellings onto the canonical set.
// Unknown or empty values are treated as submitted.
func NormalizeStatus(s types.ApplicationStatus) types.ApplicationStatus {
	switch types.ApplicationStatus(strings.ToLower(strings.TrimSpace(string(s)))) {
	case types.StatusSubmitted, types.StatusLegacySubmitted, types.StatusLegacyPending,
		types.StatusLegacyReviewed, types.StatusLegacyInterview:
		return types.StatusSubmitted
	case types.StatusInProgress:
		return types.StatusInProgress
	case types.StatusOffer:
		return types.StatusOffer
	case types.StatusAccepted:
		return types.StatusAccepted
	case types.StatusRejected:
		return types.StatusRejected
	case types.StatusCompleted, "terminada", "completed", "finished", "done":
		return types.StatusCompleted
	case types.StatusFinalized:
		return types.StatusFinalized
	case types.StatusWithdrawn:
		return types.StatusWithdrawn
	default:
		return types.StatusSubmitted
	}
}

// storedSpellings lists every value that may sit in applications.status.
var storedSpellings = []types.ApplicationStatus{
	types.StatusSubmitted, types.StatusLegacySubmitted, types.StatusLegacyPending,
	types.StatusLegacyReviewed, types.StatusLegacyInterview,
	types.StatusInProgress, types.StatusOffer, types.StatusAccepted, types.StatusRejected,
	types.StatusCompleted, "terminada", "completed", "finished", "done",
	types.StatusFinalized, types.StatusWithdrawn,
}

// StoredSpellings returns the stored values that normalize to s, for
// filtering rows by a canonical status.
func StoredSpellings(s types.ApplicationStatus) []string {
	want := NormalizeStatus(s)
	var out []string
	for _, v := range storedSpellings {
		if NormalizeStatus(v) == want {
			out = append(out, string(v))
		}
	}
	return out
}

// IsTerminal reports whether no further transition applies to s.
func IsTerminal(s types.ApplicationStatus) bool {
	switch NormalizeStatus(s) {
	case types.StatusRejected, types.StatusCompleted, types.StatusFinalized, types.StatusWithdrawn:
		return true
	}
	return false
}

// IsCompleted reports whether s means the practice was carried out.
func IsCompleted(s types.ApplicationStatus) bool {
	n := NormalizeStatus(s)
	return n == types.StatusCompleted || n == types.StatusFinalized
}

// isActiveMeaning reports whether s counts as a live application for the
// "already applied" check. Accepted is excluded: that state is covered by
// the active practice it creates.
func isActiveMeaning(s types.ApplicationStatus) bool {
	switch NormalizeStatus(s) {
	case types.StatusSubmitted, types.StatusInProgress, types.StatusOffer:
		return true
	}
	return false
}

type edge struct {
	from, to types.ApplicationStatus
}

var companyEdges = map[edge]bool{
	{types.StatusSubmitted, types.StatusOffer}:      true,
	{types.StatusSubmitted, types.StatusRejected}:   true,
	{types.StatusAccepted, types.StatusInProgress}:  true,
	{types.StatusInProgress, types.StatusCompleted}: true,
	{types.StatusInProgress, types.StatusFinalized}: true,
}

var studentEdges = map[edge]bool{
	{types.StatusOffer, types.StatusAccepted}: true,
	{types.StatusOffer, types.StatusRejected}: true,
}

// CanTransition reports whether role may move an application from one status to another.
// Withdrawal is open to both parties from any non-terminal status.
func CanTransition(from, to types.ApplicationStatus, role types.Role) bool {
	from, to = NormalizeStatus(from), NormalizeStatus(to)
	if IsTerminal(from) {
		return false
	}
	if to == types.StatusWithdrawn {
		return role == types.RoleStudent || role == types.RoleCompany
	}
	switch role {
	case types.RoleCompany:
		return companyEdges[edge{from, to}]
	case types.RoleStudent:
		return studentEdges[edge{from, to}]
	}
	return false
}

var statusLabels = map[types.ApplicationStatus]string{
	types.StatusSubmitted:       "Postulada",
	types.StatusLegacyPending:   "Pendiente",
	types.StatusLegacyReviewed:  "Revisada",
	types.StatusLegacyInterview: "Entrevista",
	types.StatusOffer:           "Oferta enviada",
	types.StatusAccepted:        "Aceptada por alumno",
	types.StatusRejected:        "Rechazada",
	types.StatusCompleted:       "Completada",
	types.StatusInProgress:      "En proceso",
	types.StatusFinalized:       "Finalizada",
	types.StatusWithdrawn:       "Retirada",
}

// Label returns the display text for a stored status. Legacy values keep their own label.
func Label(s types.ApplicationStatus) string {
	if label, ok := statusLabels[types.ApplicationStatus(strings.ToLower(string(s)))]; ok {
		return label
	}
	return statusLabels[types.StatusSubmitted]
}

// Tone is the badge color class for a status.
type Tone string

const (
	ToneWarning Tone = "warning"
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
	ToneDefault Tone = "default"
	ToneMuted   Tone = "muted"
)

// StatusTone returns the badge tone for a stored status.
func StatusTone(s types.ApplicationStatus) Tone {
	switch types.ApplicationStatus(strings.ToLower(string(s))) {
	case types.StatusSubmitted, types.StatusLegacyPending:
		return ToneWarning
	case types.StatusOffer:
		return ToneInfo
	case types.StatusAccepted, types.StatusCompleted, types.StatusFinalized:
		return ToneSuccess
	case types.StatusRejected, types.StatusWithdrawn:
		return ToneError
	case types.StatusInProgress:
		return ToneDefault
	}
	return ToneMuted
}

// SplitApplications separates the student dashboard lists: active holds
// everything neither completed nor rejected, completed holds the rest that finished.
func SplitApplications(apps []types.Application) (active, completed []types.Application) {
	for _, a := range apps {
		s := NormalizeStatus(a.Status)
		switch {
		case IsCompleted(s):
			completed = append(completed, a)
		case s == types.StatusRejected:
		default:
			active = append(active, a)
		}
	}
	return active, completed
}
