package lifecycle

import (
	"fmt"

	"github.com/jonathan/internship-portal/internal/types"
)

// Notification types written for company decisions
const (
	NotificationOffer    = "offer"
	NotificationRejected = "rejected"
)

// notice is the student notification and the degraded-outcome warning for one decision.
type notice struct {
	kind    string
	title   string
	body    string
	link    string
	warning string
}

// noticeFor returns the notification sent when a company moves an application
// to status, or false when that transition notifies nobody.
func noticeFor(status types.ApplicationStatus, d *types.ApplicationDetail) (notice, bool) {
	company := d.CompanyName
	if company == "" {
		company = "La empresa"
	}

	switch status {
	case types.StatusOffer:
		return notice{
			kind:  NotificationOffer,
			title: "¡Tienes una nueva oferta!",
			body: fmt.Sprintf(
				"La empresa %s te ha enviado una oferta para la vacante \"%s\". Revisa tus ofertas para aceptarla o rechazarla.",
				company, d.PostingTitle),
			link:    OffersPath,
			warning: "Oferta enviada pero hubo un problema con la notificación. El estado se actualizó pero el alumno no recibió notificación.",
		}, true
	case types.StatusRejected:
		return notice{
			kind:  NotificationRejected,
			title: "Actualización de tu postulación",
			body: fmt.Sprintf(
				"Lamentamos informarte que tu postulación para \"%s\" en %s no ha sido seleccionada.",
				d.PostingTitle, company),
			link:    OffersPath,
			warning: "Postulación rechazada pero hubo un problema con la notificación. El estado se actualizó pero el alumno no recibió notificación.",
		}, true
	}
	return notice{}, false
}

func (n notice) notification(d *types.ApplicationDetail) types.Notification {
	return types.Notification{
		StudentID: d.StudentID,
		Type:      n.kind,
		Title:     n.title,
		Body:      n.body,
		ActionURL: n.link,
	}
}
