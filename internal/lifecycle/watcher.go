package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/events"
)

type taggedView struct {
	tag  uint64
	view *View
	err  error
}

// Watch emits the view of (studentID, postingID) once immediately and again
// after every relevant event until ctx is done or emit fails. Each derivation
// is tagged; a result overtaken by a newer derivation is discarded.
func (s *Service) Watch(ctx context.Context, studentID, postingID uuid.UUID, emit func(View) error) error {
	if studentID == uuid.Nil {
		return &ErrUnauthenticated{}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	trigger := make(chan struct{}, 1)
	if s.bus != nil {
		unsubscribe := s.bus.Subscribe(events.ForStudentOrPosting(studentID, postingID), func(events.Event) {
			select {
			case trigger <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()
	}

	var seq Sequencer
	results := make(chan taggedView)
	derive := func() {
		tag := seq.Next()
		go func() {
			view, err := s.StudentView(ctx, studentID, postingID)
			select {
			case results <- taggedView{tag: tag, view: view, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	derive()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
			derive()
		case r := <-results:
			if !seq.Current(r.tag) {
				continue
			}
			if r.err != nil {
				return r.err
			}
			r.view.Sequence = r.tag
			if err := emit(*r.view); err != nil {
				return err
			}
		}
	}
}
