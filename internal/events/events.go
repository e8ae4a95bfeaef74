// Package events provides the publish/subscribe signal used to tell open views
// that a student's application or practice state changed.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what changed.
type Kind string

const (
	// ApplicationChanged fires after an application is created or changes status.
	ApplicationChanged Kind = "application.changed"
	// PracticeChanged fires after a practice is created or closed.
	PracticeChanged Kind = "practice.changed"
	// PostingChanged fires after a company publishes or closes a posting.
	PostingChanged Kind = "posting.changed"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Kind          Kind      `json:"kind"`
	StudentID     uuid.UUID `json:"student_id"`
	PostingID     uuid.UUID `json:"vacancy_id"`
	ApplicationID uuid.UUID `json:"application_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	Origin        string    `json:"origin,omitempty"`
	At            time.Time `json:"at"`
}

// Handler receives events. Handlers must not block.
type Handler func(Event)

// Filter selects which events a subscriber wants. A nil filter accepts everything.
type Filter func(Event) bool

// ForStudent returns a filter accepting events about one student.
func ForStudent(studentID uuid.UUID) Filter {
	return func(ev Event) bool { return ev.StudentID == studentID }
}

// ForStudentOrPosting accepts events about the student or about the posting.
// Posting events from other students matter because they move capacity.
func ForStudentOrPosting(studentID, postingID uuid.UUID) Filter {
	return func(ev Event) bool {
		return ev.StudentID == studentID || ev.PostingID == postingID
	}
}

// Bus is implemented by LocalBus and RedisBridge.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(filter Filter, handler Handler) func()
}

type subscription struct {
	filter  Filter
	handler Handler
}

// LocalBus is an in-process publish/subscribe bus.
type LocalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
}

// NewLocalBus creates an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]subscription)}
}

// Subscribe registers handler and returns a function that removes it.
func (b *LocalBus) Subscribe(filter Filter, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{filter: filter, handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every matching subscriber. Handlers run outside the lock.
func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.filter == nil || sub.filter(ev) {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h(ev)
	}
	return nil
}

// Len returns the number of active subscriptions.
func (b *LocalBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
