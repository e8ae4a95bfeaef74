package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/internship-portal/internal/lifecycle"
)

const (
	eventViewState = "view-state"
	eventError     = "error"

	// keepAliveInterval is how often an idle stream sends a comment line.
	keepAliveInterval = 25 * time.Second
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteKeepAlive sends a comment line that clients ignore
func (s *SSEWriter) WriteKeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(status int, message string) {
	s.WriteEvent(eventError, map[string]any{"status": status, "error": message}) //nolint:errcheck
}

// handleViewStateStream streams the caller's view state on a posting. A
// fresh view is pushed whenever an application, practice or the posting's
// capacity changes.
func (s *Server) handleViewStateStream(w http.ResponseWriter, r *http.Request) {
	studentID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	postingID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// writes from the keep-alive ticker and Watch's emit must not interleave
	views := make(chan lifecycle.View)
	done := make(chan error, 1)
	go func() {
		done <- s.lifecycle.Watch(ctx, studentID, postingID, func(v lifecycle.View) error {
			select {
			case views <- v:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case v := <-views:
			if err := sse.WriteEvent(eventViewState, v); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.WriteKeepAlive(); err != nil {
				return
			}
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.WithError(err).WithField("vacancy_id", postingID).Warn("view-state stream ended")
				sse.WriteError(HTTPStatus(err), err.Error())
			}
			return
		}
	}
}
