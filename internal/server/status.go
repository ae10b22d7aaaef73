package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/strazhlabs/strazh/internal/present"
)

// StatusSink is a presentation sink that keeps the latest display state in
// memory and serves it over HTTP. It is the server-side stand-in for an
// on-screen text view: whatever the pipeline would show is what GET /status
// returns.
type StatusSink struct {
	mu        sync.RWMutex
	text      string
	severity  present.Severity
	updatedAt time.Time
	now       func() time.Time
}

// NewStatusSink returns a StatusSink with an empty display.
func NewStatusSink() *StatusSink {
	return &StatusSink{now: time.Now}
}

// Present replaces the current display state.
func (s *StatusSink) Present(text string, severity present.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.severity = severity
	s.updatedAt = s.now()
}

// Snapshot returns the current display text and severity.
func (s *StatusSink) Snapshot() (text string, severity present.Severity, updatedAt time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text, s.severity, s.updatedAt
}

// statusResponse is the JSON body served by GET /status.
type statusResponse struct {
	Display   string    `json:"display"`
	Severity  string    `json:"severity"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// ServeHTTP serves the current display state as JSON.
func (s *StatusSink) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	text, severity, updatedAt := s.Snapshot()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(statusResponse{
		Display:   text,
		Severity:  severity.String(),
		UpdatedAt: updatedAt,
	}); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

var _ present.Sink = (*StatusSink)(nil)
