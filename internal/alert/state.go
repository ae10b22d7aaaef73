package alert

import (
	"sync"
	"time"
)

// State tracks the most recent escalated alert. It is the only mutable
// cross-call state in the pipeline core: the coordinator records every
// escalation here and consults it for the optional de-duplication window.
//
// State is injected into the coordinator rather than held as a package-level
// variable so that tests and multi-session deployments can scope it as they
// please. It is reset only by process restart.
type State struct {
	mu              sync.Mutex
	lastAlertedText string
	lastAlertedAt   time.Time
	alerted         bool
}

// NewState returns an empty State: no alert has fired yet.
func NewState() *State {
	return &State{}
}

// Last returns the text and time of the most recent alert. ok is false when
// no alert has fired since process start.
func (s *State) Last() (text string, at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAlertedText, s.lastAlertedAt, s.alerted
}

// Record stores text and at as the most recent alert.
func (s *State) Record(text string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAlertedText = text
	s.lastAlertedAt = at
	s.alerted = true
}
