// Package mock provides a recording test double for the synth.Speaker
// capability.
package mock

import (
	"context"
	"sync"

	"github.com/strazhlabs/strazh/pkg/synth"
)

// SpeakCall records a single invocation of Speaker.Speak.
type SpeakCall struct {
	// Text is the text passed to Speak.
	Text string
}

// Speaker is a mock implementation of synth.Speaker.
type Speaker struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall
}

// Speak records the call and returns SpeakErr.
func (s *Speaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SpeakCalls = append(s.SpeakCalls, SpeakCall{Text: text})
	return s.SpeakErr
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (s *Speaker) Calls() []SpeakCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SpeakCall, len(s.SpeakCalls))
	copy(out, s.SpeakCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (s *Speaker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SpeakCalls = nil
}

// Ensure Speaker implements synth.Speaker at compile time.
var _ synth.Speaker = (*Speaker)(nil)
