// Package mock provides test doubles for the recognizer package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// SessionConfig. Use Session to feed controlled Event values and inspect
// which audio chunks were delivered.
//
// Example:
//
//	sess := &mock.Session{EventsCh: make(chan recognizer.Event, 4)}
//	p := &mock.Provider{Sess: sess}
//	handle, _ := p.StartSession(ctx, cfg)
//	sess.EventsCh <- recognizer.Event{Kind: recognizer.KindFinal, Payload: `{"text":"привет"}`}
package mock

import (
	"context"
	"sync"

	"github.com/strazhlabs/strazh/pkg/recognizer"
)

// StartSessionCall records a single invocation of Provider.StartSession.
type StartSessionCall struct {
	// Ctx is the context passed to StartSession.
	Ctx context.Context
	// Cfg is the SessionConfig passed to StartSession.
	Cfg recognizer.SessionConfig
}

// Provider is a mock implementation of recognizer.Provider.
type Provider struct {
	mu sync.Mutex

	// Sess is the Session returned by StartSession. If nil, StartSession
	// returns a new default Session with a buffered events channel.
	Sess recognizer.Session

	// StartSessionErr, if non-nil, is returned as the error from StartSession.
	StartSessionErr error

	// StartSessionCalls records every call to StartSession.
	StartSessionCalls []StartSessionCall
}

// StartSession records the call and returns Sess, StartSessionErr.
func (p *Provider) StartSession(ctx context.Context, cfg recognizer.SessionConfig) (recognizer.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartSessionCalls = append(p.StartSessionCalls, StartSessionCall{Ctx: ctx, Cfg: cfg})
	if p.StartSessionErr != nil {
		return nil, p.StartSessionErr
	}
	if p.Sess != nil {
		return p.Sess, nil
	}
	return &Session{EventsCh: make(chan recognizer.Event, 16)}, nil
}

// Ensure Provider implements recognizer.Provider at compile time.
var _ recognizer.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of recognizer.Session.
// Callers should pre-populate EventsCh with the Event values they want the
// consumer to receive, then close it when done.
type Session struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events(). Callers own this channel
	// and are responsible for sending to and closing it in tests.
	EventsCh chan recognizer.Event

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records a copy of chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: c})
	return s.SendAudioErr
}

// Events returns EventsCh.
func (s *Session) Events() <-chan recognizer.Event { return s.EventsCh }

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Ensure Session implements recognizer.Session at compile time.
var _ recognizer.Session = (*Session)(nil)
