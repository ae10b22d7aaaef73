// Package recognizer defines the Provider interface for speech-recognition
// backends.
//
// A recognizer wraps a real-time transcription engine (e.g., a vosk-server
// instance) and exposes a uniform streaming interface. The central abstraction
// is Session: once opened, a session accepts raw PCM audio frames and emits a
// single in-order stream of tagged events — interim partials, settled results,
// end-of-utterance finals, plus error and timeout events from the engine.
//
// The event payloads are forwarded verbatim as the engine produced them
// (typically a small JSON record with a "text" or "partial" field). Payload
// decoding is deliberately left to the consumer so that malformed engine
// output can be handled in one place.
//
// Implementations must be safe for concurrent use. The events channel is
// goroutine-safe by construction, but events for one session must be consumed
// by a single goroutine to preserve arrival order.
package recognizer

import (
	"context"
	"time"
)

// EventKind tags a recognizer Event with the engine callback it originated from.
type EventKind int

const (
	// KindPartial is a low-latency interim hypothesis. Partials are advisory:
	// they are suitable for driving live UI but must not trigger side effects.
	KindPartial EventKind = iota

	// KindResult is a settled hypothesis for a completed speech segment.
	KindResult

	// KindFinal is the authoritative end-of-utterance hypothesis, emitted once
	// per utterance after the engine detects a pause.
	KindFinal

	// KindError signals an engine error. The session usually continues or is
	// restarted by its owner; the consumer should surface the error and move on.
	KindError

	// KindTimeout signals that the engine heard no speech for its configured
	// timeout window.
	KindTimeout
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindResult:
		return "result"
	case KindFinal:
		return "final"
	case KindError:
		return "error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// IsHypothesis reports whether the event carries a transcription payload.
func (k EventKind) IsHypothesis() bool {
	return k == KindPartial || k == KindResult || k == KindFinal
}

// Event is a single tagged item on a session's event stream.
type Event struct {
	// Kind identifies which engine callback produced this event.
	Kind EventKind

	// Payload is the raw hypothesis payload for partial/result/final events,
	// exactly as the engine produced it. Empty for error and timeout events.
	Payload string

	// Err describes the failure for KindError events, nil otherwise.
	Err error

	// Timestamp marks when the event was received from the engine.
	Timestamp time.Time
}

// SessionConfig describes the audio format and recognition hints for a new
// session. All fields must be compatible with what the underlying engine
// supports.
type SessionConfig struct {
	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Language is the recognition language code (e.g., "ru"). An empty string
	// uses whichever model the engine was started with.
	Language string

	// MaxAlternatives requests n-best output from engines that support it.
	// Zero requests single-best output.
	MaxAlternatives int
}

// Session represents an open streaming recognition session. It is an
// interface so that test code can provide scripted implementations without a
// live engine connection.
//
// Callers must call Close when the session is no longer needed. All methods
// are safe for concurrent use, but Events must be drained by one goroutine.
type Session interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the engine. The
	// chunk must match the sample rate agreed in SessionConfig. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Events returns the read-only, in-order stream of recognition events.
	// The channel is closed when the session ends.
	Events() <-chan Event

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. After Close returns the Events channel will be
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any speech-recognition backend.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously.
type Provider interface {
	// StartSession opens a new streaming recognition session with the given
	// configuration. The returned Session is ready to accept audio immediately.
	//
	// Returns an error if the session cannot be established (connection
	// failure, unsupported configuration, or ctx already cancelled). The
	// caller owns the Session and must call Close when done.
	StartSession(ctx context.Context, cfg SessionConfig) (Session, error)
}
