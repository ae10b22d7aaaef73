// Package notify defines the outbound notification contract of the alert
// pipeline.
//
// The coordinator hands a [Request] to a [Dispatcher] and immediately moves
// on: delivery happens on a background worker, outcomes are logged, and no
// failure ever reaches the coordinator. Requests are in-memory only — they
// are lost on process crash, which is an accepted part of the failure model.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Request is a single alert notification to deliver.
type Request struct {
	// ID uniquely identifies the request in logs.
	ID string

	// Text is the alert text (the recognized utterance), without transport
	// decoration — the dispatcher adds its own prefix and encoding.
	Text string

	// EnqueuedAt marks when the coordinator created the request.
	EnqueuedAt time.Time
}

// NewRequest creates a Request for text, stamped with a fresh ID and the
// current time.
func NewRequest(text string) Request {
	return Request{
		ID:         uuid.NewString(),
		Text:       text,
		EnqueuedAt: time.Now(),
	}
}

// Dispatcher delivers alert notifications to a remote endpoint.
//
// Enqueue must not block the caller on network activity; delivery and its
// outcome are the dispatcher's own business. Implementations must be safe
// for concurrent use.
type Dispatcher interface {
	Enqueue(req Request)
}

// Discard is a Dispatcher that drops every request. Used when no notification
// transport is configured.
type Discard struct{}

// Enqueue drops req.
func (Discard) Enqueue(Request) {}
