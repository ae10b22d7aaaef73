// Package present defines the presentation boundary: a sink consuming the
// pipeline's single current display string together with its severity.
//
// The sink is an external collaborator from the pipeline's point of view —
// the coordinator only ever replaces the whole display string, it never
// appends or edits. Implementations decide how the string is rendered (a
// terminal line, an HTTP status page, a GUI label).
package present

import (
	"fmt"
	"io"
	"sync"
)

// Severity is the implicit severity of a display update.
type Severity int

const (
	// SeverityNormal is a routine display update: live partials, recognized
	// calm text, status and error messages.
	SeverityNormal Severity = iota

	// SeverityDanger marks a display update caused by a danger classification.
	SeverityDanger
)

// String returns the human-readable name of the severity.
func (s Severity) String() string {
	if s == SeverityDanger {
		return "danger"
	}
	return "normal"
}

// Sink consumes display updates. Present replaces the current display string
// entirely. Implementations must tolerate being called from the coordinator's
// single event-processing goroutine and must not block on slow consumers.
type Sink interface {
	Present(text string, severity Severity)
}

// Console is a Sink that writes each display update as one line (multi-line
// display strings are written verbatim) to an io.Writer, typically stdout.
// Safe for concurrent use.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a Console sink writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Present writes the display text followed by a newline. Write errors are
// ignored: presentation is best-effort and must never disturb the pipeline.
func (c *Console) Present(text string, _ Severity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, text)
}

// Multi fans a display update out to several sinks in order.
type Multi []Sink

// Present forwards the update to every sink.
func (m Multi) Present(text string, severity Severity) {
	for _, s := range m {
		s.Present(text, severity)
	}
}
