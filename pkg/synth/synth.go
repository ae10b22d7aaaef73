// Package synth defines the speech-synthesis capability consumed by the
// alert pipeline.
//
// Synthesis is strictly best-effort: the pipeline invokes Speak when an alert
// fires, logs a failure, and moves on. A Speaker must therefore never block
// longer than its own internal timeout and must never panic on odd input.
// The spoken locale is fixed when the Speaker is constructed.
package synth

import (
	"context"
	"log/slog"
)

// Speaker converts text to audible speech.
//
// Implementations must be safe for concurrent use.
type Speaker interface {
	// Speak synthesises and plays text. It returns an error for logging
	// purposes only; callers treat synthesis as fire-and-forget and must not
	// let a failure stop other alert side effects.
	Speak(ctx context.Context, text string) error
}

// Detach wraps a Speaker so that Speak returns immediately while the wrapped
// synthesis runs on its own goroutine. Errors from the wrapped Speaker are
// logged and never returned. The goroutine's context is severed from the
// caller's so shutdown does not cut a spoken alert short.
func Detach(s Speaker) Speaker {
	return detached{s: s}
}

type detached struct {
	s Speaker
}

func (d detached) Speak(ctx context.Context, text string) error {
	go func() {
		if err := d.s.Speak(context.WithoutCancel(ctx), text); err != nil {
			slog.Error("synth: detached synthesis failed", "err", err)
		}
	}()
	return nil
}
